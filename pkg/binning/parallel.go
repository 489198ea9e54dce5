package binning

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Job is one run of a batch.
type Job struct {
	Name    string // Label used in errors and logs
	Source  Source
	Store   Store
	Options Options
}

// BatchOptions controls concurrent execution of a batch.
type BatchOptions struct {
	// Workers specifies the number of concurrent runs.
	// If 0, defaults to runtime.NumCPU().
	Workers int

	// SkipErrors lets the batch continue when individual jobs fail.
	// When false, the first failure cancels the jobs still running or queued;
	// each of them rolls back and reports a *CancelledError.
	SkipErrors bool

	// Progress is an optional callback invoked after each job finishes
	// (successfully or with error) with the number of finished jobs.
	Progress func(done, total int)
}

// DefaultBatchOptions returns batch options with sensible defaults.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		Workers:    runtime.NumCPU(),
		SkipErrors: true,
	}
}

// RunBatch executes jobs concurrently using a worker pool.
//
// results[i] belongs to jobs[i] and is nil when that job failed. Every job is
// its own atomic run: one failing job never leaves partial output, and never
// affects output another job already committed. Errors are wrapped with the
// job name.
//
// Example:
//
//	results, errs := engine.RunBatch(ctx, jobs, binning.BatchOptions{
//	    Workers:    4,
//	    SkipErrors: true,
//	    Progress: func(done, total int) {
//	        fmt.Printf("\rBinning: %d/%d", done, total)
//	    },
//	})
//	if len(errs) > 0 {
//	    fmt.Printf("\n%d jobs failed\n", len(errs))
//	}
func (e *Engine) RunBatch(ctx context.Context, jobs []Job, opts BatchOptions) ([]*Result, []error) {
	if len(jobs) == 0 {
		return []*Result{}, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type runResult struct {
		index  int
		result *Result
		err    error
	}

	queue := make(chan int, len(jobs))
	done := make(chan runResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range queue {
				job := jobs[index]
				result, err := e.Run(ctx, job.Source, job.Store, job.Options)
				if err != nil && !opts.SkipErrors {
					cancel()
				}
				done <- runResult{index: index, result: result, err: err}
			}
		}()
	}

	for i := range jobs {
		queue <- i
	}
	close(queue)

	go func() {
		wg.Wait()
		close(done)
	}()

	results := make([]*Result, len(jobs))
	var errs []error
	finished := 0

	for r := range done {
		finished++
		if opts.Progress != nil {
			opts.Progress(finished, len(jobs))
		}

		if r.err != nil {
			name := jobs[r.index].Name
			if name == "" {
				name = fmt.Sprintf("job %d", r.index)
			}
			errs = append(errs, errors.Wrapf(r.err, "%s", name))
			e.log.Debug("batch job failed", zap.String("job", name), zap.Error(r.err))
			continue
		}
		results[r.index] = r.result
	}

	return results, errs
}
