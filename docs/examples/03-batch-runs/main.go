package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ctessum/geom"

	"github.com/beetlebugorg/spatialbin/pkg/binning"
	"github.com/beetlebugorg/spatialbin/pkg/featureio"
)

func randomSource(seed int64, n int) *featureio.MemorySource {
	rng := rand.New(rand.NewSource(seed))
	features := make([]binning.Feature, n)
	for i := range features {
		features[i] = binning.NewFeature(geom.Point{X: rng.Float64() * 10000, Y: rng.Float64() * 10000}, nil)
	}
	return featureio.NewMemorySource("EPSG:3857", features...)
}

func main() {
	engine := binning.NewEngine(binning.DefaultEngineOptions())
	store := featureio.NewMemoryStore()
	extent := &binning.Extent{MinX: 0, MinY: 0, MaxX: 10000, MaxY: 10000}

	// Twelve days of events binned on the same lattice
	var jobs []binning.Job
	for day := 1; day <= 12; day++ {
		opts := binning.DefaultOptions()
		opts.Extent = extent
		opts.Radius = 100
		name := fmt.Sprintf("day-%02d", day)
		jobs = append(jobs, binning.Job{
			Name:    name,
			Source:  randomSource(int64(day), 50000),
			Store:   store.Layer(name),
			Options: opts,
		})
	}

	start := time.Now()
	results, errs := engine.RunBatch(context.Background(), jobs, binning.BatchOptions{
		Workers:    4,
		SkipErrors: true,
		Progress: func(done, total int) {
			fmt.Printf("\rBinning: %d/%d", done, total)
		},
	})
	fmt.Printf("\nFinished in %v with %d errors\n", time.Since(start).Round(time.Millisecond), len(errs))

	for i, r := range results {
		if r != nil {
			fmt.Printf("  %s: %d bins\n", jobs[i].Name, r.Emitted)
		}
	}

	// Every job shares one generated lattice
	stats := engine.Cache().Stats()
	fmt.Printf("Lattice cache: %d lattices, %d hits, %d misses, %d KB\n",
		stats.LatticeCount, stats.Hits, stats.Misses, stats.UsedMemory/1024)

	// Indexed vs linear candidate search
	for _, disable := range []bool{false, true} {
		opts := binning.DefaultOptions()
		opts.Extent = extent
		opts.Radius = 100
		opts.DisableIndex = disable

		start := time.Now()
		if _, err := engine.Run(context.Background(), randomSource(99, 20000), store.Layer("bench"), opts); err != nil {
			fmt.Println(err)
			return
		}
		fmt.Printf("DisableIndex=%v: %v\n", disable, time.Since(start).Round(time.Millisecond))
	}
}
