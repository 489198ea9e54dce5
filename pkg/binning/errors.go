package binning

import (
	"fmt"
)

// ConfigurationError indicates the run could not be configured: the extent is
// missing or degenerate, the radius resolves to zero or less, the weight
// expression does not compile, or the lattice would be too large.
//
// Detected before any feature is read. Fatal, not retried.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CoordinateSystemError indicates no transform exists between the input CRS
// and the analysis CRS. Detected before any feature is read. Fatal.
type CoordinateSystemError struct {
	Source string
	Target string
	Err    error
}

func (e *CoordinateSystemError) Error() string {
	return fmt.Sprintf("no coordinate transform from %q to %q: %v", e.Source, e.Target, e.Err)
}

func (e *CoordinateSystemError) Unwrap() error { return e.Err }

// WeightEvaluationError describes a per-feature weight failure.
//
// It never aborts a run: the feature contributes zero and the run continues.
// It is reported to the diagnostics logger only.
type WeightEvaluationError struct {
	Feature int // Ordinal of the feature in the input stream (1-based)
	Err     error
}

func (e *WeightEvaluationError) Error() string {
	return fmt.Sprintf("weight of feature %d: %v", e.Feature, e.Err)
}

func (e *WeightEvaluationError) Unwrap() error { return e.Err }

// EmissionError indicates a failure while constructing or writing output.
//
// All output of the run has been rolled back when this error is returned.
type EmissionError struct {
	BinID int // Bin being emitted, 0 when the failure is not tied to a bin
	Err   error
}

func (e *EmissionError) Error() string {
	if e.BinID != 0 {
		return fmt.Sprintf("emit bin %d: %v", e.BinID, e.Err)
	}
	return fmt.Sprintf("emit: %v", e.Err)
}

func (e *EmissionError) Unwrap() error { return e.Err }

// InputError indicates the feature stream failed while being read.
// The run is aborted and its output rolled back.
type InputError struct {
	Feature int // Ordinal of the feature that failed (1-based)
	Err     error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("read feature %d: %v", e.Feature, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// CancelledError indicates the run observed cancellation. Nothing is emitted.
type CancelledError struct {
	Read int // Features read before cancellation was observed
	Err  error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled after %d features: %v", e.Read, e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }
