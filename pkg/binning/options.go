package binning

import (
	"go.uber.org/zap"
)

// Options configures one binning run.
type Options struct {
	// Extent is the analysis extent. Optional: when nil, the extent of the
	// input Source is used. An Extent with an empty CRS is taken to be in
	// the input CRS.
	Extent *Extent

	// Radius is the bin radius in analysis units.
	// Optional: when <= 0, min(width, height) / 20 of the extent is used.
	Radius float64

	// Weight is an expression evaluated per feature, e.g. "@population".
	// Optional: when empty, every feature contributes 1 (counting mode).
	Weight string

	// OnlyValidBins excludes bins with count == 0 from the output.
	// When false, every lattice bin is emitted, empty ones with aggregate 0.
	OnlyValidBins bool

	// Progress is an optional callback invoked every ProgressInterval
	// features with the number of features read so far.
	Progress func(read int)

	// ProgressInterval sets how often Progress is invoked.
	// Default: 1000
	ProgressInterval int

	// DisableIndex makes bin assignment scan every bin instead of querying
	// the R-tree. Results are identical; only useful for comparison.
	DisableIndex bool
}

// DefaultOptions returns options with defaults: counting mode, derived
// radius, source extent, and only non-empty bins emitted.
func DefaultOptions() Options {
	return Options{
		OnlyValidBins:    true,
		ProgressInterval: 1000,
	}
}

// EngineOptions configures an Engine shared across runs.
type EngineOptions struct {
	// LatticeCacheSize sets the memory limit of the lattice cache in bytes.
	// Set to 0 for an unlimited cache, or negative to disable caching.
	// Default: 64MB
	LatticeCacheSize int64

	// MaxBins rejects runs whose lattice would exceed this many bins.
	// Set to 0 to use only the hard ceiling of lattice.MaxCount.
	// Default: 10,000,000
	MaxBins int

	// Logger receives diagnostics. The engine never logs elsewhere.
	// Default: nil (no logging)
	Logger *zap.Logger

	// Metrics records run statistics.
	// Default: nil (no metrics)
	Metrics *Metrics
}

// DefaultEngineOptions returns engine options with defaults.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		LatticeCacheSize: 64 * 1024 * 1024, // 64MB
		MaxBins:          10_000_000,
	}
}
