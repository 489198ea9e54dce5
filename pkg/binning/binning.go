package binning

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ctessum/geom"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beetlebugorg/spatialbin/internal/crs"
	"github.com/beetlebugorg/spatialbin/internal/lattice"
	"github.com/beetlebugorg/spatialbin/internal/weight"
)

// Engine runs circular binning over feature streams.
//
// An Engine is safe for concurrent use; each Run owns its bins. The lattice
// cache is shared between runs.
//
// Example:
//
//	engine := binning.NewEngine(binning.DefaultEngineOptions())
//
//	opts := binning.DefaultOptions()
//	opts.Radius = 250
//	opts.Weight = "@population"
//
//	result, err := engine.Run(ctx, source, store, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Emitted %d of %d bins\n", result.Emitted, result.Bins)
type Engine struct {
	cache   *LatticeCache // nil disables caching
	maxBins int
	log     *zap.Logger
	metrics *Metrics
}

// NewEngine creates an engine with the given options.
func NewEngine(opts EngineOptions) *Engine {
	e := &Engine{
		maxBins: opts.MaxBins,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	if opts.LatticeCacheSize >= 0 {
		e.cache = NewLatticeCache(opts.LatticeCacheSize)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// Cache returns the lattice cache, or nil when caching is disabled.
func (e *Engine) Cache() *LatticeCache {
	return e.cache
}

// Result summarizes a committed run.
type Result struct {
	RunID           string        // Unique identifier of the run
	Schema          Schema        // Output feature type
	Extent          Extent        // Analysis extent, in the analysis CRS
	Radius          float64       // Effective bin radius
	Bins            int           // Bins in the lattice
	Emitted         int           // Output features written
	FeaturesRead    int           // Input features consumed
	FeaturesBinned  int           // Features that intersected at least one bin
	WeightErrors    int           // Features whose weight contributed zero after an error
	TransformErrors int           // Features skipped because their geometry could not be transformed
	Reprojected     bool          // Input and analysis CRS differ
	Elapsed         time.Duration // Wall time of the run
}

// runPlan is the resolved configuration of one run.
type runPlan struct {
	extent  Extent
	radius  float64
	weight  weight.Source
	forward *crs.Transform // input -> analysis, nil when equivalent
	inverse *crs.Transform // analysis -> input, nil when equivalent
	centers []geom.Point
}

// Run bins every feature of src and writes the bins to a sink obtained from
// store.
//
// The run is atomic: on success every emitted bin has been written and the
// sink closed; on any failure the sink is rolled back and closed, and the
// returned error is one of *ConfigurationError, *CoordinateSystemError,
// *InputError, *CancelledError or *EmissionError. Configuration and
// coordinate system errors are detected before the first feature is read
// and before the store is touched.
//
// src is consumed once. Per-feature weight failures never abort the run.
func (e *Engine) Run(ctx context.Context, src Source, store Store, opts Options) (result *Result, err error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	log := e.log.With(zap.String("run", res.RunID))

	defer func() {
		res.Elapsed = time.Since(start)
		e.metrics.observe(res, err, res.Elapsed)
		if err != nil {
			result = nil
			log.Warn("binning run failed",
				zap.Int("read", res.FeaturesRead),
				zap.Duration("elapsed", res.Elapsed),
				zap.Error(err))
			return
		}
		log.Info("binning run complete",
			zap.Int("bins", res.Bins),
			zap.Int("emitted", res.Emitted),
			zap.Int("read", res.FeaturesRead),
			zap.Int("binned", res.FeaturesBinned),
			zap.Int("weight_errors", res.WeightErrors),
			zap.Duration("elapsed", res.Elapsed))
	}()

	if src == nil {
		return nil, &ConfigurationError{Field: "source", Reason: "no input features"}
	}
	if store == nil {
		return nil, &ConfigurationError{Field: "store", Reason: "no output store"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := e.plan(src, opts)
	if err != nil {
		return nil, err
	}
	res.Extent = p.extent
	res.Radius = p.radius
	res.Bins = len(p.centers)
	res.Reprojected = p.forward != nil
	res.Schema = NewSchema(res.RunID, src.CRS())

	log.Debug("binning run configured",
		zap.String("input_crs", src.CRS()),
		zap.String("analysis_crs", p.extent.CRS),
		zap.Float64("radius", p.radius),
		zap.Int("bins", len(p.centers)),
		zap.Stringer("weight", p.weight))

	bins := newBins(p.centers, p.radius)

	sink, err := store.Begin(res.Schema)
	if err != nil {
		return nil, &EmissionError{Err: errors.Wrap(err, "begin output")}
	}
	defer func() {
		if err != nil {
			if rbErr := sink.Rollback(err); rbErr != nil {
				err = errors.CombineErrors(err, errors.Wrap(rbErr, "rollback"))
			}
		}
		if cErr := sink.Close(); cErr != nil {
			if err == nil {
				err = &EmissionError{Err: errors.Wrap(cErr, "close output")}
			} else {
				err = errors.CombineErrors(err, errors.Wrap(cErr, "close"))
			}
		}
	}()

	v := &aggregationVisitor{
		index:            newBinIndex(bins, !opts.DisableIndex),
		transform:        p.forward,
		weight:           p.weight,
		log:              log,
		progress:         opts.Progress,
		progressInterval: opts.ProgressInterval,
	}
	err = v.visit(ctx, src)
	res.FeaturesRead = v.read
	res.FeaturesBinned = v.binned
	res.WeightErrors = v.weightErrors
	res.TransformErrors = v.transformErrors
	if err != nil {
		return nil, err
	}
	if v.transformErrors > 0 {
		log.Warn("features skipped, geometry not transformable",
			zap.Int("count", v.transformErrors))
	}

	res.Emitted, err = emit(ctx, sink, bins, p.inverse, opts.OnlyValidBins)
	if err != nil {
		var cancelErr *CancelledError
		if errors.As(err, &cancelErr) {
			cancelErr.Read = res.FeaturesRead
		}
		return nil, err
	}

	return res, nil
}

// plan resolves extent, radius, weight, transforms and lattice. It reads no
// features and touches no output.
func (e *Engine) plan(src Source, opts Options) (*runPlan, error) {
	var extent Extent
	if opts.Extent != nil {
		extent = *opts.Extent
	} else {
		derived, err := src.Extent()
		if err != nil {
			return nil, &ConfigurationError{
				Field:  "extent",
				Reason: "not configured and not derivable from input",
				Err:    err,
			}
		}
		extent = derived
	}
	if extent.CRS == "" {
		extent.CRS = src.CRS()
	}
	if !extent.Valid() {
		return nil, &ConfigurationError{
			Field:  "extent",
			Reason: "edges must be finite with min <= max",
		}
	}

	radius := opts.Radius
	if !(radius > 0) {
		radius = extent.DefaultRadius()
	}
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, &ConfigurationError{
			Field:  "radius",
			Reason: "must resolve to a positive finite value",
		}
	}

	w, err := weight.Compile(opts.Weight)
	if err != nil {
		return nil, &ConfigurationError{
			Field:  "weight",
			Reason: "expression does not compile",
			Err:    err,
		}
	}

	forward, err := crs.Resolve(src.CRS(), extent.CRS)
	if err != nil {
		return nil, &CoordinateSystemError{Source: src.CRS(), Target: extent.CRS, Err: err}
	}
	var inverse *crs.Transform
	if forward != nil {
		inverse, err = forward.Invert()
		if err != nil {
			return nil, &CoordinateSystemError{Source: extent.CRS, Target: src.CRS(), Err: err}
		}
	}

	bounds := extent.Bounds()
	limit := float64(lattice.MaxCount)
	if e.maxBins > 0 && float64(e.maxBins) < limit {
		limit = float64(e.maxBins)
	}
	switch n := lattice.Size(bounds, radius); {
	case n > limit:
		return nil, &ConfigurationError{
			Field:  "radius",
			Reason: fmt.Sprintf("lattice of %.0f bins exceeds limit of %.0f", n, limit),
		}
	case !(n >= 1):
		return nil, &ConfigurationError{
			Field:  "radius",
			Reason: "lattice has no bins",
		}
	}

	var centers []geom.Point
	if e.cache != nil {
		centers = e.cache.Get(extent, radius)
	} else {
		centers = lattice.Generate(bounds, radius)
	}

	return &runPlan{
		extent:  extent,
		radius:  radius,
		weight:  w,
		forward: forward,
		inverse: inverse,
		centers: centers,
	}, nil
}

// emit writes bins in id order. Footprints are built in analysis space and
// carried back to the input CRS when the two differ.
func emit(ctx context.Context, sink Sink, bins []*Bin, inverse *crs.Transform, onlyValid bool) (int, error) {
	emitted := 0
	for _, b := range bins {
		if onlyValid && b.count == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return emitted, &CancelledError{Err: err}
		}

		footprint := b.Footprint()
		if inverse != nil {
			g, err := inverse.Apply(footprint)
			if err != nil {
				return emitted, &EmissionError{BinID: b.id, Err: errors.Wrap(err, "transform footprint")}
			}
			poly, ok := g.(geom.Polygon)
			if !ok {
				return emitted, &EmissionError{BinID: b.id, Err: errors.Newf("transformed footprint is %T", g)}
			}
			footprint = poly
		}

		out := OutputFeature{
			ID:        b.id,
			Aggregate: b.aggregate,
			Count:     b.count,
			Geometry:  footprint,
		}
		if err := sink.Write(out); err != nil {
			return emitted, &EmissionError{BinID: b.id, Err: err}
		}
		emitted++
	}
	return emitted, nil
}

// Run bins src with a default engine. See Engine.Run.
func Run(ctx context.Context, src Source, store Store, opts Options) (*Result, error) {
	return defaultEngine.Run(ctx, src, store, opts)
}

// Count bins src in counting mode over the input extent with the derived
// radius, emitting only non-empty bins.
func Count(ctx context.Context, src Source, store Store) (*Result, error) {
	return defaultEngine.Run(ctx, src, store, DefaultOptions())
}

var defaultEngine = NewEngine(DefaultEngineOptions())

// errorOutcome classifies err for metrics.
func errorOutcome(err error) string {
	var (
		cfgErr    *ConfigurationError
		crsErr    *CoordinateSystemError
		inputErr  *InputError
		cancelErr *CancelledError
		emitErr   *EmissionError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &crsErr):
		return "coordinate_system"
	case errors.As(err, &inputErr):
		return "input"
	case errors.As(err, &cancelErr):
		return "cancelled"
	case errors.As(err, &emitErr):
		return "emission"
	default:
		return "error"
	}
}
