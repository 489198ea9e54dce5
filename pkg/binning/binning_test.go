package binning

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"testing"

	"github.com/ctessum/geom"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/beetlebugorg/spatialbin/internal/lattice"
)

// sliceSource streams a fixed feature slice.
type sliceSource struct {
	crs      string
	features []Feature
	extent   *Extent
	failAt   int // 1-based read that fails, 0 for never
	pos      int
}

func (s *sliceSource) CRS() string { return s.crs }

func (s *sliceSource) Next() (Feature, error) {
	if s.failAt > 0 && s.pos+1 == s.failAt {
		return nil, errors.New("stream broken")
	}
	if s.pos >= len(s.features) {
		return nil, io.EOF
	}
	f := s.features[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceSource) Extent() (Extent, error) {
	if s.extent == nil {
		return Extent{}, ErrNoExtent
	}
	return *s.extent, nil
}

// recordingStore keeps committed features and records sink calls.
type recordingStore struct {
	begun     int
	failWrite int // bin id whose write fails, 0 for never
	schema    Schema
	pending   []OutputFeature
	committed []OutputFeature
	rollbacks int
	closes    int
}

func (s *recordingStore) Begin(schema Schema) (Sink, error) {
	s.begun++
	s.schema = schema
	s.pending = nil
	return &recordingSink{store: s}, nil
}

type recordingSink struct {
	store      *recordingStore
	rolledBack bool
}

func (k *recordingSink) Write(f OutputFeature) error {
	if k.store.failWrite != 0 && f.ID == k.store.failWrite {
		return errors.New("disk full")
	}
	k.store.pending = append(k.store.pending, f)
	return nil
}

func (k *recordingSink) Rollback(error) error {
	k.rolledBack = true
	k.store.rollbacks++
	k.store.pending = nil
	return nil
}

func (k *recordingSink) Close() error {
	k.store.closes++
	if !k.rolledBack {
		k.store.committed = k.store.pending
	}
	k.store.pending = nil
	return nil
}

func pointFeature(x, y float64, attrs map[string]interface{}) Feature {
	return NewFeature(geom.Point{X: x, Y: y}, attrs)
}

// expectedBins brute-forces the ids of bins whose footprint g intersects.
func expectedBins(extent Extent, radius float64, g geom.Geom) map[int]bool {
	ids := make(map[int]bool)
	for i, c := range lattice.Generate(extent.Bounds(), radius) {
		if lattice.Intersects(g, lattice.Footprint(c, radius)) {
			ids[i+1] = true
		}
	}
	return ids
}

func TestRunEmptyInputEmitsFullLattice(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}
	opts := DefaultOptions()
	opts.Extent = &extent
	opts.Radius = 10
	opts.OnlyValidBins = false

	store := &recordingStore{}
	result, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), &sliceSource{}, store, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := lattice.Count(extent.Bounds(), 10)
	if result.Bins != want {
		t.Errorf("Expected %d bins, got %d", want, result.Bins)
	}
	if len(store.committed) != want {
		t.Fatalf("Expected %d output features, got %d", want, len(store.committed))
	}
	for i, f := range store.committed {
		if f.ID != i+1 {
			t.Errorf("Expected id %d at position %d, got %d", i+1, i, f.ID)
		}
		if f.Aggregate != 0 || f.Count != 0 {
			t.Errorf("Bin %d: expected empty, got val=%v count=%d", f.ID, f.Aggregate, f.Count)
		}
	}
}

func TestRunEmptyInputOnlyValidBins(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}
	opts := DefaultOptions()
	opts.Extent = &extent
	opts.Radius = 10

	store := &recordingStore{}
	result, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), &sliceSource{}, store, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Emitted != 0 || len(store.committed) != 0 {
		t.Errorf("Expected no output, got %d features", len(store.committed))
	}
	if store.closes != 1 {
		t.Errorf("Expected sink closed once, got %d", store.closes)
	}
}

func TestRunSinglePoint(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 20, MaxY: 20}
	opts := DefaultOptions()
	opts.Extent = &extent
	opts.Radius = 5

	pt := geom.Point{X: 10, Y: 10}
	src := &sliceSource{features: []Feature{NewFeature(pt, nil)}}
	store := &recordingStore{}

	result, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), src, store, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := expectedBins(extent, 5, pt)
	if len(want) == 0 {
		t.Fatal("Expected the point to fall in at least one bin")
	}
	if len(store.committed) != len(want) {
		t.Fatalf("Expected %d bins, got %d", len(want), len(store.committed))
	}
	for _, f := range store.committed {
		if !want[f.ID] {
			t.Errorf("Unexpected bin %d in output", f.ID)
		}
		if f.Count != 1 || f.Aggregate != 1 {
			t.Errorf("Bin %d: expected count=1 val=1, got count=%d val=%v", f.ID, f.Count, f.Aggregate)
		}
	}
	if result.FeaturesRead != 1 || result.FeaturesBinned != 1 {
		t.Errorf("Expected 1 read and 1 binned, got %d and %d", result.FeaturesRead, result.FeaturesBinned)
	}
}

func TestRunWeightedAggregate(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 20, MaxY: 20}
	opts := DefaultOptions()
	opts.Extent = &extent
	opts.Radius = 5
	opts.Weight = "@w"

	src := &sliceSource{features: []Feature{
		pointFeature(10, 10, map[string]interface{}{"w": 3}),
		pointFeature(10, 10, map[string]interface{}{"w": 4.0}),
	}}
	store := &recordingStore{}

	if _, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), src, store, opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(store.committed) == 0 {
		t.Fatal("Expected output bins")
	}
	for _, f := range store.committed {
		if f.Aggregate != 7 || f.Count != 2 {
			t.Errorf("Bin %d: expected val=7 count=2, got val=%v count=%d", f.ID, f.Aggregate, f.Count)
		}
	}
}

func TestRunWeightErrorContributesZero(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 20, MaxY: 20}
	opts := DefaultOptions()
	opts.Extent = &extent
	opts.Radius = 5
	opts.Weight = "@w"

	src := &sliceSource{features: []Feature{
		pointFeature(10, 10, map[string]interface{}{"w": -2}),
		pointFeature(10, 10, map[string]interface{}{"w": "abc"}),
		pointFeature(10, 10, map[string]interface{}{"w": 5}),
	}}
	store := &recordingStore{}

	result, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), src, store, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.WeightErrors != 2 {
		t.Errorf("Expected 2 weight errors, got %d", result.WeightErrors)
	}
	for _, f := range store.committed {
		if f.Aggregate != 5 || f.Count != 3 {
			t.Errorf("Bin %d: expected val=5 count=3, got val=%v count=%d", f.ID, f.Aggregate, f.Count)
		}
	}
}

func TestRunLineAndPolygon(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}
	opts := DefaultOptions()
	opts.Extent = &extent
	opts.Radius = 10

	line := geom.LineString{{X: 5, Y: 50}, {X: 95, Y: 50}}
	poly := geom.Polygon{{{X: 40, Y: 40}, {X: 60, Y: 40}, {X: 60, Y: 60}, {X: 40, Y: 60}, {X: 40, Y: 40}}}
	src := &sliceSource{features: []Feature{NewFeature(line, nil), NewFeature(poly, nil)}}
	store := &recordingStore{}

	if _, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), src, store, opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	lineBins := expectedBins(extent, 10, line)
	polyBins := expectedBins(extent, 10, poly)
	got := make(map[int]int)
	for _, f := range store.committed {
		got[f.ID] = f.Count
	}
	for id := range lineBins {
		want := 1
		if polyBins[id] {
			want = 2
		}
		if got[id] != want {
			t.Errorf("Bin %d: expected count %d, got %d", id, want, got[id])
		}
	}
	for id := range polyBins {
		if got[id] == 0 {
			t.Errorf("Bin %d: expected polygon contribution", id)
		}
	}
}

func TestRunConservation(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 1000}
	opts := DefaultOptions()
	opts.Extent = &extent
	opts.Radius = 40
	opts.Weight = "@w"
	opts.OnlyValidBins = false

	rng := rand.New(rand.NewSource(42))
	var features []Feature
	wantCounts := make(map[int]int)
	wantTotal := 0
	for i := 0; i < 500; i++ {
		f := pointFeature(rng.Float64()*1000, rng.Float64()*1000, map[string]interface{}{"w": 2.5})
		features = append(features, f)
		bins := expectedBins(extent, 40, f.Geometry())
		for id := range bins {
			wantCounts[id]++
		}
		wantTotal += len(bins)
	}

	store := &recordingStore{}
	result, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), &sliceSource{features: features}, store, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Every point inside the extent lands in at least one bin.
	if result.FeaturesBinned != len(features) {
		t.Errorf("Expected %d binned features, got %d", len(features), result.FeaturesBinned)
	}

	// Each feature adds its full weight to every bin it intersects.
	total := 0
	sum := 0.0
	for _, f := range store.committed {
		if f.Count != wantCounts[f.ID] {
			t.Errorf("Bin %d: expected count %d, got %d", f.ID, wantCounts[f.ID], f.Count)
		}
		if f.Aggregate != 2.5*float64(f.Count) {
			t.Errorf("Bin %d: expected val %v, got %v", f.ID, 2.5*float64(f.Count), f.Aggregate)
		}
		total += f.Count
		sum += f.Aggregate
	}
	if total != wantTotal {
		t.Errorf("Expected total count %d, got %d", wantTotal, total)
	}
	if sum != 2.5*float64(wantTotal) {
		t.Errorf("Expected total val %v, got %v", 2.5*float64(wantTotal), sum)
	}
	if total <= len(features) {
		t.Errorf("Expected overlapping bins to count some features twice, total %d", total)
	}
}

func TestRunDeterministic(t *testing.T) {
	extent := Extent{MinX: -50, MinY: -50, MaxX: 250, MaxY: 150}
	opts := DefaultOptions()
	opts.Extent = &extent
	opts.Radius = 12.5
	opts.Weight = "@v"

	makeSource := func() Source {
		rng := rand.New(rand.NewSource(7))
		var features []Feature
		for i := 0; i < 200; i++ {
			features = append(features, pointFeature(
				rng.Float64()*300-50, rng.Float64()*200-50,
				map[string]interface{}{"v": rng.Intn(10)}))
		}
		return &sliceSource{features: features}
	}

	engine := NewEngine(DefaultEngineOptions())
	first, second := &recordingStore{}, &recordingStore{}
	if _, err := engine.Run(context.Background(), makeSource(), first, opts); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if _, err := engine.Run(context.Background(), makeSource(), second, opts); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if len(first.committed) != len(second.committed) {
		t.Fatalf("Expected identical output, got %d and %d bins", len(first.committed), len(second.committed))
	}
	for i := range first.committed {
		a, b := first.committed[i], second.committed[i]
		if a.ID != b.ID || a.Aggregate != b.Aggregate || a.Count != b.Count {
			t.Errorf("Output %d differs: %+v vs %+v", i, a, b)
		}
	}
	if first.schema.RunID == second.schema.RunID {
		t.Error("Expected distinct run ids")
	}
}

func TestRunIndexMatchesLinear(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 500, MaxY: 500}
	rng := rand.New(rand.NewSource(3))
	var features []Feature
	for i := 0; i < 100; i++ {
		x, y := rng.Float64()*500, rng.Float64()*500
		features = append(features, NewFeature(geom.LineString{{X: x, Y: y}, {X: x + 30, Y: y + 10}}, nil))
	}

	run := func(disable bool) []OutputFeature {
		opts := DefaultOptions()
		opts.Extent = &extent
		opts.Radius = 20
		opts.DisableIndex = disable
		store := &recordingStore{}
		if _, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), &sliceSource{features: features}, store, opts); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		return store.committed
	}

	indexed, linear := run(false), run(true)
	if len(indexed) != len(linear) {
		t.Fatalf("Expected same bins, got %d indexed and %d linear", len(indexed), len(linear))
	}
	for i := range indexed {
		if indexed[i].ID != linear[i].ID || indexed[i].Count != linear[i].Count {
			t.Errorf("Bin mismatch at %d: %+v vs %+v", i, indexed[i], linear[i])
		}
	}
}

func TestRunDerivesExtentAndRadius(t *testing.T) {
	src := &sliceSource{
		crs:      "EPSG:3857",
		extent:   &Extent{MinX: 0, MinY: 0, MaxX: 200, MaxY: 100},
		features: []Feature{pointFeature(50, 50, nil)},
	}
	store := &recordingStore{}

	result, err := Count(context.Background(), src, store)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if result.Radius != 5 {
		t.Errorf("Expected derived radius 5, got %v", result.Radius)
	}
	if result.Extent.CRS != "EPSG:3857" {
		t.Errorf("Expected extent CRS from input, got %q", result.Extent.CRS)
	}
	if store.schema.CRS != "EPSG:3857" {
		t.Errorf("Expected output CRS EPSG:3857, got %q", store.schema.CRS)
	}
	if result.Reprojected {
		t.Error("Expected no reprojection")
	}
}

func TestRunConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    *sliceSource
		extent *Extent
		radius float64
		weight string
		field  string
	}{
		{
			name:  "no extent",
			src:   &sliceSource{},
			field: "extent",
		},
		{
			name:   "non-finite extent",
			src:    &sliceSource{},
			extent: &Extent{MinX: 0, MinY: 0, MaxX: math.NaN(), MaxY: 10},
			field:  "extent",
		},
		{
			name:   "inverted extent",
			src:    &sliceSource{},
			extent: &Extent{MinX: 10, MinY: 0, MaxX: 0, MaxY: 10},
			field:  "extent",
		},
		{
			name:   "zero height extent without radius",
			src:    &sliceSource{},
			extent: &Extent{MinX: 0, MinY: 5, MaxX: 10, MaxY: 5},
			field:  "radius",
		},
		{
			name:   "bad weight",
			src:    &sliceSource{},
			extent: &Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10},
			weight: "@a +",
			field:  "weight",
		},
		{
			name:   "lattice too large",
			src:    &sliceSource{},
			extent: &Extent{MinX: 0, MinY: 0, MaxX: 1e6, MaxY: 1e6},
			radius: 1,
			field:  "radius",
		},
		{
			name:   "lattice dimensions overflow int",
			src:    &sliceSource{},
			extent: &Extent{MinX: 0, MinY: 0, MaxX: 1e10, MaxY: 1e10},
			radius: 1e-10,
			field:  "radius",
		},
		{
			name:   "lattice product overflows int",
			src:    &sliceSource{},
			extent: &Extent{MinX: 0, MinY: 0, MaxX: 1e10, MaxY: 1e10},
			radius: 0.912673,
			field:  "radius",
		},
	}

	engine := NewEngine(EngineOptions{MaxBins: 1000})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Extent = tt.extent
			opts.Radius = tt.radius
			opts.Weight = tt.weight

			store := &recordingStore{}
			result, err := engine.Run(context.Background(), tt.src, store, opts)
			if result != nil {
				t.Error("Expected nil result")
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigurationError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, cfgErr.Field)
			}
			if store.begun != 0 {
				t.Error("Expected store untouched")
			}
			if tt.src.pos != 0 {
				t.Errorf("Expected no features read, got %d", tt.src.pos)
			}
		})
	}
}

// TestRunOversizedLattice checks the hard lattice ceiling applies under
// default options and with no configured limit.
func TestRunOversizedLattice(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 1e10, MaxY: 1e10}
	unlimited := DefaultEngineOptions()
	unlimited.MaxBins = 0

	for _, engineOpts := range []EngineOptions{DefaultEngineOptions(), unlimited} {
		for _, radius := range []float64{1e-10, 0.912673, 1} {
			opts := DefaultOptions()
			opts.Extent = &extent
			opts.Radius = radius

			src := &sliceSource{features: []Feature{NewFeature(geom.Point{X: 1, Y: 1}, nil)}}
			store := &recordingStore{}
			_, err := NewEngine(engineOpts).Run(context.Background(), src, store, opts)

			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) || cfgErr.Field != "radius" {
				t.Fatalf("radius %v, MaxBins %d: expected radius ConfigurationError, got %v",
					radius, engineOpts.MaxBins, err)
			}
			if store.begun != 0 {
				t.Errorf("radius %v: expected store untouched", radius)
			}
		}
	}
}

func TestRunSinglePointExtentWithRadius(t *testing.T) {
	extent := Extent{MinX: 5, MinY: 5, MaxX: 5, MaxY: 5}
	opts := DefaultOptions()
	opts.Extent = &extent
	opts.Radius = 1
	opts.OnlyValidBins = false

	store := &recordingStore{}
	result, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), &sliceSource{}, store, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Bins < 1 {
		t.Errorf("Expected at least one bin, got %d", result.Bins)
	}
}

func TestRunCoordinateSystemError(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10, CRS: "EPSG:1"}
	opts := DefaultOptions()
	opts.Extent = &extent

	src := &sliceSource{crs: "EPSG:4326"}
	store := &recordingStore{}
	_, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), src, store, opts)

	var crsErr *CoordinateSystemError
	if !errors.As(err, &crsErr) {
		t.Fatalf("Expected CoordinateSystemError, got %v", err)
	}
	if store.begun != 0 {
		t.Error("Expected store untouched")
	}
}

func TestRunReprojected(t *testing.T) {
	// Analysis in degrees, features and output in web mercator.
	extent := Extent{MinX: 9, MinY: 9, MaxX: 11, MaxY: 11, CRS: "EPSG:4326"}
	opts := DefaultOptions()
	opts.Extent = &extent
	opts.Radius = 0.5

	// (10, 10) degrees in EPSG:3857
	x, y := 1113194.9079327357, 1118889.9748579594
	src := &sliceSource{crs: "EPSG:3857", features: []Feature{pointFeature(x, y, nil)}}
	store := &recordingStore{}

	result, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), src, store, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Reprojected {
		t.Error("Expected reprojection")
	}

	want := expectedBins(extent, 0.5, geom.Point{X: 10, Y: 10})
	if len(store.committed) != len(want) {
		t.Fatalf("Expected %d bins, got %d", len(want), len(store.committed))
	}
	for _, f := range store.committed {
		b := f.Geometry.Bounds()
		if b.Min.X < 900000 || b.Max.X > 1300000 {
			t.Errorf("Bin %d: footprint not in output CRS, x range %v..%v", f.ID, b.Min.X, b.Max.X)
		}
	}
}

func TestRunEmissionFailureRollsBack(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}
	opts := DefaultOptions()
	opts.Extent = &extent
	opts.Radius = 10
	opts.OnlyValidBins = false

	store := &recordingStore{failWrite: 5}
	_, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), &sliceSource{}, store, opts)

	var emitErr *EmissionError
	if !errors.As(err, &emitErr) {
		t.Fatalf("Expected EmissionError, got %v", err)
	}
	if emitErr.BinID != 5 {
		t.Errorf("Expected failure at bin 5, got %d", emitErr.BinID)
	}
	if store.rollbacks != 1 || store.closes != 1 {
		t.Errorf("Expected one rollback and one close, got %d and %d", store.rollbacks, store.closes)
	}
	if len(store.committed) != 0 {
		t.Errorf("Expected no committed output, got %d features", len(store.committed))
	}
}

func TestRunInputFailureRollsBack(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}
	opts := DefaultOptions()
	opts.Extent = &extent

	src := &sliceSource{
		features: []Feature{pointFeature(1, 1, nil), pointFeature(2, 2, nil), pointFeature(3, 3, nil)},
		failAt:   3,
	}
	store := &recordingStore{}
	_, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), src, store, opts)

	var inputErr *InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("Expected InputError, got %v", err)
	}
	if inputErr.Feature != 3 {
		t.Errorf("Expected failure at feature 3, got %d", inputErr.Feature)
	}
	if store.rollbacks != 1 || len(store.committed) != 0 {
		t.Errorf("Expected rollback with no output, got %d rollbacks and %d features",
			store.rollbacks, len(store.committed))
	}
}

func TestRunCancelled(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}
	opts := DefaultOptions()
	opts.Extent = &extent

	ctx, cancel := context.WithCancel(context.Background())
	opts.ProgressInterval = 2
	opts.Progress = func(read int) {
		if read == 2 {
			cancel()
		}
	}

	var features []Feature
	for i := 0; i < 10; i++ {
		features = append(features, pointFeature(float64(i*10), 50, nil))
	}
	store := &recordingStore{}
	_, err := NewEngine(DefaultEngineOptions()).Run(ctx, &sliceSource{features: features}, store, opts)

	var cancelErr *CancelledError
	if !errors.As(err, &cancelErr) {
		t.Fatalf("Expected CancelledError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("Expected error to wrap context.Canceled")
	}
	if cancelErr.Read != 2 {
		t.Errorf("Expected cancellation after 2 features, got %d", cancelErr.Read)
	}
	if store.rollbacks != 1 || len(store.committed) != 0 {
		t.Errorf("Expected rollback with no output, got %d rollbacks and %d features",
			store.rollbacks, len(store.committed))
	}
}

func TestRunNilGeometryIsCounted(t *testing.T) {
	extent := Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	opts := DefaultOptions()
	opts.Extent = &extent

	src := &sliceSource{features: []Feature{NewFeature(nil, nil), pointFeature(5, 5, nil)}}
	result, err := NewEngine(DefaultEngineOptions()).Run(context.Background(), src, &recordingStore{}, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.FeaturesRead != 2 || result.FeaturesBinned != 1 {
		t.Errorf("Expected 2 read and 1 binned, got %d and %d", result.FeaturesRead, result.FeaturesBinned)
	}
}

func TestRunMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	engine := NewEngine(EngineOptions{Metrics: metrics})

	extent := Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	opts := DefaultOptions()
	opts.Extent = &extent
	src := &sliceSource{features: []Feature{pointFeature(5, 5, nil), pointFeature(6, 6, nil)}}

	if _, err := engine.Run(context.Background(), src, &recordingStore{}, opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := engine.Run(context.Background(), &sliceSource{}, &recordingStore{}, DefaultOptions()); err == nil {
		t.Fatal("Expected configuration error")
	}

	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful run, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues("configuration")); got != 1 {
		t.Errorf("Expected 1 configuration failure, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.features); got != 2 {
		t.Errorf("Expected 2 features read, got %v", got)
	}
}

func TestErrorOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ConfigurationError{Field: "radius"}, "configuration"},
		{&CoordinateSystemError{Err: errors.New("x")}, "coordinate_system"},
		{&InputError{Err: errors.New("x")}, "input"},
		{&CancelledError{Err: context.Canceled}, "cancelled"},
		{&EmissionError{Err: errors.New("x")}, "emission"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		if got := errorOutcome(tt.err); got != tt.want {
			t.Errorf("errorOutcome(%v) = %q, expected %q", tt.err, got, tt.want)
		}
	}
}
