package lattice

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
)

func bounds(minX, minY, maxX, maxY float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: minX, Y: minY},
		Max: geom.Point{X: maxX, Y: maxY},
	}
}

// TestGenerateDeterministic verifies identical input yields identical centers.
func TestGenerateDeterministic(t *testing.T) {
	b := bounds(-12.5, 3, 240, 97.25)
	first := Generate(b, 7.5)
	second := Generate(b, 7.5)

	if len(first) == 0 {
		t.Fatal("Expected centers, got none")
	}
	if len(first) != len(second) {
		t.Fatalf("Expected %d centers on second run, got %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("center[%d] differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestGenerateCount(t *testing.T) {
	tests := []struct {
		name   string
		bounds *geom.Bounds
		radius float64
	}{
		{"square", bounds(0, 0, 100, 100), 10},
		{"wide", bounds(0, 0, 1000, 10), 5},
		{"tall", bounds(-5, -500, 5, 500), 3},
		{"point", bounds(4, 4, 4, 4), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			centers := Generate(tt.bounds, tt.radius)
			if got, want := len(centers), Count(tt.bounds, tt.radius); got != want {
				t.Errorf("len(Generate) = %d, Count = %d", got, want)
			}
			if len(centers) == 0 {
				t.Error("Expected at least one center")
			}
		})
	}
}

// TestSizeOverflow verifies oversized lattices are reported without
// wrapping and are never generated.
func TestSizeOverflow(t *testing.T) {
	b := bounds(0, 0, 1e10, 1e10)

	for _, radius := range []float64{1e-10, 0.912673} {
		size := Size(b, radius)
		if !(size > MaxCount) {
			t.Errorf("radius %v: expected size above MaxCount, got %v", radius, size)
		}
		if rows, cols := Dimensions(b, radius); rows != 0 || cols != 0 {
			t.Errorf("radius %v: expected (0, 0), got (%d, %d)", radius, rows, cols)
		}
		if n := Count(b, radius); n != 0 {
			t.Errorf("radius %v: expected count 0, got %d", radius, n)
		}
		if centers := Generate(b, radius); centers != nil {
			t.Errorf("radius %v: expected no centers, got %d", radius, len(centers))
		}
	}

	if got, want := Size(bounds(0, 0, 100, 100), 10), float64(Count(bounds(0, 0, 100, 100), 10)); got != want {
		t.Errorf("Expected Size %v to match Count %v", got, want)
	}
}

func TestGenerateInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		bounds *geom.Bounds
		radius float64
	}{
		{"nil bounds", nil, 1},
		{"zero radius", bounds(0, 0, 10, 10), 0},
		{"negative radius", bounds(0, 0, 10, 10), -1},
		{"NaN radius", bounds(0, 0, 10, 10), math.NaN()},
		{"inverted bounds", bounds(10, 10, 0, 0), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if centers := Generate(tt.bounds, tt.radius); centers != nil {
				t.Errorf("Expected nil centers, got %d", len(centers))
			}
		})
	}
}

// TestGenerateCoverage samples the extent and checks every sample lies in at
// least one footprint.
func TestGenerateCoverage(t *testing.T) {
	tests := []struct {
		name   string
		bounds *geom.Bounds
		radius float64
	}{
		{"100x100 r10", bounds(0, 0, 100, 100), 10},
		{"20x20 r5", bounds(0, 0, 20, 20), 5},
		{"offset r2.3", bounds(-31.7, 12.1, 3.3, 40.9), 2.3},
		{"smaller than cell", bounds(1, 1, 1.5, 1.2), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			centers := Generate(tt.bounds, tt.radius)
			footprints := make([]geom.Polygon, len(centers))
			for i, c := range centers {
				footprints[i] = Footprint(c, tt.radius)
			}

			const steps = 37
			w := tt.bounds.Max.X - tt.bounds.Min.X
			h := tt.bounds.Max.Y - tt.bounds.Min.Y
			for i := 0; i <= steps; i++ {
				for j := 0; j <= steps; j++ {
					p := geom.Point{
						X: tt.bounds.Min.X + w*float64(i)/steps,
						Y: tt.bounds.Min.Y + h*float64(j)/steps,
					}
					covered := false
					for _, fp := range footprints {
						if Intersects(p, fp) {
							covered = true
							break
						}
					}
					if !covered {
						t.Fatalf("point %v not covered by any bin", p)
					}
				}
			}
		})
	}
}

func TestFootprintShape(t *testing.T) {
	center := geom.Point{X: 10, Y: -4}
	radius := 3.0
	fp := Footprint(center, radius)

	if len(fp) != 1 {
		t.Fatalf("Expected 1 ring, got %d", len(fp))
	}
	ring := fp[0]
	if len(ring) != Segments+1 {
		t.Errorf("Expected %d vertices, got %d", Segments+1, len(ring))
	}
	if ring[0] != ring[len(ring)-1] {
		t.Error("Expected closed ring")
	}

	area := shoelace(ring)
	circle := math.Pi * radius * radius
	if errPct := (circle - area) / circle; errPct < 0 || errPct >= 0.01 {
		t.Errorf("Area error %.4f, want in [0, 0.01)", errPct)
	}

	// counter-clockwise
	if area <= 0 {
		t.Errorf("Expected counter-clockwise ring, signed area %f", area)
	}
}

func shoelace(ring geom.Path) float64 {
	sum := 0.0
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return sum / 2
}

func TestIntersects(t *testing.T) {
	fp := Footprint(geom.Point{X: 0, Y: 0}, 10)

	tests := []struct {
		name string
		g    geom.Geom
		want bool
	}{
		{"point inside", geom.Point{X: 1, Y: 1}, true},
		{"point at center", geom.Point{X: 0, Y: 0}, true},
		{"point outside", geom.Point{X: 20, Y: 0}, false},
		{"point on vertex", geom.Point{X: 10, Y: 0}, true},
		{"multipoint one inside", geom.MultiPoint{{X: 50, Y: 50}, {X: 2, Y: 2}}, true},
		{"multipoint none inside", geom.MultiPoint{{X: 50, Y: 50}, {X: -50, Y: 2}}, false},
		{"line crossing", geom.LineString{{X: -20, Y: 0}, {X: 20, Y: 0}}, true},
		{"line outside", geom.LineString{{X: -20, Y: 15}, {X: 20, Y: 15}}, false},
		{"line inside", geom.LineString{{X: -1, Y: 0}, {X: 1, Y: 0}}, true},
		{"multiline", geom.MultiLineString{
			{{X: -20, Y: 15}, {X: 20, Y: 15}},
			{{X: 0, Y: -20}, {X: 0, Y: 20}},
		}, true},
		{"polygon containing footprint", geom.Polygon{{
			{X: -50, Y: -50}, {X: 50, Y: -50}, {X: 50, Y: 50}, {X: -50, Y: 50}, {X: -50, Y: -50},
		}}, true},
		{"polygon inside footprint", geom.Polygon{{
			{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}, {X: -1, Y: -1},
		}}, true},
		{"polygon overlapping edge", geom.Polygon{{
			{X: 5, Y: -2}, {X: 30, Y: -2}, {X: 30, Y: 2}, {X: 5, Y: 2}, {X: 5, Y: -2},
		}}, true},
		{"polygon disjoint", geom.Polygon{{
			{X: 20, Y: 20}, {X: 30, Y: 20}, {X: 30, Y: 30}, {X: 20, Y: 30}, {X: 20, Y: 20},
		}}, false},
		{"multipolygon", geom.MultiPolygon{
			{{{X: 20, Y: 20}, {X: 30, Y: 20}, {X: 30, Y: 30}, {X: 20, Y: 20}}},
			{{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 0, Y: 1}, {X: -1, Y: -1}}},
		}, true},
		{"nil geometry", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Intersects(tt.g, fp); got != tt.want {
				t.Errorf("Intersects() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSegmentsIntersect(t *testing.T) {
	p := func(x, y float64) geom.Point { return geom.Point{X: x, Y: y} }

	tests := []struct {
		name       string
		a, b, c, d geom.Point
		want       bool
	}{
		{"crossing", p(0, 0), p(10, 10), p(0, 10), p(10, 0), true},
		{"parallel", p(0, 0), p(10, 0), p(0, 1), p(10, 1), false},
		{"collinear overlap", p(0, 0), p(10, 0), p(5, 0), p(15, 0), true},
		{"collinear disjoint", p(0, 0), p(4, 0), p(5, 0), p(15, 0), false},
		{"touching endpoint", p(0, 0), p(5, 5), p(5, 5), p(10, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := segmentsIntersect(tt.a, tt.b, tt.c, tt.d); got != tt.want {
				t.Errorf("segmentsIntersect() = %v, want %v", got, tt.want)
			}
		})
	}
}
