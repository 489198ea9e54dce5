// Package lattice generates the circular bin lattice used by the binning
// engine: bin centers packed over an extent, the polygonal footprint of each
// bin, and the geometry/footprint intersection test.
package lattice

import (
	"math"

	"github.com/ctessum/geom"
)

// Packing constants for pointy-top hexagonal packing of circles with radius r.
//
// Each center owns a hexagon with circumradius r. Hexagons tile the plane, and
// every hexagon is inscribed in its bin circle, so the circles cover the plane
// with no gaps.
var (
	// columnFactor is the horizontal distance between centers of one row, in radii.
	columnFactor = math.Sqrt(3)

	// rowFactor is the vertical distance between rows, in radii.
	rowFactor = 1.5
)

// MaxCount is the largest lattice Generate will build.
const MaxCount = math.MaxInt32

// Size returns the number of centers needed to cover bounds with bins of
// the given radius, as a float so oversized lattices do not overflow.
//
// Returns 0 when the radius is not positive or the bounds are invalid.
func Size(bounds *geom.Bounds, radius float64) float64 {
	rows, cols := span(bounds, radius)
	return rows * cols
}

// span is Dimensions without the conversion to int.
func span(bounds *geom.Bounds, radius float64) (rows, cols float64) {
	if bounds == nil || !(radius > 0) || math.IsInf(radius, 0) {
		return 0, 0
	}
	width := bounds.Max.X - bounds.Min.X
	height := bounds.Max.Y - bounds.Min.Y
	if !(width >= 0) || !(height >= 0) {
		return 0, 0
	}

	dx := radius * columnFactor
	dy := radius * rowFactor

	// One extra row and column so the last center reaches the far edge.
	rows = math.Ceil(height/dy) + 1
	cols = math.Ceil(width/dx) + 1
	return rows, cols
}

// Dimensions returns the number of rows and columns needed to cover
// bounds with bins of the given radius.
//
// Returns (0, 0) when the radius is not positive, the bounds are invalid,
// or the lattice would exceed MaxCount centers.
func Dimensions(bounds *geom.Bounds, radius float64) (rows, cols int) {
	r, c := span(bounds, radius)
	if !(r*c <= MaxCount) {
		return 0, 0
	}
	return int(r), int(c)
}

// Count returns how many centers Generate would produce.
func Count(bounds *geom.Bounds, radius float64) int {
	rows, cols := Dimensions(bounds, radius)
	return rows * cols
}

// Generate enumerates bin centers covering bounds.
//
// Centers are emitted row by row from the bottom (MinY) upward, and left to
// right within a row. Even rows start at MinX; odd rows are shifted left by
// half a column so that the hexagon cells of both row parities reach MinX.
//
// The sequence depends only on bounds and radius, so repeated calls yield
// identical centers in identical order. An extent smaller than one cell
// (including a single point) still yields at least one center.
func Generate(bounds *geom.Bounds, radius float64) []geom.Point {
	rows, cols := Dimensions(bounds, radius)
	if rows == 0 || cols == 0 {
		return nil
	}

	dx := radius * columnFactor
	dy := radius * rowFactor

	centers := make([]geom.Point, 0, rows*cols)
	for row := 0; row < rows; row++ {
		y := bounds.Min.Y + float64(row)*dy
		offset := 0.0
		if row%2 == 1 {
			offset = -dx / 2
		}
		for col := 0; col < cols; col++ {
			centers = append(centers, geom.Point{
				X: bounds.Min.X + offset + float64(col)*dx,
				Y: y,
			})
		}
	}

	return centers
}
