package lattice

import (
	"math"

	"github.com/ctessum/geom"
)

// Segments is the number of vertices used to approximate a bin circle.
//
// 48 is a multiple of 6, so the footprint has a vertex at every corner of the
// bin's hexagon cell and contains it. The area of a regular 48-gon is ~0.29%
// below the area of its circumscribing circle.
const Segments = 48

// Footprint builds the closed polygon approximating the circle of the given
// radius around center. The ring is counter-clockwise and repeats the first
// vertex at the end.
func Footprint(center geom.Point, radius float64) geom.Polygon {
	ring := make(geom.Path, 0, Segments+1)
	for i := 0; i < Segments; i++ {
		angle := 2 * math.Pi * float64(i) / Segments
		ring = append(ring, geom.Point{
			X: center.X + radius*math.Cos(angle),
			Y: center.Y + radius*math.Sin(angle),
		})
	}
	ring = append(ring, ring[0])
	return geom.Polygon{ring}
}

// FootprintBounds returns the axis-aligned box enclosing a bin circle.
func FootprintBounds(center geom.Point, radius float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: center.X - radius, Y: center.Y - radius},
		Max: geom.Point{X: center.X + radius, Y: center.Y + radius},
	}
}
