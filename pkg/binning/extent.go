package binning

import (
	"math"

	"github.com/ctessum/geom"
)

// Extent is an axis-aligned rectangle in a named coordinate reference system.
//
// CRS is an identifier understood by the engine ("EPSG:4326", an OGC URN, or
// a PROJ.4 string). An empty CRS means "the CRS of the input features".
type Extent struct {
	MinX float64 // Western edge
	MinY float64 // Southern edge
	MaxX float64 // Eastern edge
	MaxY float64 // Northern edge
	CRS  string
}

// Width returns MaxX - MinX.
func (e Extent) Width() float64 { return e.MaxX - e.MinX }

// Height returns MaxY - MinY.
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Valid reports whether all edges are finite and width and height are
// non-negative. A single point is a valid extent.
func (e Extent) Valid() bool {
	for _, v := range []float64{e.MinX, e.MinY, e.MaxX, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return e.Width() >= 0 && e.Height() >= 0
}

// DefaultRadius returns min(width, height) / 20, the radius used when none
// is configured.
func (e Extent) DefaultRadius() float64 {
	return math.Min(e.Width(), e.Height()) / 20.0
}

// Union returns the smallest extent containing both. The receiver's CRS is kept.
func (e Extent) Union(other Extent) Extent {
	return Extent{
		MinX: math.Min(e.MinX, other.MinX),
		MinY: math.Min(e.MinY, other.MinY),
		MaxX: math.Max(e.MaxX, other.MaxX),
		MaxY: math.Max(e.MaxY, other.MaxY),
		CRS:  e.CRS,
	}
}

// Bounds converts the extent to a geom.Bounds.
func (e Extent) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: e.MinX, Y: e.MinY},
		Max: geom.Point{X: e.MaxX, Y: e.MaxY},
	}
}

// ExtentFromBounds converts geom.Bounds to an Extent in the given CRS.
func ExtentFromBounds(b *geom.Bounds, crs string) Extent {
	if b == nil {
		return Extent{CRS: crs}
	}
	return Extent{
		MinX: b.Min.X,
		MinY: b.Min.Y,
		MaxX: b.Max.X,
		MaxY: b.Max.Y,
		CRS:  crs,
	}
}
