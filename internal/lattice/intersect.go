package lattice

import (
	"github.com/ctessum/geom"
)

// Intersects reports whether g touches or overlaps the footprint polygon.
//
// Boundary contact counts as intersection. Supported geometries are points,
// line strings, polygons, their multi-part variants and collections of them;
// any other geom.Geom falls back to a bounding box test.
func Intersects(g geom.Geom, footprint geom.Polygon) bool {
	if g == nil || len(footprint) == 0 {
		return false
	}

	switch t := g.(type) {
	case geom.Point:
		return pointIntersects(t, footprint)
	case geom.MultiPoint:
		for _, p := range t {
			if pointIntersects(p, footprint) {
				return true
			}
		}
		return false
	case geom.LineString:
		return pathIntersects(geom.Path(t), footprint)
	case geom.MultiLineString:
		for _, ls := range t {
			if pathIntersects(geom.Path(ls), footprint) {
				return true
			}
		}
		return false
	case geom.Polygon:
		return polygonIntersects(t, footprint)
	case geom.MultiPolygon:
		for _, poly := range t {
			if polygonIntersects(poly, footprint) {
				return true
			}
		}
		return false
	case geom.GeometryCollection:
		for _, member := range t {
			if Intersects(member, footprint) {
				return true
			}
		}
		return false
	default:
		b := g.Bounds()
		if b == nil {
			return false
		}
		return b.Overlaps(footprint.Bounds())
	}
}

func pointIntersects(p geom.Point, footprint geom.Polygon) bool {
	if p.Within(footprint) != geom.Outside {
		return true
	}
	return onBoundary(p, footprint)
}

// onBoundary is the exact edge test; Within may classify edge points either way.
func onBoundary(p geom.Point, poly geom.Polygon) bool {
	for _, ring := range poly {
		for i := 0; i+1 < len(ring); i++ {
			if orientation(ring[i], ring[i+1], p) == 0 && onSegment(ring[i], p, ring[i+1]) {
				return true
			}
		}
	}
	return false
}

// pathIntersects checks a single open path against the footprint: either a
// vertex lies inside or on the footprint, or a segment crosses its boundary.
func pathIntersects(path geom.Path, footprint geom.Polygon) bool {
	if len(path) == 0 {
		return false
	}
	for _, p := range path {
		if pointIntersects(p, footprint) {
			return true
		}
	}
	for i := 0; i+1 < len(path); i++ {
		if segmentCrossesPolygon(path[i], path[i+1], footprint) {
			return true
		}
	}
	return false
}

// polygonIntersects covers three cases: a polygon vertex inside the
// footprint, the footprint inside the polygon, and crossing edges.
func polygonIntersects(poly geom.Polygon, footprint geom.Polygon) bool {
	if len(poly) == 0 {
		return false
	}
	for _, ring := range poly {
		if pathIntersects(ring, footprint) {
			return true
		}
		// closing edge, for rings that do not repeat their first vertex
		if n := len(ring); n > 2 && ring[0] != ring[n-1] {
			if segmentCrossesPolygon(ring[n-1], ring[0], footprint) {
				return true
			}
		}
	}
	for _, ring := range footprint {
		for _, p := range ring {
			if p.Within(poly) != geom.Outside {
				return true
			}
		}
	}
	return false
}

func segmentCrossesPolygon(a, b geom.Point, poly geom.Polygon) bool {
	for _, ring := range poly {
		for i := 0; i+1 < len(ring); i++ {
			if segmentsIntersect(a, b, ring[i], ring[i+1]) {
				return true
			}
		}
	}
	return false
}

// segmentsIntersect is the orientation test for closed segments ab and cd,
// including collinear overlap.
func segmentsIntersect(a, b, c, d geom.Point) bool {
	o1 := orientation(a, b, c)
	o2 := orientation(a, b, d)
	o3 := orientation(c, d, a)
	o4 := orientation(c, d, b)

	if o1 != o2 && o3 != o4 {
		return true
	}

	if o1 == 0 && onSegment(a, c, b) {
		return true
	}
	if o2 == 0 && onSegment(a, d, b) {
		return true
	}
	if o3 == 0 && onSegment(c, a, d) {
		return true
	}
	if o4 == 0 && onSegment(c, b, d) {
		return true
	}
	return false
}

// orientation returns 0 for collinear points, 1 for clockwise and 2 for
// counter-clockwise.
func orientation(p, q, r geom.Point) int {
	v := (q.Y-p.Y)*(r.X-q.X) - (q.X-p.X)*(r.Y-q.Y)
	switch {
	case v == 0:
		return 0
	case v > 0:
		return 1
	default:
		return 2
	}
}

// onSegment reports whether q lies within the box spanned by p and r.
// Only meaningful when p, q, r are collinear.
func onSegment(p, q, r geom.Point) bool {
	return q.X <= max(p.X, r.X) && q.X >= min(p.X, r.X) &&
		q.Y <= max(p.Y, r.Y) && q.Y >= min(p.Y, r.Y)
}
