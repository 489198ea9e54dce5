package featureio

import (
	"github.com/cockroachdb/errors"
	"github.com/ctessum/geom"
	geojson "github.com/paulmach/go.geojson"
)

// ToGeom converts a GeoJSON geometry to the engine's geometry model.
// A nil geometry converts to nil.
func ToGeom(g *geojson.Geometry) (geom.Geom, error) {
	if g == nil {
		return nil, nil
	}

	switch g.Type {
	case geojson.GeometryPoint:
		p, err := toPoint(g.Point)
		if err != nil {
			return nil, err
		}
		return p, nil

	case geojson.GeometryMultiPoint:
		mp := make(geom.MultiPoint, 0, len(g.MultiPoint))
		for _, c := range g.MultiPoint {
			p, err := toPoint(c)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil

	case geojson.GeometryLineString:
		path, err := toPath(g.LineString)
		if err != nil {
			return nil, err
		}
		return geom.LineString(path), nil

	case geojson.GeometryMultiLineString:
		mls := make(geom.MultiLineString, 0, len(g.MultiLineString))
		for _, line := range g.MultiLineString {
			path, err := toPath(line)
			if err != nil {
				return nil, err
			}
			mls = append(mls, geom.LineString(path))
		}
		return mls, nil

	case geojson.GeometryPolygon:
		return toPolygon(g.Polygon)

	case geojson.GeometryMultiPolygon:
		mp := make(geom.MultiPolygon, 0, len(g.MultiPolygon))
		for _, rings := range g.MultiPolygon {
			poly, err := toPolygon(rings)
			if err != nil {
				return nil, err
			}
			mp = append(mp, poly)
		}
		return mp, nil

	case geojson.GeometryCollection:
		gc := make(geom.GeometryCollection, 0, len(g.Geometries))
		for _, member := range g.Geometries {
			converted, err := ToGeom(member)
			if err != nil {
				return nil, err
			}
			if converted != nil {
				gc = append(gc, converted)
			}
		}
		return gc, nil

	default:
		return nil, errors.Newf("unsupported geometry type %q", g.Type)
	}
}

// FromPolygon converts a polygon to GeoJSON. Rings are closed if needed.
func FromPolygon(p geom.Polygon) *geojson.Geometry {
	rings := make([][][]float64, 0, len(p))
	for _, ring := range p {
		coords := make([][]float64, 0, len(ring)+1)
		for _, pt := range ring {
			coords = append(coords, []float64{pt.X, pt.Y})
		}
		if n := len(ring); n > 0 && ring[0] != ring[n-1] {
			coords = append(coords, []float64{ring[0].X, ring[0].Y})
		}
		rings = append(rings, coords)
	}
	return geojson.NewPolygonGeometry(rings)
}

func toPoint(c []float64) (geom.Point, error) {
	if len(c) < 2 {
		return geom.Point{}, errors.Newf("position needs at least 2 coordinates, got %d", len(c))
	}
	return geom.Point{X: c[0], Y: c[1]}, nil
}

func toPath(coords [][]float64) (geom.Path, error) {
	path := make(geom.Path, 0, len(coords))
	for _, c := range coords {
		p, err := toPoint(c)
		if err != nil {
			return nil, err
		}
		path = append(path, p)
	}
	return path, nil
}

func toPolygon(rings [][][]float64) (geom.Polygon, error) {
	poly := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		path, err := toPath(ring)
		if err != nil {
			return nil, err
		}
		poly = append(poly, path)
	}
	return poly, nil
}
