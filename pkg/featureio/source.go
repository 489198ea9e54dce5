package featureio

import (
	"encoding/json"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	geojson "github.com/paulmach/go.geojson"

	"github.com/beetlebugorg/spatialbin/pkg/binning"
)

// GeoJSONSource streams the features of a GeoJSON FeatureCollection.
//
// Features are decoded one at a time, so memory use does not grow with the
// size of the collection. The collection's "crs" member (a named CRS) and
// "bbox" member supply CRS and Extent when present.
type GeoJSONSource struct {
	dec    *json.Decoder
	closer io.Closer
	path   string // Set for file sources; enables the extent scan

	crs         string
	crsOverride bool
	bbox        []float64

	opened     bool // Collection '{' consumed
	inFeatures bool // Positioned inside the features array
	done       bool
	read       int
}

// NewGeoJSONSource streams features from r.
//
// crs overrides the collection's own CRS when non-empty. Without a "bbox"
// member before "features", a reader source cannot report its extent.
func NewGeoJSONSource(r io.Reader, crs string) *GeoJSONSource {
	return &GeoJSONSource{
		dec:         json.NewDecoder(r),
		crs:         crs,
		crsOverride: crs != "",
	}
}

// OpenGeoJSON opens a GeoJSON file for streaming.
//
// The top-level members are scanned first, so "crs" and "bbox" are found
// wherever they appear. Call Close when done.
func OpenGeoJSON(path, crs string) (*GeoJSONSource, error) {
	header, err := scanHeaderFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	src := NewGeoJSONSource(f, crs)
	src.closer = f
	src.path = path
	if !src.crsOverride {
		src.crs = header.crs
	}
	src.bbox = header.bbox
	return src, nil
}

// CRS returns the CRS of the features, or "" if unknown.
func (s *GeoJSONSource) CRS() string {
	if !s.crsOverride && s.crs == "" && s.path == "" {
		// Members before "features" are read eagerly; ignore failures here,
		// Next reports them.
		_ = s.advance()
	}
	return s.crs
}

// Extent returns the collection bbox, or for file sources without one, the
// union of all feature bounds.
func (s *GeoJSONSource) Extent() (binning.Extent, error) {
	if s.bbox == nil && s.path == "" {
		if err := s.advance(); err != nil {
			return binning.Extent{}, err
		}
	}
	if len(s.bbox) >= 4 {
		// 2D: [minx, miny, maxx, maxy]; 3D: [minx, miny, minz, maxx, maxy, maxz]
		if len(s.bbox) == 6 {
			return binning.Extent{MinX: s.bbox[0], MinY: s.bbox[1], MaxX: s.bbox[3], MaxY: s.bbox[4], CRS: s.crs}, nil
		}
		return binning.Extent{MinX: s.bbox[0], MinY: s.bbox[1], MaxX: s.bbox[2], MaxY: s.bbox[3], CRS: s.crs}, nil
	}
	if s.path == "" {
		return binning.Extent{}, binning.ErrNoExtent
	}
	return scanExtentFile(s.path, s.crs)
}

// Next returns the next feature, or io.EOF after the last one.
func (s *GeoJSONSource) Next() (binning.Feature, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := s.advance(); err != nil {
		return nil, err
	}
	if !s.inFeatures {
		s.done = true
		return nil, io.EOF
	}

	if !s.dec.More() {
		// closing ']'
		if _, err := s.dec.Token(); err != nil {
			return nil, errors.Wrap(err, "end of features")
		}
		s.inFeatures = false
		s.done = true
		return nil, io.EOF
	}

	var f geojson.Feature
	if err := s.dec.Decode(&f); err != nil {
		return nil, errors.Wrapf(err, "decode feature %d", s.read+1)
	}
	s.read++

	g, err := ToGeom(f.Geometry)
	if err != nil {
		return nil, errors.Wrapf(err, "feature %d", s.read)
	}
	return binning.NewFeature(g, f.Properties), nil
}

// Close releases the underlying file, if any.
func (s *GeoJSONSource) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// advance positions the decoder at the first element of the features array,
// capturing "crs" and "bbox" members on the way. Subsequent calls are no-ops.
func (s *GeoJSONSource) advance() error {
	if s.inFeatures || s.done {
		return nil
	}
	if !s.opened {
		if err := expectDelim(s.dec, '{'); err != nil {
			return err
		}
		s.opened = true
	}

	for s.dec.More() {
		key, err := readKey(s.dec)
		if err != nil {
			return err
		}
		switch key {
		case "features":
			if err := expectDelim(s.dec, '['); err != nil {
				return errors.Wrap(err, "features")
			}
			s.inFeatures = true
			return nil
		case "crs", "bbox":
			var h header
			if err := h.capture(s.dec, key); err != nil {
				return err
			}
			if key == "crs" && !s.crsOverride && s.crs == "" {
				s.crs = h.crs
			}
			if key == "bbox" && s.bbox == nil {
				s.bbox = h.bbox
			}
		default:
			if err := skipValue(s.dec); err != nil {
				return errors.Wrapf(err, "member %q", key)
			}
		}
	}

	// No features member at all.
	s.done = true
	return nil
}

// header holds the top-level members the source needs besides features.
type header struct {
	crs  string
	bbox []float64
}

// namedCRS is the GeoJSON 2008 "name" CRS object.
type namedCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

func (h *header) capture(dec *json.Decoder, key string) error {
	switch key {
	case "crs":
		var c namedCRS
		if err := dec.Decode(&c); err != nil {
			return errors.Wrap(err, "decode crs")
		}
		h.crs = c.Properties.Name
	case "bbox":
		if err := dec.Decode(&h.bbox); err != nil {
			return errors.Wrap(err, "decode bbox")
		}
	}
	return nil
}

// scanHeaderFile reads the top-level members of a collection, skipping the
// features array without decoding it.
func scanHeaderFile(path string) (header, error) {
	var h header
	f, err := os.Open(path)
	if err != nil {
		return h, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := expectDelim(dec, '{'); err != nil {
		return h, errors.Wrapf(err, "%s", path)
	}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return h, errors.Wrapf(err, "%s", path)
		}
		switch key {
		case "crs", "bbox":
			if err := h.capture(dec, key); err != nil {
				return h, errors.Wrapf(err, "%s", path)
			}
		default:
			if err := skipValue(dec); err != nil {
				return h, errors.Wrapf(err, "%s: member %q", path, key)
			}
		}
	}
	return h, nil
}

// scanExtentFile computes the union of all feature bounds in a file.
func scanExtentFile(path, crs string) (binning.Extent, error) {
	src, err := OpenGeoJSON(path, crs)
	if err != nil {
		return binning.Extent{}, err
	}
	defer src.Close()

	var extent binning.Extent
	found := false
	for {
		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return binning.Extent{}, err
		}
		if f.Geometry() == nil {
			continue
		}
		b := f.Geometry().Bounds()
		if b == nil {
			continue
		}
		e := binning.ExtentFromBounds(b, crs)
		if !e.Valid() {
			continue
		}
		if !found {
			extent = e
			found = true
			continue
		}
		extent = extent.Union(e)
	}
	if !found {
		return binning.Extent{}, binning.ErrNoExtent
	}
	return extent, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "read token")
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return errors.Newf("expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", errors.Wrap(err, "read member name")
	}
	key, ok := tok.(string)
	if !ok {
		return "", errors.Newf("expected member name, got %v", tok)
	}
	return key, nil
}

// skipValue consumes one JSON value of any shape.
func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}
