package featureio

import (
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	geojson "github.com/paulmach/go.geojson"
	sync "github.com/sasha-s/go-deadlock"

	"github.com/beetlebugorg/spatialbin/pkg/binning"
)

// MemorySource serves features held in memory.
type MemorySource struct {
	crs      string
	features []binning.Feature
	pos      int
}

// NewMemorySource creates a source over features in the given CRS.
func NewMemorySource(crs string, features ...binning.Feature) *MemorySource {
	return &MemorySource{crs: crs, features: features}
}

// SourceFromCollection converts every feature of fc up front.
func SourceFromCollection(fc *geojson.FeatureCollection, crs string) (*MemorySource, error) {
	if fc == nil {
		return NewMemorySource(crs), nil
	}
	features := make([]binning.Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		g, err := ToGeom(f.Geometry)
		if err != nil {
			return nil, errors.Wrapf(err, "feature %d", i+1)
		}
		features = append(features, binning.NewFeature(g, f.Properties))
	}
	return NewMemorySource(crs, features...), nil
}

// CRS returns the CRS given at construction.
func (s *MemorySource) CRS() string { return s.crs }

// Next returns the next feature, or io.EOF after the last one.
func (s *MemorySource) Next() (binning.Feature, error) {
	if s.pos >= len(s.features) {
		return nil, io.EOF
	}
	f := s.features[s.pos]
	s.pos++
	return f, nil
}

// Reset rewinds the source so it can serve another run.
func (s *MemorySource) Reset() { s.pos = 0 }

// Extent returns the union of all feature bounds.
func (s *MemorySource) Extent() (binning.Extent, error) {
	var extent binning.Extent
	found := false
	for _, f := range s.features {
		if f == nil || f.Geometry() == nil {
			continue
		}
		b := f.Geometry().Bounds()
		if b == nil {
			continue
		}
		e := binning.ExtentFromBounds(b, s.crs)
		if !e.Valid() {
			continue
		}
		if !found {
			extent, found = e, true
			continue
		}
		extent = extent.Union(e)
	}
	if !found {
		return binning.Extent{}, binning.ErrNoExtent
	}
	return extent, nil
}

// MemoryStore publishes run output as named GeoJSON collections.
//
// Collections become visible only when a run commits, replacing any earlier
// collection of the same name. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*published
}

type published struct {
	schema     binning.Schema
	collection *geojson.FeatureCollection
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*published)}
}

// Layer returns a binning.Store that publishes under name.
func (s *MemoryStore) Layer(name string) binning.Store {
	return memoryLayer{store: s, name: name}
}

// Collection returns the committed collection published under name.
func (s *MemoryStore) Collection(name string) (*geojson.FeatureCollection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.collections[name]
	if !ok {
		return nil, false
	}
	return p.collection, true
}

// Schema returns the schema of the collection published under name.
func (s *MemoryStore) Schema(name string) (binning.Schema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.collections[name]
	if !ok {
		return binning.Schema{}, false
	}
	return p.schema, true
}

// Names returns the published collection names, sorted.
func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *MemoryStore) publish(name string, p *published) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = p
}

type memoryLayer struct {
	store *MemoryStore
	name  string
}

func (l memoryLayer) Begin(schema binning.Schema) (binning.Sink, error) {
	if l.name == "" {
		return nil, errors.New("memory layer needs a name")
	}
	fc := geojson.NewFeatureCollection()
	if schema.CRS != "" {
		fc.CRS = namedCRSMember(schema.CRS)
	}
	return &memorySink{layer: l, schema: schema, collection: fc}, nil
}

// memorySink buffers features until Close.
type memorySink struct {
	layer      memoryLayer
	schema     binning.Schema
	collection *geojson.FeatureCollection
	rolledBack bool
	closed     bool
}

func (k *memorySink) Write(f binning.OutputFeature) error {
	if k.rolledBack || k.closed {
		return errors.New("write to finished sink")
	}
	k.collection.AddFeature(toGeoJSONFeature(f))
	return nil
}

func (k *memorySink) Rollback(error) error {
	k.rolledBack = true
	k.collection = nil
	return nil
}

func (k *memorySink) Close() error {
	if k.closed {
		return nil
	}
	k.closed = true
	if k.rolledBack {
		return nil
	}
	k.layer.store.publish(k.layer.name, &published{schema: k.schema, collection: k.collection})
	return nil
}

// toGeoJSONFeature converts an output bin to a GeoJSON feature with the
// schema attributes as properties.
func toGeoJSONFeature(f binning.OutputFeature) *geojson.Feature {
	gf := geojson.NewFeature(FromPolygon(f.Geometry))
	gf.ID = f.ID
	for k, v := range f.Attributes() {
		gf.SetProperty(k, v)
	}
	return gf
}

// namedCRSMember builds a GeoJSON 2008 named CRS object.
func namedCRSMember(name string) map[string]interface{} {
	return map[string]interface{}{
		"type": "name",
		"properties": map[string]interface{}{
			"name": name,
		},
	}
}
