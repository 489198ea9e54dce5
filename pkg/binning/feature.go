package binning

import (
	"errors"

	"github.com/ctessum/geom"
)

// Feature is one input record: a geometry and named attributes.
//
// The engine never modifies a feature; transformed geometry is a copy.
type Feature interface {
	Geometry() geom.Geom
	Attributes() map[string]interface{}
}

// Source is a feature stream consumed exactly once per run.
//
// Next returns io.EOF when the stream is exhausted.
type Source interface {
	// CRS returns the identifier of the reference system of the features,
	// or "" if unknown.
	CRS() string

	// Next returns the next feature.
	Next() (Feature, error)

	// Extent returns the total extent of the stream. Only called when the
	// run has no explicit extent. Implementations return ErrNoExtent when
	// the extent cannot be determined.
	Extent() (Extent, error)
}

// ErrNoExtent is returned by Source.Extent when the stream cannot report its extent.
var ErrNoExtent = errors.New("extent not available")

// SimpleFeature is a plain Feature value.
type SimpleFeature struct {
	Geom  geom.Geom
	Attrs map[string]interface{}
}

// NewFeature creates a SimpleFeature.
func NewFeature(g geom.Geom, attrs map[string]interface{}) *SimpleFeature {
	return &SimpleFeature{Geom: g, Attrs: attrs}
}

// Geometry returns the feature geometry.
func (f *SimpleFeature) Geometry() geom.Geom { return f.Geom }

// Attributes returns the feature attributes.
func (f *SimpleFeature) Attributes() map[string]interface{} { return f.Attrs }

// Output field names.
const (
	FieldID        = "uid"   // Integer bin identifier
	FieldAggregate = "val"   // Double aggregate value
	FieldCount     = "count" // Integer number of contributing features
)

// TypeName is the feature type name of circular binning output.
const TypeName = "CircularBinning"

// FieldType is the value type of an output field.
type FieldType int

const (
	// FieldInteger holds int values.
	FieldInteger FieldType = iota

	// FieldDouble holds float64 values.
	FieldDouble
)

// String returns the name of the field type.
func (t FieldType) String() string {
	switch t {
	case FieldInteger:
		return "Integer"
	case FieldDouble:
		return "Double"
	default:
		return "Unknown"
	}
}

// Field declares one attribute of the output feature type.
type Field struct {
	Name   string
	Type   FieldType
	Length int // Declared precision, informational
}

// Schema declares the output feature type of a run.
type Schema struct {
	Name         string  // Feature type name
	RunID        string  // Identifier of the run producing the features
	CRS          string  // CRS of the output geometry (the input features' CRS)
	GeometryType string  // Always "Polygon"
	Fields       []Field // Attribute fields, in order
}

// NewSchema returns the circular binning output schema.
func NewSchema(runID, crs string) Schema {
	return Schema{
		Name:         TypeName,
		RunID:        runID,
		CRS:          crs,
		GeometryType: "Polygon",
		Fields: []Field{
			{Name: FieldID, Type: FieldInteger, Length: 19},
			{Name: FieldAggregate, Type: FieldDouble, Length: 38},
			{Name: FieldCount, Type: FieldInteger, Length: 19},
		},
	}
}

// OutputFeature is one emitted bin.
type OutputFeature struct {
	ID        int          // uid
	Aggregate float64      // val
	Count     int          // count
	Geometry  geom.Polygon // Footprint in the output CRS
}

// Attributes returns the feature attributes keyed by schema field name.
func (f OutputFeature) Attributes() map[string]interface{} {
	return map[string]interface{}{
		FieldID:        f.ID,
		FieldAggregate: f.Aggregate,
		FieldCount:     f.Count,
	}
}

// Store creates a transactional sink for one run.
type Store interface {
	Begin(schema Schema) (Sink, error)
}

// Sink receives the output features of one run.
//
// Write appends a feature that becomes durable only when Close is reached
// without a prior Rollback. Rollback discards everything written so far and
// leaves the output in its pre-run state (or absent). Close is called exactly
// once on every exit path and releases the sink's resources.
//
// The engine never calls Write after Rollback.
type Sink interface {
	Write(f OutputFeature) error
	Rollback(cause error) error
	Close() error
}
