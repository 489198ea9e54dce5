package featureio

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/beetlebugorg/spatialbin/pkg/binning"
)

// GeoJSONFileStore writes each run to a GeoJSON file.
//
// Features are streamed to a temporary file next to Path, which replaces Path
// only when the run commits. A rolled-back run removes the temporary file and
// leaves any existing file at Path untouched.
type GeoJSONFileStore struct {
	Path string
}

// NewGeoJSONFileStore creates a store writing to path.
func NewGeoJSONFileStore(path string) *GeoJSONFileStore {
	return &GeoJSONFileStore{Path: path}
}

// Begin creates the temporary file and writes the collection header.
func (s *GeoJSONFileStore) Begin(schema binning.Schema) (binning.Sink, error) {
	if s.Path == "" {
		return nil, errors.New("geojson store needs an output path")
	}

	dir, base := filepath.Split(s.Path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, "create temporary output")
	}

	sink := &geojsonFileSink{
		path: s.Path,
		tmp:  tmp,
		w:    bufio.NewWriter(tmp),
	}
	if err := sink.writeHeader(schema); err != nil {
		sink.discard()
		return nil, err
	}
	return sink, nil
}

type geojsonFileSink struct {
	path     string
	tmp      *os.File
	w        *bufio.Writer
	written  int
	finished bool // Rolled back or closed
}

func (k *geojsonFileSink) writeHeader(schema binning.Schema) error {
	header := map[string]interface{}{
		"type": "FeatureCollection",
		"name": schema.Name,
	}
	if schema.CRS != "" {
		header["crs"] = namedCRSMember(schema.CRS)
	}
	data, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "encode header")
	}

	// Reopen the object to append the features array.
	data = append(data[:len(data)-1], []byte(`,"features":[`)...)
	if _, err := k.w.Write(data); err != nil {
		return errors.Wrap(err, "write header")
	}
	return nil
}

func (k *geojsonFileSink) Write(f binning.OutputFeature) error {
	if k.finished {
		return errors.New("write to finished sink")
	}
	data, err := toGeoJSONFeature(f).MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "encode feature")
	}
	if k.written > 0 {
		if err := k.w.WriteByte(','); err != nil {
			return errors.Wrap(err, "write feature")
		}
	}
	if _, err := k.w.Write(data); err != nil {
		return errors.Wrap(err, "write feature")
	}
	k.written++
	return nil
}

func (k *geojsonFileSink) Rollback(error) error {
	if k.finished {
		return nil
	}
	k.finished = true
	return k.discard()
}

// Close finishes the collection and moves it into place.
func (k *geojsonFileSink) Close() error {
	if k.finished {
		return nil
	}
	k.finished = true

	if _, err := k.w.WriteString("]}\n"); err != nil {
		k.discard()
		return errors.Wrap(err, "write trailer")
	}
	if err := k.w.Flush(); err != nil {
		k.discard()
		return errors.Wrap(err, "flush output")
	}
	if err := k.tmp.Sync(); err != nil {
		k.discard()
		return errors.Wrap(err, "sync output")
	}
	if err := k.tmp.Close(); err != nil {
		os.Remove(k.tmp.Name())
		return errors.Wrap(err, "close output")
	}
	if err := os.Rename(k.tmp.Name(), k.path); err != nil {
		os.Remove(k.tmp.Name())
		return errors.Wrapf(err, "move output to %s", k.path)
	}
	return nil
}

// discard closes and removes the temporary file.
func (k *geojsonFileSink) discard() error {
	closeErr := k.tmp.Close()
	if err := os.Remove(k.tmp.Name()); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove temporary output")
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return errors.Wrap(closeErr, "close temporary output")
	}
	return nil
}
