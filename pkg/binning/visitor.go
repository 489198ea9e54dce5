package binning

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/beetlebugorg/spatialbin/internal/crs"
	"github.com/beetlebugorg/spatialbin/internal/lattice"
	"github.com/beetlebugorg/spatialbin/internal/weight"
)

// aggregationVisitor performs the single streaming pass over the input.
//
// It is the only writer of bin aggregates. One visitor serves one run; it
// must not be shared between concurrent passes.
type aggregationVisitor struct {
	index     *binIndex
	transform *crs.Transform // nil when input and analysis CRS are equivalent
	weight    weight.Source
	log       *zap.Logger

	progress         func(read int)
	progressInterval int

	read            int // Features read
	binned          int // Features that intersected at least one bin
	weightErrors    int // Features whose weight evaluated to an error
	transformErrors int // Features whose geometry could not be transformed
}

// visit consumes src until io.EOF.
//
// Cancellation is checked before every read. Errors from the stream or from
// cancellation abort the pass; weight and per-feature transform failures do not.
func (v *aggregationVisitor) visit(ctx context.Context, src Source) error {
	for {
		if err := ctx.Err(); err != nil {
			return &CancelledError{Read: v.read, Err: err}
		}

		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &InputError{Feature: v.read + 1, Err: err}
		}
		v.read++

		v.accumulate(f)

		if v.progress != nil && v.progressInterval > 0 && v.read%v.progressInterval == 0 {
			v.progress(v.read)
		}
	}
}

// accumulate adds one feature to every bin its geometry intersects.
func (v *aggregationVisitor) accumulate(f Feature) {
	if f == nil {
		return
	}
	g := f.Geometry()
	if g == nil {
		return
	}

	if v.transform != nil {
		tg, err := v.transform.Apply(g)
		if err != nil {
			v.transformErrors++
			v.log.Debug("feature geometry not transformable, skipped",
				zap.Int("feature", v.read),
				zap.Error(err))
			return
		}
		g = tg
	}

	w, err := v.weight.Weight(f.Attributes())
	if err != nil {
		v.weightErrors++
		v.log.Debug("weight evaluation failed, contributing zero",
			zap.Error(&WeightEvaluationError{Feature: v.read, Err: err}))
		w = 0
	}

	hit := false
	for _, b := range v.index.candidates(g.Bounds()) {
		if lattice.Intersects(g, b.Footprint()) {
			b.add(w)
			hit = true
		}
	}
	if hit {
		v.binned++
	}
}
