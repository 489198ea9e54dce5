// Package crs resolves coordinate transforms between the reference system of
// input features and the reference system of the analysis extent.
package crs

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// Transform maps coordinates from a source CRS to a target CRS.
//
// A Transform is immutable once resolved and can be applied to any number of
// geometries, from any goroutine.
type Transform struct {
	source    string
	target    string
	sourceSR  *proj.SR
	targetSR  *proj.SR
	transform proj.Transformer
}

// Equivalent reports whether two CRS identifiers name the same reference
// system after resolution. An empty identifier is equivalent to anything.
func Equivalent(source, target string) (bool, error) {
	src, err := Definition(source)
	if err != nil {
		return false, err
	}
	dst, err := Definition(target)
	if err != nil {
		return false, err
	}
	if src == "" || dst == "" {
		return true, nil
	}
	return normalize(src) == normalize(dst), nil
}

// Resolve returns the transform from source to target, or nil when the two
// reference systems are equivalent and no transform is needed.
func Resolve(source, target string) (*Transform, error) {
	same, err := Equivalent(source, target)
	if err != nil {
		return nil, err
	}
	if same {
		return nil, nil
	}

	srcDef, _ := Definition(source)
	dstDef, _ := Definition(target)

	srcSR, err := proj.Parse(srcDef)
	if err != nil {
		return nil, fmt.Errorf("parse source CRS %q: %w", source, err)
	}
	dstSR, err := proj.Parse(dstDef)
	if err != nil {
		return nil, fmt.Errorf("parse target CRS %q: %w", target, err)
	}

	fn, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, fmt.Errorf("transform %q to %q: %w", source, target, err)
	}

	return &Transform{
		source:    source,
		target:    target,
		sourceSR:  srcSR,
		targetSR:  dstSR,
		transform: fn,
	}, nil
}

// Source returns the CRS identifier coordinates are mapped from.
func (t *Transform) Source() string { return t.source }

// Target returns the CRS identifier coordinates are mapped to.
func (t *Transform) Target() string { return t.target }

// Invert returns the transform with source and target swapped.
func (t *Transform) Invert() (*Transform, error) {
	fn, err := t.targetSR.NewTransform(t.sourceSR)
	if err != nil {
		return nil, fmt.Errorf("invert transform %q to %q: %w", t.source, t.target, err)
	}
	return &Transform{
		source:    t.target,
		target:    t.source,
		sourceSR:  t.targetSR,
		targetSR:  t.sourceSR,
		transform: fn,
	}, nil
}

// Apply returns a transformed copy of g. The input geometry is not modified.
func (t *Transform) Apply(g geom.Geom) (geom.Geom, error) {
	if g == nil {
		return nil, nil
	}
	return g.Transform(t.transform)
}
