package binning

import (
	"github.com/ctessum/geom"

	"github.com/beetlebugorg/spatialbin/internal/lattice"
)

// Bin is one cell of the lattice with its accumulated aggregate and count.
//
// Bins are created together before streaming, mutated only by the single
// aggregation pass, and read-only afterwards.
type Bin struct {
	id        int
	center    geom.Point
	radius    float64
	aggregate float64
	count     int
	footprint geom.Polygon // Analysis space, built on first use
}

// ID returns the bin identifier, unique and sequential within a run.
func (b *Bin) ID() int { return b.id }

// Center returns the bin center in analysis space.
func (b *Bin) Center() geom.Point { return b.center }

// Radius returns the bin radius, shared by every bin of a run.
func (b *Bin) Radius() float64 { return b.radius }

// Aggregate returns the accumulated weight.
func (b *Bin) Aggregate() float64 { return b.aggregate }

// Count returns the number of features that contributed to the bin.
func (b *Bin) Count() int { return b.count }

// Footprint returns the bin polygon in analysis space.
func (b *Bin) Footprint() geom.Polygon {
	if b.footprint == nil {
		b.footprint = lattice.Footprint(b.center, b.radius)
	}
	return b.footprint
}

// add accumulates one feature. w is never negative.
func (b *Bin) add(w float64) {
	b.aggregate += w
	b.count++
}

// newBins creates bins for centers with ids starting at 1.
func newBins(centers []geom.Point, radius float64) []*Bin {
	bins := make([]*Bin, len(centers))
	for i, c := range centers {
		bins[i] = &Bin{
			id:     i + 1,
			center: c,
			radius: radius,
		}
	}
	return bins
}
