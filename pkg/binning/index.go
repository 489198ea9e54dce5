package binning

import (
	"sort"

	"github.com/ctessum/geom"
	"github.com/dhconnelly/rtreego"

	"github.com/beetlebugorg/spatialbin/internal/lattice"
)

// binIndex finds the bins whose circle box overlaps a geometry's box.
//
// Candidates still need the exact footprint test; the index only prunes bins
// that cannot intersect. Queries are O(log n) with the R-tree, compared to
// O(n) with linear scan.
type binIndex struct {
	bins  []*Bin
	rtree *rtreego.Rtree // nil means linear scan
}

// indexedBin wraps a bin for R-tree storage.
type indexedBin struct {
	bin *Bin
}

// Bounds implements rtreego.Spatial interface.
func (b *indexedBin) Bounds() rtreego.Rect {
	return toRect(lattice.FootprintBounds(b.bin.center, b.bin.radius))
}

// toRect converts geom.Bounds to an R-tree rectangle.
func toRect(b *geom.Bounds) rtreego.Rect {
	// R-tree requires non-zero dimensions and treats touching rectangles as
	// disjoint, so every rectangle is padded by epsilon on all sides.
	const epsilon = 1e-9
	point := rtreego.Point{b.Min.X - epsilon, b.Min.Y - epsilon}
	width := b.Max.X - b.Min.X + 2*epsilon
	height := b.Max.Y - b.Min.Y + 2*epsilon

	rect, _ := rtreego.NewRect(point, []float64{width, height})
	return rect
}

// newBinIndex builds the index. With useRtree false, queries scan all bins,
// which is only useful for comparing against the indexed path.
func newBinIndex(bins []*Bin, useRtree bool) *binIndex {
	idx := &binIndex{bins: bins}
	if !useRtree || len(bins) == 0 {
		return idx
	}

	// Create R-tree (2D, min=25 children, max=50 children)
	rtree := rtreego.NewTree(2, 25, 50)
	for _, b := range bins {
		rtree.Insert(&indexedBin{bin: b})
	}
	idx.rtree = rtree
	return idx
}

// candidates returns bins whose bounding box intersects bounds, in id order.
func (idx *binIndex) candidates(bounds *geom.Bounds) []*Bin {
	if bounds == nil {
		return nil
	}

	if idx.rtree == nil {
		return idx.candidatesLinear(bounds)
	}

	spatials := idx.rtree.SearchIntersect(toRect(bounds))
	result := make([]*Bin, 0, len(spatials))
	for _, spatial := range spatials {
		result = append(result, spatial.(*indexedBin).bin)
	}

	// R-tree order depends on insertion history; keep output stable.
	sort.Slice(result, func(i, j int) bool {
		return result[i].id < result[j].id
	})
	return result
}

// candidatesLinear performs linear search when no spatial index exists.
func (idx *binIndex) candidatesLinear(bounds *geom.Bounds) []*Bin {
	var result []*Bin
	for _, b := range idx.bins {
		if boxesTouch(lattice.FootprintBounds(b.center, b.radius), bounds) {
			result = append(result, b)
		}
	}
	return result
}

// boxesTouch reports whether two boxes share at least one point.
func boxesTouch(a, b *geom.Bounds) bool {
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X &&
		a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y
}
