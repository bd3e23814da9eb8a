// Package densitytree estimates multivariate probability densities as
// step functions over an adaptively refined binary partition of a box.
//
// Sample points are counted into the leaves of a spatial tree, giving a
// fine histogram. A greedy coarsening then repeatedly merges the cherry
// with the lowest priority, trading resolution for statistical
// stability; a held-out criterion picks the best histogram along the
// merge trajectory. From the chosen density estimate the package
// derives point-wise density queries, conditional and marginal slices
// over axis subsets, coverage regions with tail probabilities, and
// sampling.
//
// Tree nodes are never materialized: a node is an integer label whose
// binary expansion is its root-to-node path (see [NodeLabel]), a finite
// subtree is the sorted antichain of its leaves (see [Truncation]), and
// the geometry is a pure function of the label (see [SpatialTree]).
package densitytree

import (
	"errors"
	"fmt"
	"iter"
)

// ErrDomain is wrapped by all errors reporting invalid input at
// construction: empty bounding boxes, zero total counts, leaf sets that
// are not antichains, and the like.
var ErrDomain = errors.New("densitytree: invalid input")

// A Histogram counts samples over the leaves of a truncation.
//
// Invariants: the leaf counts sum to the total count and the leaves
// form an antichain under the root. A histogram is immutable;
// coarsening produces fresh histograms.
type Histogram struct {
	tree   SpatialTree
	total  uint64
	counts LeafMap[uint64]
}

// NewHistogram assembles a histogram from an aggregated leaf count map.
// Every count must be positive and the counts must sum to total.
func NewHistogram(tree SpatialTree, total uint64, counts LeafMap[uint64]) (*Histogram, error) {
	if total == 0 {
		return nil, fmt.Errorf("%w: zero total count", ErrDomain)
	}
	var sum uint64
	for _, c := range counts.vals {
		if c == 0 {
			return nil, fmt.Errorf("%w: zero leaf count", ErrDomain)
		}
		sum += c
	}
	if sum != total {
		return nil, fmt.Errorf("%w: leaf counts sum to %d, total is %d", ErrDomain, sum, total)
	}
	return &Histogram{tree: tree, total: total, counts: counts}, nil
}

// Tree returns the spatial tree the histogram lives on.
func (h *Histogram) Tree() SpatialTree { return h.tree }

// Total returns the total sample count.
func (h *Histogram) Total() uint64 { return h.total }

// Counts returns the leaf count map.
func (h *Histogram) Counts() LeafMap[uint64] { return h.counts }

// Truncation returns the histogram's leaf truncation.
func (h *Histogram) Truncation() Truncation { return h.counts.trunc }

// Cherries iterates the cherries of the histogram's truncation.
func (h *Histogram) Cherries() iter.Seq2[NodeLabel, int] {
	return h.counts.trunc.Cherries()
}

// Density returns the estimated density at the point:
// count/(total*volume) on the covering leaf, and 0 outside the root box
// or in regions no leaf covers.
func (h *Histogram) Density(p []float64) float64 {
	if !h.tree.root.Contains(p) {
		return 0
	}
	lab, count, ok := h.counts.Query(h.tree.DescendBox(p))
	if !ok {
		return 0
	}
	return float64(count) / (float64(h.total) * h.tree.VolumeAt(lab))
}

// Equal reports whether both histograms have the same tree shape,
// leaves and counts.
func (h *Histogram) Equal(o *Histogram) bool {
	if h.total != o.total || h.counts.Len() != o.counts.Len() {
		return false
	}
	if h.tree.rule != o.tree.rule || !h.tree.root.Equal(o.tree.root) {
		return false
	}
	for i := range h.counts.vals {
		if h.counts.vals[i] != o.counts.vals[i] || !h.counts.trunc.leaves[i].Equal(o.counts.trunc.leaves[i]) {
			return false
		}
	}
	return true
}

// Normalize converts the counts to a density histogram carrying
// (density, volume) per leaf, with density = count/(total*volume).
func (h *Histogram) Normalize() *DensityHistogram {
	vals := make([]DensityValue, h.counts.Len())
	for i, c := range h.counts.vals {
		vol := h.tree.VolumeAt(h.counts.trunc.leaves[i])
		vals[i] = DensityValue{
			Density: float64(c) / (float64(h.total) * vol),
			Volume:  vol,
		}
	}
	return &DensityHistogram{
		tree: h.tree,
		dens: LeafMap[DensityValue]{trunc: h.counts.trunc, vals: vals},
	}
}

// SplitAndCount grows a histogram from raw points by recursive
// splitting: starting from the leaves of start (or the root when start
// is empty), any cell for which lims still holds is split and its
// points divided between the children. On return every leaf fails lims
// and every proper ancestor of a leaf passed it. Cells left without
// points are dropped, so all counts are positive.
func SplitAndCount(tree SpatialTree, start Truncation, points [][]float64, lims SplitLimits) (*Histogram, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points to count", ErrDomain)
	}
	for _, p := range points {
		if !tree.root.Contains(p) {
			return nil, fmt.Errorf("%w: point %v outside root box", ErrDomain, p)
		}
	}

	total := uint64(len(points))
	decide := lims(tree.root.Volume(), total)

	seeds := start.leaves
	if len(seeds) == 0 {
		seeds = []NodeLabel{RootLabel}
	}
	buckets := make([][][]float64, len(seeds))
	for _, p := range points {
		i, ok := seedIndex(tree, start, p)
		if !ok {
			return nil, fmt.Errorf("%w: point %v outside every starting leaf", ErrDomain, p)
		}
		buckets[i] = append(buckets[i], p)
	}

	var (
		leaves []NodeLabel
		counts []uint64
		grow   func(l NodeLabel, cell Rectangle, pts [][]float64)
	)
	grow = func(l NodeLabel, cell Rectangle, pts [][]float64) {
		c := uint64(len(pts))
		if !decide(l.Depth(), cell.Volume(), c) {
			if c > 0 {
				leaves = append(leaves, l)
				counts = append(counts, c)
			}
			return
		}
		axis := tree.splitAxis(cell, l.Depth())
		leftCell, rightCell := cell.Split(axis)
		mid := cell.Mid(axis)
		var leftPts, rightPts [][]float64
		for _, p := range pts {
			if p[axis] < mid {
				leftPts = append(leftPts, p)
			} else {
				rightPts = append(rightPts, p)
			}
		}
		grow(l.Left(), leftCell, leftPts)
		grow(l.Right(), rightCell, rightPts)
	}
	for i, seed := range seeds {
		grow(seed, tree.CellAt(seed), buckets[i])
	}

	trunc, err := NewTruncation(leaves)
	if err != nil {
		return nil, err
	}
	// grow emits leaves in canonical order: seeds are sorted and the
	// recursion visits left before right, so counts stay aligned.
	lm, err := NewLeafMap(trunc, counts)
	if err != nil {
		return nil, err
	}
	return NewHistogram(tree, total, lm)
}

// seedIndex finds the starting leaf whose cell contains the point.
func seedIndex(tree SpatialTree, start Truncation, p []float64) (int, bool) {
	if start.Len() == 0 {
		return 0, true
	}
	for lab := range tree.DescendBox(p) {
		lo, hi := start.Subtree(lab)
		if lo == hi {
			return 0, false
		}
		if hi-lo == 1 && start.leaves[lo].Equal(lab) {
			return lo, true
		}
	}
	return 0, false
}
