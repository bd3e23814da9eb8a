package densitytree

import "sort"

// TailProbabilities maps each leaf of a density histogram to the
// probability mass carried by all leaves at least as dense, itself
// included. Leaves sorted by descending density therefore carry a
// non-decreasing sequence of values ending at 1, and the coverage
// region at level alpha is the set of leaves whose value does not
// exceed the confidence level for alpha.
type TailProbabilities struct {
	tree  SpatialTree
	tails LeafMap[float64]

	// The distinct cumulative values in increasing order, for
	// confidence region lookups.
	levels []float64
}

// Tails computes the tail probability map of the density. Mass is
// normalized by the histogram's total so the largest tail value is
// exactly 1; density ties accumulate in label order.
func (d *DensityHistogram) Tails() *TailProbabilities {
	n := d.dens.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return d.dens.vals[order[a]].Density > d.dens.vals[order[b]].Density
	})

	mass := d.Mass()
	vals := make([]float64, n)
	levels := make([]float64, 0, n)
	cum := 0.0
	for _, i := range order {
		v := d.dens.vals[i]
		cum += v.Density * v.Volume / mass
		vals[i] = cum
		levels = append(levels, cum)
	}
	return &TailProbabilities{
		tree:   d.tree,
		tails:  LeafMap[float64]{trunc: d.dens.trunc, vals: vals},
		levels: levels,
	}
}

// Tails returns the leaf tail probability map.
func (t *TailProbabilities) Tails() LeafMap[float64] { return t.tails }

// Query returns the tail probability at the point. Points outside the
// root box, or in regions carried by no leaf, lie outside every finite
// coverage region and report 1: unrepresented regions are null sets
// under the density.
func (t *TailProbabilities) Query(p []float64) float64 {
	if !t.tree.root.Contains(p) {
		return 1.0
	}
	_, v, ok := t.tails.Query(t.tree.DescendBox(p))
	if !ok {
		return 1.0
	}
	return v
}

// ConfidenceRegion returns the smallest stored tail value at least
// alpha: the actual probability content of the smallest coverage
// region with content alpha or more. For alpha above every stored
// value the result is 1.
func (t *TailProbabilities) ConfidenceRegion(alpha float64) float64 {
	i := sort.SearchFloat64s(t.levels, alpha)
	if i == len(t.levels) {
		return 1.0
	}
	return t.levels[i]
}

// RegionLeaves returns the leaves of the coverage region for alpha:
// every leaf whose tail value is within ConfidenceRegion(alpha).
func (t *TailProbabilities) RegionLeaves(alpha float64) []NodeLabel {
	level := t.ConfidenceRegion(alpha)
	var leaves []NodeLabel
	for i, v := range t.tails.vals {
		if v <= level {
			leaves = append(leaves, t.tails.trunc.leaves[i])
		}
	}
	return leaves
}
