package densitytree

import (
	"fmt"
	"iter"
	"sort"
)

// A Truncation is a finite antichain of node labels held in canonical
// left-to-right order: the leaf set of a finite subtree of the infinite
// binary tree. No label in a truncation is an ancestor of another.
//
// Because the leaves are sorted by the left/right order, the
// descendants of any label always occupy a contiguous index range,
// which is what makes subtree lookups a pair of binary searches.
//
// A Truncation is immutable once constructed.
type Truncation struct {
	leaves []NodeLabel
}

// NewTruncation builds a truncation from a leaf set. The labels are
// sorted into canonical order; it is an error for any label to be an
// ancestor of another, or to appear twice.
func NewTruncation(leaves []NodeLabel) (Truncation, error) {
	sorted := make([]NodeLabel, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})
	// In sorted order, any ancestry violation shows up between
	// neighbours: everything strictly between an ancestor and its
	// descendant is itself a descendant of that ancestor.
	for i := 0; i+1 < len(sorted); i++ {
		if sorted[i].Equal(sorted[i+1]) {
			return Truncation{}, fmt.Errorf("%w: duplicate leaf %v", ErrDomain, sorted[i])
		}
		if sorted[i].IsAncestorOf(sorted[i+1]) {
			return Truncation{}, fmt.Errorf("%w: leaf %v is an ancestor of leaf %v",
				ErrDomain, sorted[i], sorted[i+1])
		}
	}
	return Truncation{leaves: sorted}, nil
}

// Len returns the number of leaves.
func (t Truncation) Len() int { return len(t.leaves) }

// At returns the i-th leaf in left-to-right order.
func (t Truncation) At(i int) NodeLabel { return t.leaves[i] }

// Leaves returns a copy of the leaves in left-to-right order.
func (t Truncation) Leaves() []NodeLabel {
	out := make([]NodeLabel, len(t.leaves))
	copy(out, t.leaves)
	return out
}

// subtreeCmp places leaf x relative to the subtree rooted at l:
// negative when x lies left of every descendant of l, zero when x is l
// or a descendant, positive when x lies right. A proper ancestor of l
// counts as left; in an antichain it can never have company below l,
// so the induced subtree range is empty, as it should be.
func subtreeCmp(x, l NodeLabel) int {
	dx, dl := x.Depth(), l.Depth()
	if dx >= dl {
		return x.AncestorAtDepth(dl).x.Cmp(l.x)
	}
	c := x.x.Cmp(l.AncestorAtDepth(dx).x)
	if c == 0 {
		return -1
	}
	return c
}

// Subtree returns the half-open index range [lo, hi) of leaves that are
// l or descendants of l. The range is empty when no leaf lies under l.
func (t Truncation) Subtree(l NodeLabel) (lo, hi int) {
	lo = sort.Search(len(t.leaves), func(i int) bool { return subtreeCmp(t.leaves[i], l) >= 0 })
	hi = lo + sort.Search(len(t.leaves)-lo, func(i int) bool { return subtreeCmp(t.leaves[lo+i], l) > 0 })
	return lo, hi
}

// HasAsCherry reports whether both children of l appear as leaves.
func (t Truncation) HasAsCherry(l NodeLabel) bool {
	lo, hi := t.Subtree(l)
	return hi-lo == 2 && t.leaves[lo].Equal(l.Left()) && t.leaves[lo+1].Equal(l.Right())
}

// Cherries iterates the cherries of the truncation: every parent whose
// two children sit side by side in the leaf sequence, together with the
// index of the left child.
func (t Truncation) Cherries() iter.Seq2[NodeLabel, int] {
	return func(yield func(NodeLabel, int) bool) {
		for i := 0; i+1 < len(t.leaves); i++ {
			l := t.leaves[i]
			if l.IsLeftChild() && t.leaves[i+1].Equal(l.Sibling()) {
				if !yield(l.Parent(), i) {
					return
				}
			}
		}
	}
}

// CoveringLeaf returns the leaf that is x or an ancestor of x, if the
// truncation has one.
func (t Truncation) CoveringLeaf(x NodeLabel) (NodeLabel, bool) {
	// The covering leaf, if any, is the last leaf not right of x.
	i := sort.Search(len(t.leaves), func(i int) bool { return t.leaves[i].Compare(x) > 0 })
	if i > 0 && t.leaves[i-1].isAncestorOrEqual(x) {
		return t.leaves[i-1], true
	}
	return NodeLabel{}, false
}

// MinimalCompletion returns the smallest extension of the leaf set in
// which every internal node has both children present, so that the
// leaves are those of a finite complete binary subtree and partition
// the root cell. The completion of the empty truncation is the root
// alone.
func (t Truncation) MinimalCompletion() Truncation {
	out := make([]NodeLabel, 0, 2*len(t.leaves)+1)
	var fill func(l NodeLabel, lo, hi int)
	fill = func(l NodeLabel, lo, hi int) {
		if hi == lo {
			out = append(out, l)
			return
		}
		if hi-lo == 1 && t.leaves[lo].Equal(l) {
			out = append(out, l)
			return
		}
		right := l.Right()
		mid := lo + sort.Search(hi-lo, func(i int) bool { return subtreeCmp(t.leaves[lo+i], right) >= 0 })
		fill(l.Left(), lo, mid)
		fill(right, mid, hi)
	}
	fill(RootLabel, 0, len(t.leaves))
	return Truncation{leaves: out}
}

// A LeafMap pairs a truncation with one value per leaf.
type LeafMap[V any] struct {
	trunc Truncation
	vals  []V
}

// NewLeafMap builds a leaf map over an already validated truncation.
// It is an error for the value vector length to differ from the leaf
// count.
func NewLeafMap[V any](t Truncation, vals []V) (LeafMap[V], error) {
	if len(vals) != t.Len() {
		return LeafMap[V]{}, fmt.Errorf("%w: %d values for %d leaves",
			ErrDomain, len(vals), t.Len())
	}
	vs := make([]V, len(vals))
	copy(vs, vals)
	return LeafMap[V]{trunc: t, vals: vs}, nil
}

// Truncation returns the underlying truncation.
func (m LeafMap[V]) Truncation() Truncation { return m.trunc }

// Len returns the number of leaves.
func (m LeafMap[V]) Len() int { return m.trunc.Len() }

// At returns the i-th leaf and its value.
func (m LeafMap[V]) At(i int) (NodeLabel, V) {
	return m.trunc.leaves[i], m.vals[i]
}

// Query walks a lazy root-down label sequence, as produced by
// [SpatialTree.DescendBox], and returns the deepest visited label that
// is a leaf or an ancestor of a leaf. The value and true are returned
// when that label is itself a leaf.
func (m LeafMap[V]) Query(descent iter.Seq[NodeLabel]) (NodeLabel, V, bool) {
	var zero V
	cur := RootLabel
	for lab := range descent {
		lo, hi := m.trunc.Subtree(lab)
		if lo == hi {
			break
		}
		cur = lab
		if hi-lo == 1 && m.trunc.leaves[lo].Equal(lab) {
			return lab, m.vals[lo], true
		}
	}
	return cur, zero, false
}

// Slice returns the sub-map over the leaf index range [lo, hi).
// The slice shares no state with m.
func (m LeafMap[V]) Slice(lo, hi int) LeafMap[V] {
	leaves := make([]NodeLabel, hi-lo)
	copy(leaves, m.trunc.leaves[lo:hi])
	vals := make([]V, hi-lo)
	copy(vals, m.vals[lo:hi])
	return LeafMap[V]{trunc: Truncation{leaves: leaves}, vals: vals}
}

// Concat appends another leaf map whose leaves all lie strictly to the
// right of m's, preserving canonical order.
func (m LeafMap[V]) Concat(o LeafMap[V]) (LeafMap[V], error) {
	if m.Len() > 0 && o.Len() > 0 {
		last, first := m.trunc.leaves[m.Len()-1], o.trunc.leaves[0]
		if !last.IsLeftOf(first) {
			return LeafMap[V]{}, fmt.Errorf("%w: leaf %v does not precede leaf %v",
				ErrDomain, last, first)
		}
	}
	leaves := make([]NodeLabel, 0, m.Len()+o.Len())
	leaves = append(append(leaves, m.trunc.leaves...), o.trunc.leaves...)
	vals := make([]V, 0, len(leaves))
	vals = append(append(vals, m.vals...), o.vals...)
	return LeafMap[V]{trunc: Truncation{leaves: leaves}, vals: vals}, nil
}
