package densitytree

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Label/truncation based test cases are difficult to read as bare
// integers. Set up some machinery to build fixtures tersely.

func lab(x uint64) NodeLabel { return NewNodeLabel(x) }

func labs(xs ...uint64) []NodeLabel {
	out := make([]NodeLabel, len(xs))
	for i, x := range xs {
		out[i] = lab(x)
	}
	return out
}

func mustTruncation(t testing.TB, xs ...uint64) Truncation {
	t.Helper()
	trunc, err := NewTruncation(labs(xs...))
	require.NoError(t, err)
	return trunc
}

// unitCube returns a widest-split tree over [0,2]^dim. All widths tie,
// so the split order cycles 0..dim-1 regardless of rule.
func unitCube(dim int) SpatialTree {
	low := make([]float64, dim)
	high := make([]float64, dim)
	for i := range high {
		high[i] = 2
	}
	root, err := NewRectangle(low, high)
	if err != nil {
		panic(err)
	}
	return WidestSplit(root)
}

func mustHistogram(t testing.TB, tree SpatialTree, leaves []uint64, counts []uint64) *Histogram {
	t.Helper()
	var total uint64
	for _, c := range counts {
		total += c
	}
	h, err := NewHistogramFromCounts(tree, total, labs(leaves...), counts)
	require.NoError(t, err)
	return h
}

// genLabel draws a random label of depth at most maxDepth.
func genLabel(t *rapid.T, maxDepth int) NodeLabel {
	depth := rapid.IntRange(0, maxDepth).Draw(t, "depth")
	l := RootLabel
	for range depth {
		if rapid.Bool().Draw(t, "right") {
			l = l.Right()
		} else {
			l = l.Left()
		}
	}
	return l
}

// genTruncation draws a random truncation by splitting leaves of the
// root repeatedly.
func genTruncation(t *rapid.T, maxSplits int) Truncation {
	leaves := []NodeLabel{RootLabel}
	splits := rapid.IntRange(0, maxSplits).Draw(t, "splits")
	for range splits {
		i := rapid.IntRange(0, len(leaves)-1).Draw(t, "leaf")
		l := leaves[i]
		leaves = append(leaves[:i:i], append([]NodeLabel{l.Left(), l.Right()}, leaves[i+1:]...)...)
	}
	trunc, err := NewTruncation(leaves)
	if err != nil {
		panic(err)
	}
	return trunc
}

// genHistogram draws a histogram with random truncation and positive
// counts over the given tree.
func genHistogram(t *rapid.T, tree SpatialTree, maxSplits int) *Histogram {
	trunc := genTruncation(t, maxSplits)
	counts := make([]uint64, trunc.Len())
	var total uint64
	for i := range counts {
		counts[i] = uint64(rapid.IntRange(1, 50).Draw(t, "count"))
		total += counts[i]
	}
	lm, err := NewLeafMap(trunc, counts)
	if err != nil {
		panic(err)
	}
	h, err := NewHistogram(tree, total, lm)
	if err != nil {
		panic(err)
	}
	return h
}

func leafSet(t Truncation) map[string]bool {
	set := make(map[string]bool, t.Len())
	for _, l := range t.leaves {
		set[l.key()] = true
	}
	return set
}
