package densitytree

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNodeLabelBasics(t *testing.T) {
	tests := []struct {
		lab     uint64
		depth   int
		parent  uint64
		sibling uint64
		name    string
	}{
		{lab: 1, depth: 0, name: "X"},
		{lab: 2, depth: 1, parent: 1, sibling: 3, name: "XL"},
		{lab: 3, depth: 1, parent: 1, sibling: 2, name: "XR"},
		{lab: 9, depth: 3, parent: 4, sibling: 8, name: "XLLR"},
		{lab: 15, depth: 3, parent: 7, sibling: 14, name: "XRRR"},
		{lab: 5, depth: 2, parent: 2, sibling: 4, name: "XLR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := lab(tt.lab)
			assert.Equal(t, tt.depth, l.Depth())
			assert.Equal(t, tt.name, l.String())
			if tt.parent != 0 {
				assert.True(t, l.Parent().Equal(lab(tt.parent)))
				assert.True(t, l.Sibling().Equal(lab(tt.sibling)))
			}
			assert.True(t, l.Left().Equal(lab(tt.lab*2)))
			assert.True(t, l.Right().Equal(lab(tt.lab*2+1)))
		})
	}
}

func TestNodeLabelPanics(t *testing.T) {
	assert.Panics(t, func() { NewNodeLabel(0) })
	assert.Panics(t, func() { RootLabel.Parent() })
	assert.Panics(t, func() { RootLabel.Sibling() })
	assert.Panics(t, func() { NodeLabelFromBig(big.NewInt(0)) })
}

func TestNodeLabelAncestry(t *testing.T) {
	assert.True(t, lab(1).IsAncestorOf(lab(9)))
	assert.True(t, lab(4).IsAncestorOf(lab(9)))
	assert.False(t, lab(9).IsAncestorOf(lab(9)))
	assert.False(t, lab(9).IsAncestorOf(lab(4)))
	assert.False(t, lab(5).IsAncestorOf(lab(9)))

	// Ancestry and the left/right order exclude each other.
	assert.False(t, lab(4).IsLeftOf(lab(9)))
	assert.False(t, lab(4).IsRightOf(lab(9)))
	assert.True(t, lab(9).IsLeftOf(lab(5)))
	assert.True(t, lab(15).IsRightOf(lab(9)))
}

func TestNodeLabelCompare(t *testing.T) {
	// The canonical order of the leaves and inner nodes down to
	// depth 3 under the left subtree: ancestors come first.
	want := labs(1, 2, 4, 8, 9, 5, 10, 11)
	for i, a := range want {
		for j, b := range want {
			got := a.Compare(b)
			switch {
			case i < j:
				assert.Negative(t, got, "%v vs %v", a, b)
			case i > j:
				assert.Positive(t, got, "%v vs %v", a, b)
			default:
				assert.Zero(t, got, "%v vs %v", a, b)
			}
		}
	}
}

func TestNodeLabelJoin(t *testing.T) {
	tests := []struct {
		a, b, join uint64
	}{
		{9, 15, 1},
		{8, 9, 4},
		{9, 4, 4},
		{9, 9, 9},
		{10, 11, 5},
		{9, 5, 2},
	}
	for _, tt := range tests {
		assert.True(t, lab(tt.a).Join(lab(tt.b)).Equal(lab(tt.join)),
			"join(%d, %d)", tt.a, tt.b)
		assert.True(t, lab(tt.b).Join(lab(tt.a)).Equal(lab(tt.join)),
			"join(%d, %d)", tt.b, tt.a)
	}
}

func TestNodeLabelAdjacent(t *testing.T) {
	assert.True(t, lab(4).Adjacent(lab(9)))
	assert.True(t, lab(9).Adjacent(lab(4)))
	assert.True(t, lab(8).Adjacent(lab(9)))
	assert.False(t, lab(9).Adjacent(lab(9)))
	assert.False(t, lab(2).Adjacent(lab(9)))
	assert.False(t, lab(8).Adjacent(lab(5)))
}

func TestNodeLabelIterators(t *testing.T) {
	collect := func(seq func(func(NodeLabel) bool)) []NodeLabel {
		var out []NodeLabel
		for l := range seq {
			out = append(out, l)
		}
		return out
	}

	l := lab(9) // path L L R
	assert.Equal(t, labs(1, 2, 4), collect(l.Ancestors()))
	assert.Equal(t, labs(1, 2), collect(l.Lefts()))
	assert.Equal(t, labs(4), collect(l.Rights()))
	assert.Equal(t, labs(1, 2), collect(l.InitialLefts()))
	assert.Empty(t, collect(l.InitialRights()))

	r := lab(7) // path R R
	assert.Equal(t, labs(1, 3), collect(r.Rights()))
	assert.Equal(t, labs(1, 3), collect(r.InitialRights()))
	assert.Empty(t, collect(r.Lefts()))
}

func TestNodeLabelPath(t *testing.T) {
	tests := []struct {
		a, b uint64
		want []uint64
	}{
		{9, 9, nil},
		{8, 9, []uint64{4}}, // siblings meet at their parent
		{9, 4, nil},         // parent/child, nothing in between
		{8, 5, []uint64{4, 2}},
		{9, 15, []uint64{4, 2, 1, 3, 7}},
		{4, 11, []uint64{2, 5}},
	}
	for _, tt := range tests {
		got := lab(tt.a).Path(lab(tt.b))
		require.Len(t, got, len(tt.want), "path(%d, %d)", tt.a, tt.b)
		for i, w := range tt.want {
			assert.True(t, got[i].Equal(lab(w)), "path(%d, %d)[%d]", tt.a, tt.b, i)
		}
	}
}

func TestNodeLabelDeep(t *testing.T) {
	// Labels must stay exact far beyond 64 bits of path.
	l := RootLabel
	for i := range 80 {
		if i%2 == 0 {
			l = l.Left()
		} else {
			l = l.Right()
		}
	}
	require.Equal(t, 80, l.Depth())
	assert.Equal(t, 79, l.Parent().Depth())
	assert.True(t, l.Sibling().Sibling().Equal(l))
	assert.True(t, RootLabel.IsAncestorOf(l))
	assert.True(t, l.AncestorAtDepth(0).Equal(RootLabel))
	assert.Equal(t, 81, len(l.String()))
}

func TestNodeLabel_rapid(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		l := genLabel(rt, 90)
		assert.True(rt, l.Left().Parent().Equal(l))
		assert.True(rt, l.Right().Parent().Equal(l))
		assert.True(rt, l.Left().Sibling().Equal(l.Right()))
		if !l.IsRoot() {
			assert.Equal(rt, l.Depth()-1, l.Parent().Depth())
			assert.True(rt, l.Sibling().Sibling().Equal(l))
			assert.True(rt, l.Parent().IsAncestorOf(l))
		}

		m := genLabel(rt, 90)
		if l.IsAncestorOf(m) || m.IsAncestorOf(l) {
			assert.False(rt, l.IsLeftOf(m))
			assert.False(rt, l.IsRightOf(m))
		} else if !l.Equal(m) {
			// A strict total order on incomparable labels.
			assert.NotEqual(rt, l.IsLeftOf(m), l.IsRightOf(m))
			assert.Equal(rt, l.IsLeftOf(m), m.IsRightOf(l))
		}

		join := l.Join(m)
		assert.True(rt, join.isAncestorOrEqual(l))
		assert.True(rt, join.isAncestorOrEqual(m))
		if !join.Equal(l) && !join.Equal(m) {
			// Nothing deeper is a common ancestor.
			assert.False(rt, join.Left().isAncestorOrEqual(l) && join.Left().isAncestorOrEqual(m))
			assert.False(rt, join.Right().isAncestorOrEqual(l) && join.Right().isAncestorOrEqual(m))
		}
	})
}

func TestNodeLabelPath_rapid(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := genLabel(rt, 20)
		b := genLabel(rt, 20)
		path := a.Path(b)
		if a.Equal(b) {
			assert.Empty(rt, path)
			return
		}
		walk := append([]NodeLabel{a}, path...)
		walk = append(walk, b)
		for i := 0; i+1 < len(walk); i++ {
			assert.True(rt, walk[i].Adjacent(walk[i+1]),
				"%v and %v not adjacent", walk[i], walk[i+1])
		}
		for _, p := range path {
			assert.False(rt, p.Equal(a))
			assert.False(rt, p.Equal(b))
		}
	})
}
