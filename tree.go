package densitytree

import (
	"fmt"
	"iter"
	"math"
)

// A SplitRule decides which axis a cell is halved along.
type SplitRule int

const (
	// RuleCycle splits the axis depth mod d at its midpoint.
	RuleCycle SplitRule = iota
	// RuleWidest splits the widest side at its midpoint,
	// ties broken by the lowest axis index.
	RuleWidest
)

func (r SplitRule) String() string {
	switch r {
	case RuleCycle:
		return "cycle"
	case RuleWidest:
		return "widest"
	default:
		return fmt.Sprintf("SplitRule(%d)", int(r))
	}
}

func parseSplitRule(s string) (SplitRule, error) {
	switch s {
	case "cycle":
		return RuleCycle, nil
	case "widest":
		return RuleWidest, nil
	default:
		return 0, fmt.Errorf("%w: unknown split rule %q", ErrDomain, s)
	}
}

// A SpatialTree maps node labels to boxes by deterministic midpoint
// splitting of a root box. Since every split halves a side exactly, the
// box of a label is a pure function of the label, the root box and the
// split rule; nothing is materialized.
//
// Both rules split every cell of a given depth along the same axis, so
// the axis sequence of a tree is a function of depth alone.
type SpatialTree struct {
	root Rectangle
	rule SplitRule
}

// CycleSplit returns the tree halving axes in round-robin order.
func CycleSplit(root Rectangle) SpatialTree {
	return SpatialTree{root: root, rule: RuleCycle}
}

// WidestSplit returns the tree always halving the widest side.
func WidestSplit(root Rectangle) SpatialTree {
	return SpatialTree{root: root, rule: RuleWidest}
}

// NewSpatialTree returns the tree over root using the given rule.
func NewSpatialTree(root Rectangle, rule SplitRule) SpatialTree {
	return SpatialTree{root: root, rule: rule}
}

// Root returns the root box.
func (t SpatialTree) Root() Rectangle { return t.root }

// Rule returns the split rule.
func (t SpatialTree) Rule() SplitRule { return t.rule }

// splitAxis returns the axis along which a cell of the given shape and
// depth is split.
func (t SpatialTree) splitAxis(box Rectangle, depth int) int {
	if t.rule == RuleCycle {
		return depth % box.Dim()
	}
	axis := 0
	for i := 1; i < box.Dim(); i++ {
		if box.Width(i) > box.Width(axis) {
			axis = i
		}
	}
	return axis
}

// UnfoldTree replays a label's root-to-node path over caller state:
// starting from root, it applies left or right once per path step and
// returns the final state. Applied to the root label with the child
// functions of NodeLabel it is the identity on labels; applied to box
// halving functions it computes cells.
func UnfoldTree[A any](root A, left, right func(A) A) func(NodeLabel) A {
	return func(l NodeLabel) A {
		a := root
		for i := l.Depth() - 1; i >= 0; i-- {
			if l.x.Bit(i) == 0 {
				a = left(a)
			} else {
				a = right(a)
			}
		}
		return a
	}
}

type cellState struct {
	box   Rectangle
	depth int
}

func (t SpatialTree) childState(s cellState, rightSide bool) cellState {
	left, right := s.box.Split(t.splitAxis(s.box, s.depth))
	if rightSide {
		return cellState{box: right, depth: s.depth + 1}
	}
	return cellState{box: left, depth: s.depth + 1}
}

// CellAt returns the box of the cell addressed by the label.
func (t SpatialTree) CellAt(l NodeLabel) Rectangle {
	unfold := UnfoldTree(cellState{box: t.root},
		func(s cellState) cellState { return t.childState(s, false) },
		func(s cellState) cellState { return t.childState(s, true) },
	)
	return unfold(l).box
}

// AxisAt returns the axis along which the cell at the label is split.
func (t SpatialTree) AxisAt(l NodeLabel) int {
	return t.splitAxis(t.CellAt(l), l.Depth())
}

// VolumeAt returns the volume of the cell at the label. Midpoint
// splitting halves the volume once per level, exactly.
func (t SpatialTree) VolumeAt(l NodeLabel) float64 {
	return math.Ldexp(t.root.Volume(), -l.Depth())
}

// DescendBox yields the infinite label sequence of cells containing the
// point, starting at the root. Cells are half open: a point on a split
// midpoint belongs to the right child. The sequence is empty when the
// point lies outside the root box.
func (t SpatialTree) DescendBox(p []float64) iter.Seq[NodeLabel] {
	return func(yield func(NodeLabel) bool) {
		for lab := range t.DescendBoxPrime(p) {
			if !yield(lab) {
				return
			}
		}
	}
}

// DescendBoxPrime is DescendBox with the boxes materialized alongside
// the labels.
func (t SpatialTree) DescendBoxPrime(p []float64) iter.Seq2[NodeLabel, Rectangle] {
	return func(yield func(NodeLabel, Rectangle) bool) {
		if !t.root.Contains(p) {
			return
		}
		lab, box, depth := RootLabel, t.root, 0
		for {
			if !yield(lab, box) {
				return
			}
			axis := t.splitAxis(box, depth)
			left, right := box.Split(axis)
			if p[axis] < box.Mid(axis) {
				lab, box = lab.Left(), left
			} else {
				lab, box = lab.Right(), right
			}
			depth++
		}
	}
}

// SplitOrderToDepth returns the axis split at each of the first depth
// levels of the tree.
func (t SpatialTree) SplitOrderToDepth(depth int) []int {
	order := make([]int, depth)
	widths := make([]float64, t.root.Dim())
	for i := range widths {
		widths[i] = t.root.Width(i)
	}
	for d := range order {
		axis := 0
		if t.rule == RuleCycle {
			axis = d % len(widths)
		} else {
			for i := 1; i < len(widths); i++ {
				if widths[i] > widths[axis] {
					axis = i
				}
			}
		}
		order[d] = axis
		widths[axis] /= 2
	}
	return order
}

// DepthForSideLength returns the first depth at which the widest side
// of a cell falls below the given side length.
func (t SpatialTree) DepthForSideLength(side float64) int {
	if side <= 0 {
		panic("densitytree: side length must be positive")
	}
	widths := make([]float64, t.root.Dim())
	for i := range widths {
		widths[i] = t.root.Width(i)
	}
	depth := 0
	for {
		widest := 0
		for i := 1; i < len(widths); i++ {
			if widths[i] > widths[widest] {
				widest = i
			}
		}
		if widths[widest] < side {
			return depth
		}
		axis := widest
		if t.rule == RuleCycle {
			axis = depth % len(widths)
		}
		widths[axis] /= 2
		depth++
	}
}

// A CellCache memoizes CellAt, filling incrementally from parents. It
// is not safe for concurrent use.
type CellCache struct {
	tree  SpatialTree
	cells map[string]Rectangle
}

// NewCellCache returns an empty cache over the tree.
func NewCellCache(tree SpatialTree) *CellCache {
	return &CellCache{tree: tree, cells: make(map[string]Rectangle)}
}

// CellAt returns the cell of the label, computing and caching every
// ancestor cell not yet seen.
func (c *CellCache) CellAt(l NodeLabel) Rectangle {
	if l.IsRoot() {
		return c.tree.root
	}
	if box, ok := c.cells[l.key()]; ok {
		return box
	}
	parent := c.CellAt(l.Parent())
	left, right := parent.Split(c.tree.splitAxis(parent, l.Depth()-1))
	box := left
	if l.IsRightChild() {
		box = right
	}
	c.cells[l.key()] = box
	return box
}
