package densitytree

import (
	"iter"
	"math/big"
	"strings"
)

// NodeLabel addresses a node of the infinite binary tree by the integer
// encoding of its root-to-node path.
//
// The binary expansion of the label is the path: the most significant
// 1-bit is a sentinel marking the root, and every following bit is one
// step down the tree, 0 for left and 1 for right. The root is 1, its
// children are 2 and 3, and in general the children of label l are 2l
// and 2l+1. All structural relations (parent, sibling, ancestry, the
// left/right order) are therefore plain bit manipulations, and no node
// objects or back-pointers ever exist.
//
// Labels are arbitrary precision so trees may be refined far beyond 64
// levels. A NodeLabel is immutable; all methods return fresh labels.
type NodeLabel struct {
	x *big.Int
}

// RootLabel is the label of the tree root.
var RootLabel = NewNodeLabel(1)

// NewNodeLabel returns the label for the given integer.
// It panics if lab is zero: valid labels start at the root, 1.
func NewNodeLabel(lab uint64) NodeLabel {
	if lab == 0 {
		panic("densitytree: node labels must be >= 1")
	}
	return NodeLabel{x: new(big.Int).SetUint64(lab)}
}

// NodeLabelFromBig returns the label for a big integer, copying it.
// It panics if lab is not positive.
func NodeLabelFromBig(lab *big.Int) NodeLabel {
	if lab == nil || lab.Sign() < 1 {
		panic("densitytree: node labels must be >= 1")
	}
	return NodeLabel{x: new(big.Int).Set(lab)}
}

// Big returns a copy of the label's integer value.
func (l NodeLabel) Big() *big.Int {
	return new(big.Int).Set(l.x)
}

// key is the map key form of the label. big.Int is not comparable, but
// the byte representation of a positive integer is unique.
func (l NodeLabel) key() string {
	return string(l.x.Bytes())
}

// Depth returns the number of edges from the root, 0 for the root.
func (l NodeLabel) Depth() int {
	return l.x.BitLen() - 1
}

// IsRoot reports whether l is the root label.
func (l NodeLabel) IsRoot() bool {
	return l.x.BitLen() == 1
}

// Parent returns the label one step up.
// It panics on the root, which has no parent.
func (l NodeLabel) Parent() NodeLabel {
	if l.IsRoot() {
		panic("densitytree: root label has no parent")
	}
	return NodeLabel{x: new(big.Int).Rsh(l.x, 1)}
}

// Left returns the left child label, 2l.
func (l NodeLabel) Left() NodeLabel {
	return NodeLabel{x: new(big.Int).Lsh(l.x, 1)}
}

// Right returns the right child label, 2l+1.
func (l NodeLabel) Right() NodeLabel {
	x := new(big.Int).Lsh(l.x, 1)
	return NodeLabel{x: x.SetBit(x, 0, 1)}
}

// Sibling returns the label sharing l's parent.
// It panics on the root.
func (l NodeLabel) Sibling() NodeLabel {
	if l.IsRoot() {
		panic("densitytree: root label has no sibling")
	}
	return NodeLabel{x: new(big.Int).Xor(l.x, big.NewInt(1))}
}

// IsLeftChild reports whether l is the left child of its parent.
// The root is neither child.
func (l NodeLabel) IsLeftChild() bool {
	return !l.IsRoot() && l.x.Bit(0) == 0
}

// IsRightChild reports whether l is the right child of its parent.
func (l NodeLabel) IsRightChild() bool {
	return !l.IsRoot() && l.x.Bit(0) == 1
}

// Equal reports whether the two labels address the same node.
func (l NodeLabel) Equal(m NodeLabel) bool {
	return l.x.Cmp(m.x) == 0
}

// AncestorAtDepth returns the ancestor-or-self of l at the given depth.
// It panics when depth is negative or exceeds l's own depth.
func (l NodeLabel) AncestorAtDepth(depth int) NodeLabel {
	d := l.Depth()
	if depth < 0 || depth > d {
		panic("densitytree: no ancestor at that depth")
	}
	return NodeLabel{x: new(big.Int).Rsh(l.x, uint(d-depth))}
}

// IsAncestorOf reports whether l is a proper ancestor of m,
// that is, l's path is a strict prefix of m's path.
func (l NodeLabel) IsAncestorOf(m NodeLabel) bool {
	dl, dm := l.Depth(), m.Depth()
	if dl >= dm {
		return false
	}
	return l.x.Cmp(new(big.Int).Rsh(m.x, uint(dm-dl))) == 0
}

func (l NodeLabel) isAncestorOrEqual(m NodeLabel) bool {
	return l.Equal(m) || l.IsAncestorOf(m)
}

// Compare orders labels left to right: both labels are truncated to
// their common depth and compared as integers, and when one is an
// ancestor of the other the shallower label comes first. The result is
// negative, zero or positive in the manner of [big.Int.Cmp].
func (l NodeLabel) Compare(m NodeLabel) int {
	dl, dm := l.Depth(), m.Depth()
	switch {
	case dl == dm:
		return l.x.Cmp(m.x)
	case dl < dm:
		if c := l.x.Cmp(new(big.Int).Rsh(m.x, uint(dm-dl))); c != 0 {
			return c
		}
		return -1
	default:
		if c := new(big.Int).Rsh(l.x, uint(dl-dm)).Cmp(m.x); c != 0 {
			return c
		}
		return 1
	}
}

// IsLeftOf reports whether l's subtree lies strictly to the left of
// m's. Labels related by ancestry are neither left nor right of each
// other.
func (l NodeLabel) IsLeftOf(m NodeLabel) bool {
	d := min(l.Depth(), m.Depth())
	return l.AncestorAtDepth(d).x.Cmp(m.AncestorAtDepth(d).x) < 0
}

// IsRightOf reports whether l's subtree lies strictly to the right of m's.
func (l NodeLabel) IsRightOf(m NodeLabel) bool {
	return m.IsLeftOf(l)
}

// Join returns the lowest common ancestor of l and m: the longest
// common prefix of the two paths.
func (l NodeLabel) Join(m NodeLabel) NodeLabel {
	a, b := l.x, m.x
	if da, db := a.BitLen(), b.BitLen(); da > db {
		a = new(big.Int).Rsh(a, uint(da-db))
	} else if db > da {
		b = new(big.Int).Rsh(b, uint(db-da))
	}
	for a.Cmp(b) != 0 {
		a = new(big.Int).Rsh(a, 1)
		b = new(big.Int).Rsh(b, 1)
	}
	return NodeLabel{x: new(big.Int).Set(a)}
}

// Adjacent reports whether l and m are joined by a single tree edge or
// share a parent: parent/child or siblings.
func (l NodeLabel) Adjacent(m NodeLabel) bool {
	if !l.IsRoot() && (l.Parent().Equal(m) || l.Sibling().Equal(m)) {
		return true
	}
	return !m.IsRoot() && m.Parent().Equal(l)
}

// Ancestors iterates the proper ancestors of l from the root downward.
func (l NodeLabel) Ancestors() iter.Seq[NodeLabel] {
	return func(yield func(NodeLabel) bool) {
		for d := 0; d < l.Depth(); d++ {
			if !yield(l.AncestorAtDepth(d)) {
				return
			}
		}
	}
}

// Lefts iterates, root downward, the proper ancestors of l from which
// l's path steps left.
func (l NodeLabel) Lefts() iter.Seq[NodeLabel] {
	return l.steps(0, false)
}

// Rights iterates, root downward, the proper ancestors of l from which
// l's path steps right.
func (l NodeLabel) Rights() iter.Seq[NodeLabel] {
	return l.steps(1, false)
}

// InitialLefts iterates the ancestors along the maximal leading run of
// left steps in l's path.
func (l NodeLabel) InitialLefts() iter.Seq[NodeLabel] {
	return l.steps(0, true)
}

// InitialRights iterates the ancestors along the maximal leading run of
// right steps in l's path.
func (l NodeLabel) InitialRights() iter.Seq[NodeLabel] {
	return l.steps(1, true)
}

// steps walks the path bits from most to least significant under the
// sentinel, yielding the ancestor before each step whose bit matches
// side. With initial set, it stops at the first mismatch.
func (l NodeLabel) steps(side uint, initial bool) iter.Seq[NodeLabel] {
	depth := l.Depth()
	return func(yield func(NodeLabel) bool) {
		for d := 0; d < depth; d++ {
			if l.x.Bit(depth-d-1) == side {
				if !yield(l.AncestorAtDepth(d)) {
					return
				}
			} else if initial {
				return
			}
		}
	}
}

// Path returns the open label sequence traversed when walking the tree
// from l to m via their join: the labels strictly between the two
// endpoints, with the join included when it is an endpoint of neither.
// The sequence is empty when l and m are equal or when one is the
// parent of the other, and every consecutive pair of elements is one
// edge apart.
func (l NodeLabel) Path(m NodeLabel) []NodeLabel {
	if l.Equal(m) {
		return nil
	}
	join := l.Join(m)

	var path []NodeLabel
	for a := l; !a.Equal(join); {
		a = a.Parent()
		if !a.Equal(m) {
			path = append(path, a)
		}
	}
	// Downward from the join, excluding both the join (already
	// appended above unless it is l or m) and m itself.
	jd := join.Depth()
	for d := jd + 1; d < m.Depth(); d++ {
		path = append(path, m.AncestorAtDepth(d))
	}
	return path
}

// String renders the root-to-node path as an MRS name: "X" for the
// root followed by one "L" or "R" per step.
func (l NodeLabel) String() string {
	depth := l.Depth()
	var sb strings.Builder
	sb.Grow(depth + 1)
	sb.WriteByte('X')
	for i := depth - 1; i >= 0; i-- {
		if l.x.Bit(i) == 0 {
			sb.WriteByte('L')
		} else {
			sb.WriteByte('R')
		}
	}
	return sb.String()
}
