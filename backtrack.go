package densitytree

import (
	"container/heap"
	"sort"
)

// A PriorityFunc scores a would-be merged leaf by its label, merged
// count and cell volume. Coarsening always merges the cherry with the
// lowest priority first.
type PriorityFunc[H any] func(lab NodeLabel, count uint64, volume float64) H

// A LessFunc is a strict total order on priorities, passed explicitly
// alongside the priority function.
type LessFunc[H any] func(a, b H) bool

// DefaultPriority is the canonical coarsening priority,
// (1 - count/total) * volume: cherries holding much mass over small
// cells merge first.
func DefaultPriority(total uint64) PriorityFunc[float64] {
	return func(_ NodeLabel, count uint64, volume float64) float64 {
		return (1 - float64(count)/float64(total)) * volume
	}
}

// Float64Less orders float64 priorities ascending.
func Float64Less(a, b float64) bool { return a < b }

// Backtrack merges the numSteps lowest-priority cherries of h and
// returns the coarsened histogram. Merging the root yields the trivial
// histogram {root: total} regardless of remaining steps. Asking for
// zero steps is a programmer error and panics.
//
// Ties in priority are always broken by label order, so the merge
// sequence is deterministic.
func Backtrack[H any](h *Histogram, prio PriorityFunc[H], less LessFunc[H], numSteps int) *Histogram {
	if numSteps < 1 {
		panic("densitytree: backtrack of zero steps")
	}
	bt := newBacktracker(h, prio, less, nil)
	for range numSteps {
		if !bt.step() {
			break
		}
	}
	return bt.materialize()
}

// BacktrackTrajectory runs a single backtrack and materializes the
// intermediate histograms at each of the given step counts, which must
// be positive and strictly increasing. The trajectory runs fine to
// coarse, ready for [SelectMDE].
func BacktrackTrajectory[H any](h *Histogram, prio PriorityFunc[H], less LessFunc[H], checkpoints []int) []*Histogram {
	for i, c := range checkpoints {
		if c < 1 || (i > 0 && c <= checkpoints[i-1]) {
			panic("densitytree: backtrack checkpoints must be positive and increasing")
		}
	}
	bt := newBacktracker(h, prio, less, nil)
	out := make([]*Histogram, 0, len(checkpoints))
	steps := 0
	for _, c := range checkpoints {
		for steps < c && bt.step() {
			steps++
		}
		out = append(out, bt.materialize())
	}
	return out
}

// MergeOrder returns the labels merged by the first numSteps backtrack
// steps, in merge order. It exists to verify coarsening laws: run to
// completion it visits every proper ancestor of every leaf exactly
// once, never visiting a node after one of its ancestors.
func MergeOrder[H any](h *Histogram, prio PriorityFunc[H], less LessFunc[H], numSteps int) []NodeLabel {
	if numSteps < 1 {
		panic("densitytree: backtrack of zero steps")
	}
	bt := newBacktracker(h, prio, less, nil)
	for range numSteps {
		if !bt.step() {
			break
		}
	}
	return bt.order
}

// BacktrackToTarget coarsens h down to exactly the leaves of target by
// running the merge loop fringe-wise: merges proceed by global priority
// but stop at each target leaf. The target must be a
// refinement-predecessor of h — every leaf of h under a target leaf and
// every target leaf above some leaf of h — otherwise the call panics.
func BacktrackToTarget[H any](h *Histogram, prio PriorityFunc[H], less LessFunc[H], target *Histogram) *Histogram {
	tt := target.counts.trunc
	for _, leaf := range h.counts.trunc.leaves {
		if _, ok := tt.CoveringLeaf(leaf); !ok {
			panic("densitytree: target does not dominate the histogram")
		}
	}
	for _, r := range tt.leaves {
		if lo, hi := h.counts.trunc.Subtree(r); lo == hi {
			panic("densitytree: target leaf covers no histogram leaf")
		}
	}
	bt := newBacktracker(h, prio, less, &tt)
	for bt.remaining > 0 && bt.step() {
	}
	return bt.materialize()
}

// CoarsenToCountLimit merges cherries lowest-count-first while the
// merged count stays within limit. It is the pre-aggregation step run
// before handing counts to a finer-grained consumer.
func CoarsenToCountLimit(h *Histogram, limit uint64) *Histogram {
	prio := func(_ NodeLabel, count uint64, _ float64) uint64 { return count }
	bt := newBacktracker(h, prio, func(a, b uint64) bool { return a < b }, nil)
	for len(bt.heap.entries) > 0 && bt.heap.entries[0].count <= limit {
		if !bt.step() {
			break
		}
	}
	return bt.materialize()
}

// mergeEntry is one pending cherry: merging it removes its kid leaves
// and makes lab a leaf.
type mergeEntry[H any] struct {
	prio  H
	lab   NodeLabel
	count uint64
	kids  []NodeLabel
}

// mergeHeap is a min-heap over pending cherries, ties broken by label.
type mergeHeap[H any] struct {
	entries []*mergeEntry[H]
	less    LessFunc[H]
}

func (mh *mergeHeap[H]) Len() int { return len(mh.entries) }

func (mh *mergeHeap[H]) Less(i, j int) bool {
	a, b := mh.entries[i], mh.entries[j]
	if mh.less(a.prio, b.prio) {
		return true
	}
	if mh.less(b.prio, a.prio) {
		return false
	}
	return a.lab.Compare(b.lab) < 0
}

func (mh *mergeHeap[H]) Swap(i, j int) {
	mh.entries[i], mh.entries[j] = mh.entries[j], mh.entries[i]
}

func (mh *mergeHeap[H]) Push(e interface{}) {
	mh.entries = append(mh.entries, e.(*mergeEntry[H]))
}

func (mh *mergeHeap[H]) Pop() interface{} {
	n := len(mh.entries) - 1
	e := mh.entries[n]
	mh.entries = mh.entries[:n]
	return e
}

// waitRec is a leaf parked until its sibling becomes a leaf too.
type waitRec struct {
	lab   NodeLabel
	count uint64
}

// backtracker carries the state of one coarsening run. The original
// truncation is never modified: current leaves live as heap entry kids,
// waiting records and finalized labels, and counts are recovered at
// materialization by slicing the original count vector over subtree
// ranges.
type backtracker[H any] struct {
	h    *Histogram
	prio PriorityFunc[H]

	heap      mergeHeap[H]
	waiting   map[string]waitRec
	finalized []NodeLabel
	order     []NodeLabel

	// target mode
	target    *Truncation
	remaining int

	atRoot bool
}

func newBacktracker[H any](h *Histogram, prio PriorityFunc[H], less LessFunc[H], target *Truncation) *backtracker[H] {
	bt := &backtracker[H]{
		h:       h,
		prio:    prio,
		heap:    mergeHeap[H]{less: less},
		waiting: make(map[string]waitRec),
		target:  target,
	}

	trunc := h.counts.trunc
	if target != nil {
		bt.remaining = target.Len()
		// Fringes that are already a single target leaf need no merge.
		for _, r := range target.leaves {
			if lo, hi := trunc.Subtree(r); hi-lo == 1 && trunc.leaves[lo].Equal(r) {
				bt.remaining--
			}
		}
	}

	inCherry := make([]bool, trunc.Len())
	for parent, i := range trunc.Cherries() {
		inCherry[i], inCherry[i+1] = true, true
		count := h.counts.vals[i] + h.counts.vals[i+1]
		bt.addCherry(parent, count, trunc.leaves[i], trunc.leaves[i+1])
	}
	for i, leaf := range trunc.leaves {
		if inCherry[i] || leaf.IsRoot() {
			continue
		}
		bt.parkOrAscend(leaf, h.counts.vals[i])
	}
	return bt
}

// addCherry enqueues a pending merge at p, except in target mode when p
// escapes every fringe, in which case its kids are final leaves.
func (bt *backtracker[H]) addCherry(p NodeLabel, count uint64, kids ...NodeLabel) {
	if bt.target != nil {
		if _, ok := bt.target.CoveringLeaf(p); !ok {
			bt.finalized = append(bt.finalized, kids...)
			return
		}
	}
	heap.Push(&bt.heap, &mergeEntry[H]{
		prio:  bt.prio(p, count, bt.h.tree.VolumeAt(p)),
		lab:   p,
		count: count,
		kids:  kids,
	})
}

// parkOrAscend handles a leaf with no cherry partner: when original
// leaves exist under its sibling it waits for them, otherwise the empty
// sibling region merges away immediately and the leaf ascends.
func (bt *backtracker[H]) parkOrAscend(leaf NodeLabel, count uint64) {
	sib := leaf.Sibling()
	if lo, hi := bt.h.counts.trunc.Subtree(sib); lo == hi {
		bt.addCherry(leaf.Parent(), count, leaf)
	} else {
		bt.waiting[sib.key()] = waitRec{lab: leaf, count: count}
	}
}

// step performs one merge: the lowest-priority cherry becomes a leaf at
// its parent label. It reports false once the root has been merged or
// nothing is left to merge.
func (bt *backtracker[H]) step() bool {
	if bt.atRoot || bt.heap.Len() == 0 {
		return false
	}
	e := heap.Pop(&bt.heap).(*mergeEntry[H])
	p := e.lab
	bt.order = append(bt.order, p)

	if p.IsRoot() {
		bt.atRoot = true
		return false
	}
	if bt.target != nil {
		if lo, hi := bt.target.Subtree(p); hi-lo == 1 && bt.target.leaves[lo].Equal(p) {
			// The fringe under this target leaf is fully merged.
			bt.finalized = append(bt.finalized, p)
			bt.remaining--
			return true
		}
	}

	if w, ok := bt.waiting[p.key()]; ok {
		delete(bt.waiting, p.key())
		kids := []NodeLabel{p, w.lab}
		if w.lab.IsLeftChild() {
			kids[0], kids[1] = w.lab, p
		}
		bt.addCherry(p.Parent(), e.count+w.count, kids...)
		return true
	}
	bt.parkOrAscend(p, e.count)
	return true
}

// materialize realizes the current truncation: the kids of pending
// merges, the waiting leaves and the finalized leaves, with counts
// recomputed from the original count vector.
func (bt *backtracker[H]) materialize() *Histogram {
	if bt.atRoot {
		root, _ := NewTruncation([]NodeLabel{RootLabel})
		lm, _ := NewLeafMap(root, []uint64{bt.h.total})
		out, _ := NewHistogram(bt.h.tree, bt.h.total, lm)
		return out
	}

	var leaves []NodeLabel
	for _, e := range bt.heap.entries {
		leaves = append(leaves, e.kids...)
	}
	for _, w := range bt.waiting {
		leaves = append(leaves, w.lab)
	}
	leaves = append(leaves, bt.finalized...)
	if len(leaves) == 0 {
		// Nothing was mergeable: h is already the trivial histogram.
		return bt.h
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Compare(leaves[j]) < 0 })

	counts := make([]uint64, len(leaves))
	for i, leaf := range leaves {
		lo, hi := bt.h.counts.trunc.Subtree(leaf)
		var sum uint64
		for _, c := range bt.h.counts.vals[lo:hi] {
			sum += c
		}
		counts[i] = sum
	}

	trunc := Truncation{leaves: leaves}
	lm := LeafMap[uint64]{trunc: trunc, vals: counts}
	out, err := NewHistogram(bt.h.tree, bt.h.total, lm)
	if err != nil {
		panic("densitytree: coarsening lost mass: " + err.Error())
	}
	return out
}
