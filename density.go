package densitytree

import (
	"fmt"
	"math/big"
	"math/rand"
	"sort"
)

// sliceSlot accumulates the density landing on one projected label.
type sliceSlot struct {
	lab NodeLabel
	val float64
}

// A DensityValue is the payload of a normalized histogram leaf.
type DensityValue struct {
	Density float64
	Volume  float64
}

// A DensityHistogram is a normalized histogram: each leaf carries its
// density and cell volume. For a histogram produced by
// [Histogram.Normalize] the densities integrate to one.
type DensityHistogram struct {
	tree SpatialTree
	dens LeafMap[DensityValue]
}

// NewDensityHistogram assembles a density histogram from a leaf map of
// (density, volume) values. Densities and volumes must be
// non-negative.
func NewDensityHistogram(tree SpatialTree, dens LeafMap[DensityValue]) (*DensityHistogram, error) {
	for _, v := range dens.vals {
		if v.Density < 0 || v.Volume < 0 {
			return nil, fmt.Errorf("%w: negative density or volume", ErrDomain)
		}
	}
	return &DensityHistogram{tree: tree, dens: dens}, nil
}

// Tree returns the spatial tree the density lives on.
func (d *DensityHistogram) Tree() SpatialTree { return d.tree }

// Densities returns the leaf density map.
func (d *DensityHistogram) Densities() LeafMap[DensityValue] { return d.dens }

// Truncation returns the leaf truncation.
func (d *DensityHistogram) Truncation() Truncation { return d.dens.trunc }

// Mass returns the integral of the density, the sum of density times
// volume over the leaves. One for normalized histograms.
func (d *DensityHistogram) Mass() float64 {
	var mass float64
	for _, v := range d.dens.vals {
		mass += v.Density * v.Volume
	}
	return mass
}

// Density returns the density at the point, 0 outside the root box or
// off every leaf.
func (d *DensityHistogram) Density(p []float64) float64 {
	if !d.tree.root.Contains(p) {
		return 0
	}
	_, v, ok := d.dens.Query(d.tree.DescendBox(p))
	if !ok {
		return 0
	}
	return v.Density
}

// maxLeafDepth returns the depth of the deepest leaf, 0 when empty.
func (d *DensityHistogram) maxLeafDepth() int {
	depth := 0
	for _, l := range d.dens.trunc.leaves {
		depth = max(depth, l.Depth())
	}
	return depth
}

// sliceAxes validates a conditioning axis set against the tree
// dimension and returns the complementary axes.
func (d *DensityHistogram) sliceAxes(axes []int, point []float64) ([]int, error) {
	dim := d.tree.root.Dim()
	if len(axes) == 0 || len(axes) >= dim {
		return nil, fmt.Errorf("%w: conditioning on %d of %d axes", ErrDomain, len(axes), dim)
	}
	if len(point) != len(axes) {
		return nil, fmt.Errorf("%w: %d coordinates for %d axes", ErrDomain, len(point), len(axes))
	}
	cond := make(map[int]bool, len(axes))
	for i, ax := range axes {
		if ax < 0 || ax >= dim {
			return nil, fmt.Errorf("%w: axis %d out of range", ErrDomain, ax)
		}
		if i > 0 && axes[i-1] >= ax {
			return nil, fmt.Errorf("%w: axes must be strictly increasing", ErrDomain)
		}
		cond[ax] = true
	}
	free := make([]int, 0, dim-len(axes))
	for ax := 0; ax < dim; ax++ {
		if !cond[ax] {
			free = append(free, ax)
		}
	}
	return free, nil
}

// QuickSlice conditions the density on point values for the given
// axes, producing the slice density over the complementary axes
// without ever touching boxes: each leaf's path is projected by
// dropping steps on conditioning axes that agree with the point and
// rejecting the leaf on the first disagreement.
//
// splitOrder must list the axis split at each depth of the tree (see
// [SpatialTree.SplitOrderToDepth]) and must cover the deepest leaf; a
// shorter order is an error. The null sentinel nil is returned when the
// point leaves the projected root box, and when every leaf meeting the
// slice carries zero mass.
func (d *DensityHistogram) QuickSlice(axes []int, point []float64, splitOrder []int) (*DensityHistogram, error) {
	free, err := d.sliceAxes(axes, point)
	if err != nil {
		return nil, err
	}
	if maxDepth := d.maxLeafDepth(); len(splitOrder) < maxDepth {
		return nil, fmt.Errorf("%w: split order covers depth %d, deepest leaf is %d",
			ErrDomain, len(splitOrder), maxDepth)
	}
	for i, ax := range axes {
		if point[i] < d.tree.root.Low[ax] || point[i] >= d.tree.root.High[ax] {
			return nil, nil
		}
	}

	condIndex := make(map[int]int, len(axes))
	for i, ax := range axes {
		condIndex[ax] = i
	}

	acc := make(map[string]*sliceSlot)
	lo := make([]float64, len(axes))
	hi := make([]float64, len(axes))

	for n, leaf := range d.dens.trunc.leaves {
		for i, ax := range axes {
			lo[i], hi[i] = d.tree.root.Low[ax], d.tree.root.High[ax]
		}
		depth := leaf.Depth()
		proj := big.NewInt(1)
		ok := true
		for step := 0; step < depth; step++ {
			bit := leaf.x.Bit(depth - 1 - step)
			if i, cond := condIndex[splitOrder[step]]; cond {
				mid := lo[i] + (hi[i]-lo[i])/2
				side := uint(0)
				if point[i] >= mid {
					side = 1
				}
				if bit != side {
					ok = false
					break
				}
				if side == 0 {
					hi[i] = mid
				} else {
					lo[i] = mid
				}
				continue
			}
			proj.Lsh(proj, 1)
			proj.SetBit(proj, 0, bit)
		}
		if !ok {
			continue
		}
		lab := NodeLabel{x: proj}
		if s, seen := acc[lab.key()]; seen {
			s.val += d.dens.vals[n].Density
		} else {
			acc[lab.key()] = &sliceSlot{lab: lab, val: d.dens.vals[n].Density}
		}
	}

	sliced := NewSpatialTree(d.tree.root.project(free), d.tree.rule)
	return assembleSlice(sliced, acc)
}

// Slice is the direct form of [DensityHistogram.QuickSlice]: it
// enumerates leaf boxes, keeps those containing the conditioning point,
// and locates each projected box in the sliced tree by descent. The two
// must agree on leaves and values; Slice exists as the slow reference.
func (d *DensityHistogram) Slice(axes []int, point []float64) (*DensityHistogram, error) {
	free, err := d.sliceAxes(axes, point)
	if err != nil {
		return nil, err
	}
	for i, ax := range axes {
		if point[i] < d.tree.root.Low[ax] || point[i] >= d.tree.root.High[ax] {
			return nil, nil
		}
	}

	sliced := NewSpatialTree(d.tree.root.project(free), d.tree.rule)

	acc := make(map[string]*sliceSlot)

	for n, leaf := range d.dens.trunc.leaves {
		cell := d.tree.CellAt(leaf)
		hit := true
		for i, ax := range axes {
			if point[i] < cell.Low[ax] || point[i] >= cell.High[ax] {
				hit = false
				break
			}
		}
		if !hit {
			continue
		}
		box := cell.project(free)
		lab, found := locateCell(sliced, box, leaf.Depth())
		if !found {
			return nil, fmt.Errorf("%w: projected box %v is not a cell of the sliced tree",
				ErrDomain, box)
		}
		if s, seen := acc[lab.key()]; seen {
			s.val += d.dens.vals[n].Density
		} else {
			acc[lab.key()] = &sliceSlot{lab: lab, val: d.dens.vals[n].Density}
		}
	}

	return assembleSlice(sliced, acc)
}

// locateCell descends the tree toward the box center until the cell
// matches the box exactly.
func locateCell(t SpatialTree, box Rectangle, maxDepth int) (NodeLabel, bool) {
	lab, cell := RootLabel, t.root
	for depth := 0; depth <= maxDepth; depth++ {
		if cell.Equal(box) {
			return lab, true
		}
		axis := t.splitAxis(cell, depth)
		left, right := cell.Split(axis)
		if center := box.Low[axis] + box.Width(axis)/2; center < cell.Mid(axis) {
			lab, cell = lab.Left(), left
		} else {
			lab, cell = lab.Right(), right
		}
	}
	return NodeLabel{}, false
}

// assembleSlice turns accumulated (label, density) slots into a density
// histogram over the sliced tree, or the nil sentinel when the slice
// carries no mass.
func assembleSlice(sliced SpatialTree, acc map[string]*sliceSlot) (*DensityHistogram, error) {
	if len(acc) == 0 {
		return nil, nil
	}
	labels := make([]NodeLabel, 0, len(acc))
	for _, s := range acc {
		labels = append(labels, s.lab)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Compare(labels[j]) < 0 })

	vals := make([]DensityValue, len(labels))
	var mass float64
	for i, lab := range labels {
		v := DensityValue{
			Density: acc[lab.key()].val,
			Volume:  sliced.VolumeAt(lab),
		}
		vals[i] = v
		mass += v.Density * v.Volume
	}
	if mass == 0 {
		return nil, nil
	}
	return &DensityHistogram{
		tree: sliced,
		dens: LeafMap[DensityValue]{trunc: Truncation{leaves: labels}, vals: vals},
	}, nil
}

// Marginalize integrates the density over every axis not in keep,
// returning the marginal density on the kept axes. Projected leaves may
// nest; nested contributions are distributed over the minimal
// completion of the projected leaf set, so the result is again a proper
// density histogram with unchanged total mass.
func (d *DensityHistogram) Marginalize(keep []int) (*DensityHistogram, error) {
	dim := d.tree.root.Dim()
	if len(keep) == 0 || len(keep) > dim {
		return nil, fmt.Errorf("%w: keeping %d of %d axes", ErrDomain, len(keep), dim)
	}
	kept := make(map[int]int, len(keep))
	for i, ax := range keep {
		if ax < 0 || ax >= dim {
			return nil, fmt.Errorf("%w: axis %d out of range", ErrDomain, ax)
		}
		if i > 0 && keep[i-1] >= ax {
			return nil, fmt.Errorf("%w: axes must be strictly increasing", ErrDomain)
		}
		kept[ax] = i
	}

	marg := NewSpatialTree(d.tree.root.project(keep), d.tree.rule)
	splitOrder := d.tree.SplitOrderToDepth(d.maxLeafDepth())

	acc := make(map[string]*sliceSlot)
	for n, leaf := range d.dens.trunc.leaves {
		depth := leaf.Depth()
		proj := big.NewInt(1)
		for step := 0; step < depth; step++ {
			if _, ok := kept[splitOrder[step]]; !ok {
				continue
			}
			bit := leaf.x.Bit(depth - 1 - step)
			proj.Lsh(proj, 1)
			proj.SetBit(proj, 0, bit)
		}
		lab := NodeLabel{x: proj}
		v := d.dens.vals[n]
		// The marginal contribution is density times the width
		// integrated out: leaf volume over projected cell volume.
		m := v.Density * v.Volume / marg.VolumeAt(lab)
		if s, seen := acc[lab.key()]; seen {
			s.val += m
		} else {
			acc[lab.key()] = &sliceSlot{lab: lab, val: m}
		}
	}

	all := make([]NodeLabel, 0, len(acc))
	for _, s := range acc {
		all = append(all, s.lab)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Compare(all[j]) < 0 })

	// Contributions on a label that is an ancestor of another must be
	// spread over finer cells: complete the antichain of deepest
	// labels, then add each contribution uniformly over its range.
	antichain := make([]NodeLabel, 0, len(all))
	for i, lab := range all {
		if i+1 < len(all) && lab.IsAncestorOf(all[i+1]) {
			continue
		}
		antichain = append(antichain, lab)
	}
	trunc := Truncation{leaves: antichain}.MinimalCompletion()

	dens := make([]float64, trunc.Len())
	for _, s := range acc {
		lo, hi := trunc.Subtree(s.lab)
		for i := lo; i < hi; i++ {
			dens[i] += s.val
		}
	}

	var (
		labels []NodeLabel
		vals   []DensityValue
	)
	for i, lab := range trunc.leaves {
		if dens[i] == 0 {
			continue
		}
		labels = append(labels, lab)
		vals = append(vals, DensityValue{Density: dens[i], Volume: marg.VolumeAt(lab)})
	}
	return &DensityHistogram{
		tree: marg,
		dens: LeafMap[DensityValue]{trunc: Truncation{leaves: labels}, vals: vals},
	}, nil
}

// Sample draws n points from the density: a leaf with probability
// proportional to its mass, then a uniform point in the leaf's box.
// Every returned point has positive density.
func (d *DensityHistogram) Sample(rng *rand.Rand, n int) [][]float64 {
	cum := make([]float64, d.dens.Len())
	var mass float64
	for i, v := range d.dens.vals {
		mass += v.Density * v.Volume
		cum[i] = mass
	}
	if mass == 0 {
		return nil
	}

	out := make([][]float64, n)
	for k := range out {
		u := rng.Float64() * mass
		i := sort.SearchFloat64s(cum, u)
		for i < len(cum)-1 && d.dens.vals[i].Density*d.dens.vals[i].Volume == 0 {
			i++
		}
		if i == len(cum) {
			i--
		}
		cell := d.tree.CellAt(d.dens.trunc.leaves[i])
		p := make([]float64, cell.Dim())
		for ax := range p {
			p[ax] = cell.Low[ax] + rng.Float64()*cell.Width(ax)
		}
		out[k] = p
	}
	return out
}

// densityAtLeaf evaluates the density on the cell of lab, which must
// lie under one of the histogram's leaves or their ancestors.
func (d *DensityHistogram) densityAtLeaf(lab NodeLabel) float64 {
	descent := func(yield func(NodeLabel) bool) {
		for a := range lab.Ancestors() {
			if !yield(a) {
				return
			}
		}
		yield(lab)
	}
	_, v, ok := d.dens.Query(descent)
	if !ok {
		return 0
	}
	return v.Density
}
