package densitytree

import (
	"fmt"
	"math"
)

// NewHistogramFromCounts validates and assembles the input contract of
// an external aggregator: labels in canonical left-to-right order,
// pairwise incomparable, with positive counts summing to total.
func NewHistogramFromCounts(tree SpatialTree, total uint64, labels []NodeLabel, counts []uint64) (*Histogram, error) {
	if len(labels) != len(counts) {
		return nil, fmt.Errorf("%w: %d labels with %d counts", ErrDomain, len(labels), len(counts))
	}
	trunc, err := NewTruncation(labels)
	if err != nil {
		return nil, err
	}
	for i := range labels {
		if !trunc.leaves[i].Equal(labels[i]) {
			return nil, fmt.Errorf("%w: labels not in canonical order at index %d", ErrDomain, i)
		}
	}
	lm, err := NewLeafMap(trunc, counts)
	if err != nil {
		return nil, err
	}
	return NewHistogram(tree, total, lm)
}

// LabelPoints descends every point to the given depth and aggregates
// the resulting leaf counts into a histogram. Points outside the root
// box are rejected.
func LabelPoints(tree SpatialTree, points [][]float64, depth int) (*Histogram, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points to label", ErrDomain)
	}
	if depth < 0 {
		return nil, fmt.Errorf("%w: negative depth %d", ErrDomain, depth)
	}

	type slot struct {
		lab   NodeLabel
		count uint64
	}
	acc := make(map[string]*slot)
	for _, p := range points {
		var at NodeLabel
		found := false
		for lab := range tree.DescendBox(p) {
			if lab.Depth() == depth {
				at, found = lab, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: point %v outside root box", ErrDomain, p)
		}
		if s, ok := acc[at.key()]; ok {
			s.count++
		} else {
			acc[at.key()] = &slot{lab: at, count: 1}
		}
	}

	labels := make([]NodeLabel, 0, len(acc))
	for _, s := range acc {
		labels = append(labels, s.lab)
	}
	trunc, err := NewTruncation(labels)
	if err != nil {
		return nil, err
	}
	counts := make([]uint64, trunc.Len())
	for i, lab := range trunc.leaves {
		counts[i] = acc[lab.key()].count
	}
	lm, err := NewLeafMap(trunc, counts)
	if err != nil {
		return nil, err
	}
	return NewHistogram(tree, uint64(len(points)), lm)
}

// SelectMDE picks the best density along a backtrack trajectory by the
// minimum distance estimate: for every ordered pair (i, j) the Scheffé
// set {f_i > f_j} compares the mass f_i assigns to it with the fraction
// of validation points falling in it, and the density minimizing its
// worst such deviation wins. The trajectory must come from a single
// backtrack run, finest first, so that the first histogram's leaves
// refine all others. Returns the index of the selected estimate.
func SelectMDE(trajectory []*DensityHistogram, validation [][]float64) (int, error) {
	m := len(trajectory)
	if m == 0 {
		return 0, fmt.Errorf("%w: empty trajectory", ErrDomain)
	}
	if len(validation) == 0 {
		return 0, fmt.Errorf("%w: no validation points", ErrDomain)
	}
	if m == 1 {
		return 0, nil
	}

	base := trajectory[0].dens.trunc

	// Every trajectory density is constant on each base leaf.
	leafDens := make([][]float64, m)
	for i, d := range trajectory {
		leafDens[i] = make([]float64, base.Len())
		for k, leaf := range base.leaves {
			leafDens[i][k] = d.densityAtLeaf(leaf)
		}
	}
	vols := make([]float64, base.Len())
	for k, leaf := range base.leaves {
		vols[k] = trajectory[0].tree.VolumeAt(leaf)
	}

	pointDens := make([][]float64, m)
	for i, d := range trajectory {
		pointDens[i] = make([]float64, len(validation))
		for p, x := range validation {
			pointDens[i][p] = d.Density(x)
		}
	}

	best, bestDelta := 0, math.Inf(1)
	for i := 0; i < m; i++ {
		delta := 0.0
		for j := 0; j < m; j++ {
			if i == j {
				continue
			}
			var integral float64
			for k := range vols {
				if leafDens[i][k] > leafDens[j][k] {
					integral += leafDens[i][k] * vols[k]
				}
			}
			var hits int
			for p := range validation {
				if pointDens[i][p] > pointDens[j][p] {
					hits++
				}
			}
			empirical := float64(hits) / float64(len(validation))
			delta = max(delta, math.Abs(integral-empirical))
		}
		if delta < bestDelta {
			best, bestDelta = i, delta
		}
	}
	return best, nil
}
