package densitytree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// sliceFixture is the density of the quick-slice scenarios: two unit
// cells of the [0,2]^3 widest-split cube, each with density 0.5.
func sliceFixture(t testing.TB) *DensityHistogram {
	t.Helper()
	trunc := mustTruncation(t, 9, 15)
	lm, err := NewLeafMap(trunc, []DensityValue{{0.5, 1.0}, {0.5, 1.0}})
	require.NoError(t, err)
	d, err := NewDensityHistogram(unitCube(3), lm)
	require.NoError(t, err)
	return d
}

func TestQuickSlice(t *testing.T) {
	d := sliceFixture(t)
	splitOrder := d.Tree().SplitOrderToDepth(3)

	tests := []struct {
		name   string
		axes   []int
		point  []float64
		leaves []uint64
		vals   []DensityValue
	}{
		{
			name:   "xy/lower",
			axes:   []int{0, 1},
			point:  []float64{0.5, 0.5},
			leaves: []uint64{3},
			vals:   []DensityValue{{0.5, 1.0}},
		},
		{
			name:   "xz/upper",
			axes:   []int{0, 2},
			point:  []float64{1.5, 1.5},
			leaves: []uint64{3},
			vals:   []DensityValue{{0.5, 1.0}},
		},
		{
			name:   "yz/mixed",
			axes:   []int{1, 2},
			point:  []float64{0.5, 1.5},
			leaves: []uint64{2},
			vals:   []DensityValue{{0.5, 1.0}},
		},
		{
			name:   "z/upper",
			axes:   []int{2},
			point:  []float64{1.5},
			leaves: []uint64{4, 7},
			vals:   []DensityValue{{0.5, 1.0}, {0.5, 1.0}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.QuickSlice(tt.axes, tt.point, splitOrder)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, labs(tt.leaves...), got.Truncation().Leaves())
			for i, want := range tt.vals {
				_, v := got.Densities().At(i)
				assert.InDelta(t, want.Density, v.Density, 1e-12)
				assert.InDelta(t, want.Volume, v.Volume, 1e-12)
			}
		})
	}
}

func TestQuickSliceNullSentinel(t *testing.T) {
	d := sliceFixture(t)
	splitOrder := d.Tree().SplitOrderToDepth(3)

	// The conditioning plane crosses only empty regions.
	got, err := d.QuickSlice([]int{0, 1}, []float64{0.5, 1.5}, splitOrder)
	require.NoError(t, err)
	assert.Nil(t, got)

	// The point leaves the projected root box.
	got, err = d.QuickSlice([]int{0, 1}, []float64{2.5, 0.5}, splitOrder)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQuickSliceErrors(t *testing.T) {
	d := sliceFixture(t)

	// A split order shorter than the deepest leaf cannot project.
	_, err := d.QuickSlice([]int{0, 1}, []float64{0.5, 0.5}, d.Tree().SplitOrderToDepth(2))
	assert.ErrorIs(t, err, ErrDomain)

	splitOrder := d.Tree().SplitOrderToDepth(3)
	_, err = d.QuickSlice([]int{1, 0}, []float64{0.5, 0.5}, splitOrder)
	assert.ErrorIs(t, err, ErrDomain)
	_, err = d.QuickSlice([]int{0, 1, 2}, []float64{0.5, 0.5, 0.5}, splitOrder)
	assert.ErrorIs(t, err, ErrDomain)
	_, err = d.QuickSlice([]int{0, 3}, []float64{0.5, 0.5}, splitOrder)
	assert.ErrorIs(t, err, ErrDomain)
	_, err = d.QuickSlice([]int{0}, []float64{0.5, 0.5}, splitOrder)
	assert.ErrorIs(t, err, ErrDomain)
}

func TestQuickSliceAgreesWithSlice_rapid(t *testing.T) {
	tree := unitCube(3)
	rapid.Check(t, func(rt *rapid.T) {
		h := genHistogram(rt, tree, 8)
		d := h.Normalize()
		splitOrder := tree.SplitOrderToDepth(d.maxLeafDepth())

		var axes []int
		for ax := 0; ax < 3; ax++ {
			if rapid.Bool().Draw(rt, "cond") {
				axes = append(axes, ax)
			}
		}
		if len(axes) == 0 || len(axes) == 3 {
			return
		}
		point := make([]float64, len(axes))
		for i := range point {
			point[i] = rapid.Float64Range(0, 1.99).Draw(rt, "coord")
		}

		quick, qerr := d.QuickSlice(axes, point, splitOrder)
		naive, nerr := d.Slice(axes, point)
		require.NoError(rt, qerr)
		require.NoError(rt, nerr)

		if naive == nil || quick == nil {
			assert.Nil(rt, naive)
			assert.Nil(rt, quick)
			return
		}
		require.Equal(rt, naive.Truncation().Leaves(), quick.Truncation().Leaves())
		for i := 0; i < naive.Densities().Len(); i++ {
			_, nv := naive.Densities().At(i)
			_, qv := quick.Densities().At(i)
			assert.InDelta(rt, nv.Density, qv.Density, 1e-12)
			assert.InDelta(rt, nv.Volume, qv.Volume, 1e-12)
		}

		// Slice values agree with the unsliced density at the
		// recombined points.
		for i := 0; i < quick.Densities().Len(); i++ {
			leaf, v := quick.Densities().At(i)
			cell := quick.Tree().CellAt(leaf)
			full := make([]float64, 3)
			for j, ax := range axes {
				full[ax] = point[j]
			}
			k := 0
			for ax := 0; ax < 3; ax++ {
				if k < len(axes) && axes[k] == ax {
					k++
					continue
				}
				full[ax] = cell.Low[ax-k] + cell.Width(ax-k)/2
			}
			assert.InDelta(rt, d.Density(full), v.Density, 1e-12)
		}
	})
}

func TestMarginalize(t *testing.T) {
	// On [0,2]^2 with the cycle rule: x split first, then y on the
	// right half only.
	root, err := NewRectangle([]float64{0, 0}, []float64{2, 2})
	require.NoError(t, err)
	tree := CycleSplit(root)
	trunc := mustTruncation(t, 2, 6, 7)
	lm, err := NewLeafMap(trunc, []DensityValue{{0.25, 2.0}, {0.3, 1.0}, {0.2, 1.0}})
	require.NoError(t, err)
	d, err := NewDensityHistogram(tree, lm)
	require.NoError(t, err)

	// Keeping x merges the y split: leaf 2 stays, 6 and 7 collide on 3.
	mx, err := d.Marginalize([]int{0})
	require.NoError(t, err)
	assert.Equal(t, labs(2, 3), mx.Truncation().Leaves())
	_, v := mx.Densities().At(0)
	assert.InDelta(t, 0.5, v.Density, 1e-12) // 0.25 * 2/1
	_, v = mx.Densities().At(1)
	assert.InDelta(t, 0.5, v.Density, 1e-12) // 0.3 + 0.2
	assert.InDelta(t, d.Mass(), mx.Mass(), 1e-12)

	// Keeping y projects leaf 2 onto the whole line; its mass is
	// spread over the completion of the deeper projections.
	my, err := d.Marginalize([]int{1})
	require.NoError(t, err)
	assert.Equal(t, labs(2, 3), my.Truncation().Leaves())
	_, v = my.Densities().At(0)
	assert.InDelta(t, 0.55, v.Density, 1e-12) // 0.25 + 0.3
	_, v = my.Densities().At(1)
	assert.InDelta(t, 0.45, v.Density, 1e-12) // 0.25 + 0.2
	assert.InDelta(t, d.Mass(), my.Mass(), 1e-12)

	_, err = d.Marginalize(nil)
	assert.ErrorIs(t, err, ErrDomain)
	_, err = d.Marginalize([]int{2})
	assert.ErrorIs(t, err, ErrDomain)
}

func TestMarginalizeMass_rapid(t *testing.T) {
	tree := unitCube(3)
	rapid.Check(t, func(rt *rapid.T) {
		d := genHistogram(rt, tree, 8).Normalize()
		var keep []int
		for ax := 0; ax < 3; ax++ {
			if rapid.Bool().Draw(rt, "keep") {
				keep = append(keep, ax)
			}
		}
		if len(keep) == 0 {
			return
		}
		m, err := d.Marginalize(keep)
		require.NoError(rt, err)
		assert.InDelta(rt, 1.0, m.Mass(), 1e-10)
	})
}

func TestSample(t *testing.T) {
	h := mustHistogram(t, unitCube(2), []uint64{4, 7}, []uint64{3, 5})
	d := h.Normalize()
	rng := rand.New(rand.NewSource(1))

	samples := d.Sample(rng, 200)
	require.Len(t, samples, 200)
	var inFour int
	for _, p := range samples {
		assert.Positive(t, d.Density(p), "sample %v off the density", p)
		assert.True(t, d.Tree().Root().Contains(p))
		if p[0] < 1 && p[1] < 1 {
			inFour++
		}
	}
	// Mass splits 3:5 between the two leaves, so about 75 of the 200
	// draws land in the light leaf; the bounds leave wide room.
	assert.Greater(t, inFour, 20)
	assert.Less(t, inFour, 150)
}
