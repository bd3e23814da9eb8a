package densitytree_test

import (
	"fmt"

	"go.abhg.dev/algorithm/densitytree"
)

func Example() {
	// A 2-D box, split in round-robin axis order.
	root, err := densitytree.NewRectangle([]float64{0, 0}, []float64{4, 4})
	if err != nil {
		panic(err)
	}
	tree := densitytree.CycleSplit(root)

	// Count some samples into depth-2 cells. Most of the mass sits
	// in the lower-left quadrant.
	points := [][]float64{
		{0.5, 0.5}, {1.0, 1.2}, {0.3, 1.8}, {1.7, 0.2}, {1.1, 1.1},
		{0.8, 2.5},
		{2.5, 0.8},
		{3.1, 3.2},
	}
	h, err := densitytree.LabelPoints(tree, points, 2)
	if err != nil {
		panic(err)
	}

	// Merge the two lowest-priority cherries and normalize: two
	// steps leave one cell per half of the box.
	coarse := densitytree.Backtrack(h,
		densitytree.DefaultPriority(h.Total()), densitytree.Float64Less, 2)
	density := coarse.Normalize()

	fmt.Printf("%.3f\n", density.Density([]float64{1, 1}))
	fmt.Printf("%.3f\n", density.Density([]float64{3, 3}))

	// Output:
	// 0.094
	// 0.031
}
