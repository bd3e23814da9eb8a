package densitytree

import "fmt"

// A Rectangle is an axis-aligned box given by its low and high corners.
type Rectangle struct {
	Low  []float64
	High []float64
}

// NewRectangle returns a rectangle suitable as a spatial tree root:
// both corners must have the same positive dimension and every side
// must have strictly positive width.
func NewRectangle(low, high []float64) (Rectangle, error) {
	if len(low) == 0 || len(low) != len(high) {
		return Rectangle{}, fmt.Errorf("%w: corners have dimensions %d and %d",
			ErrDomain, len(low), len(high))
	}
	for i := range low {
		if !(low[i] < high[i]) {
			return Rectangle{}, fmt.Errorf("%w: axis %d has non-positive width [%g, %g]",
				ErrDomain, i, low[i], high[i])
		}
	}
	return Rectangle{Low: clone(low), High: clone(high)}, nil
}

// BoundingBox returns the smallest rectangle containing all points.
// The result may have zero-width sides; it contains every input point
// but is not necessarily a valid tree root.
func BoundingBox(points [][]float64) (Rectangle, error) {
	if len(points) == 0 {
		return Rectangle{}, fmt.Errorf("%w: bounding box of no points", ErrDomain)
	}
	dim := len(points[0])
	low, high := clone(points[0]), clone(points[0])
	for _, p := range points[1:] {
		if len(p) != dim {
			return Rectangle{}, fmt.Errorf("%w: point has dimension %d, want %d",
				ErrDomain, len(p), dim)
		}
		for i, x := range p {
			low[i] = min(low[i], x)
			high[i] = max(high[i], x)
		}
	}
	return Rectangle{Low: low, High: high}, nil
}

// Point returns the degenerate rectangle holding exactly x.
// Its volume is zero.
func Point(x []float64) Rectangle {
	return Rectangle{Low: clone(x), High: clone(x)}
}

// Dim returns the number of axes.
func (r Rectangle) Dim() int { return len(r.Low) }

// Width returns the side length along the given axis.
func (r Rectangle) Width(axis int) float64 { return r.High[axis] - r.Low[axis] }

// Volume returns the product of the side lengths.
func (r Rectangle) Volume() float64 {
	v := 1.0
	for i := range r.Low {
		v *= r.High[i] - r.Low[i]
	}
	return v
}

// Contains reports whether the point lies in the closed box.
func (r Rectangle) Contains(p []float64) bool {
	if len(p) != len(r.Low) {
		return false
	}
	for i, x := range p {
		if x < r.Low[i] || x > r.High[i] {
			return false
		}
	}
	return true
}

// Mid returns the midpoint of the given axis.
func (r Rectangle) Mid(axis int) float64 {
	return r.Low[axis] + (r.High[axis]-r.Low[axis])/2
}

// Split halves the rectangle at the midpoint of the given axis.
func (r Rectangle) Split(axis int) (left, right Rectangle) {
	mid := r.Mid(axis)
	left = Rectangle{Low: clone(r.Low), High: clone(r.High)}
	right = Rectangle{Low: clone(r.Low), High: clone(r.High)}
	left.High[axis] = mid
	right.Low[axis] = mid
	return left, right
}

// Equal reports whether both corners coincide exactly.
func (r Rectangle) Equal(o Rectangle) bool {
	if len(r.Low) != len(o.Low) {
		return false
	}
	for i := range r.Low {
		if r.Low[i] != o.Low[i] || r.High[i] != o.High[i] {
			return false
		}
	}
	return true
}

// project keeps only the given axes.
func (r Rectangle) project(axes []int) Rectangle {
	low := make([]float64, len(axes))
	high := make([]float64, len(axes))
	for i, ax := range axes {
		low[i], high[i] = r.Low[ax], r.High[ax]
	}
	return Rectangle{Low: low, High: high}
}

func clone(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	return out
}
