// Package geometry provides the pixel masks and 2-D coordinate transforms the
// QA measurements are built from.
//
// Two coordinate conventions coexist in image analysis code: array indexing
// (row, col) and plotting/geometric (x, y) where x is the column. A Point is
// just an ordered pair; which convention it is in is always carried
// alongside it as a Convention value and converted explicitly with Convert.
package geometry

import (
	"fmt"
	"math"
)

// Convention names the meaning of a Point's two components.
type Convention int

const (
	// RowCol is array convention: Point{row, col}.
	RowCol Convention = iota
	// XY is plotting convention: Point{x, y} with x the column index.
	XY
)

func (c Convention) String() string {
	switch c {
	case RowCol:
		return "row-col"
	case XY:
		return "x-y"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// Point is an ordered coordinate pair.
type Point [2]float64

// Pt builds a Point from its two components in the order given.
func Pt(a, b float64) Point { return Point{a, b} }

// Swap exchanges the two components.
func (p Point) Swap() Point { return Point{p[1], p[0]} }

// Add returns the component-wise sum.
func (p Point) Add(q Point) Point { return Point{p[0] + q[0], p[1] + q[1]} }

// Sub returns the component-wise difference.
func (p Point) Sub(q Point) Point { return Point{p[0] - q[0], p[1] - q[1]} }

// Dist is the Euclidean distance between p and q. Both must share a convention.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p[0]-q[0], p[1]-q[1])
}

// Round rounds both components half to even.
func (p Point) Round() Point {
	return Point{math.RoundToEven(p[0]), math.RoundToEven(p[1])}
}

// Convert re-expresses points given in convention from as convention to.
// The input slice is not modified.
func Convert(points []Point, from, to Convention) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		if from == to {
			out[i] = p
		} else {
			out[i] = p.Swap()
		}
	}
	return out
}
