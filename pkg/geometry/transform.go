package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"phantomqa/pkg/qaerr"
)

// Transform is a 2x3 affine matrix acting on XY coordinates:
//
//	x' = T[0][0]*x + T[0][1]*y + T[0][2]
//	y' = T[1][0]*x + T[1][1]*y + T[1][2]
//
// Rigid (rotation + translation) and similarity transforms are special cases.
type Transform [2][3]float64

// Identity returns the transform that leaves points unchanged.
func Identity() Transform {
	return Transform{{1, 0, 0}, {0, 1, 0}}
}

// Euclidean builds a rotation by theta radians (counter-clockwise in XY)
// followed by a translation of (tx, ty).
func Euclidean(theta, tx, ty float64) Transform {
	c, s := math.Cos(theta), math.Sin(theta)
	return Transform{{c, -s, tx}, {s, c, ty}}
}

// ApplyXY maps a single XY point.
func (t Transform) ApplyXY(p Point) Point {
	return Point{
		t[0][0]*p[0] + t[0][1]*p[1] + t[0][2],
		t[1][0]*p[0] + t[1][1]*p[1] + t[1][2],
	}
}

// Apply maps points through t. in names the convention of the input points
// and out the convention of the result; neither is assumed.
func Apply(points []Point, t Transform, in, out Convention) []Point {
	xy := Convert(points, in, XY)
	for i, p := range xy {
		xy[i] = t.ApplyXY(p)
	}
	return Convert(xy, XY, out)
}

// Invert returns the transform undoing t. A singular linear part cannot be
// inverted and is reported as a RegistrationError since such matrices only
// come out of a degenerate alignment.
func Invert(t Transform) (Transform, error) {
	a := mat.NewDense(2, 2, []float64{t[0][0], t[0][1], t[1][0], t[1][1]})
	if det := mat.Det(a); math.Abs(det) < 1e-12 || math.IsNaN(det) {
		return Transform{}, qaerr.Registration("transform is singular (det=%g)", det)
	}
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return Transform{}, qaerr.Registration("inverting transform: %v", err)
	}
	tr := mat.NewVecDense(2, []float64{t[0][2], t[1][2]})
	var shift mat.VecDense
	shift.MulVec(&inv, tr)

	return Transform{
		{inv.At(0, 0), inv.At(0, 1), -shift.AtVec(0)},
		{inv.At(1, 0), inv.At(1, 1), -shift.AtVec(1)},
	}, nil
}

// Rotation returns the rotation angle (radians) of the linear part.
func (t Transform) Rotation() float64 {
	return math.Atan2(t[1][0], t[0][0])
}

// Translation returns the (x, y) translation.
func (t Transform) Translation() Point {
	return Point{t[0][2], t[1][2]}
}
