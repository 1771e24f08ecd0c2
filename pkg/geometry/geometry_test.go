package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phantomqa/pkg/qaerr"
)

// TestCircularMaskPointSymmetry verifies that rotating the center by 180
// degrees inside the grid rotates the mask with it.
func TestCircularMaskPointSymmetry(t *testing.T) {
	shape := Shape{Rows: 31, Cols: 24}
	cases := []struct {
		center Point
		radius float64
	}{
		{Pt(10, 7), 5},
		{Pt(3.5, 20.25), 6.7},
		{Pt(0, 0), 9},
		{Pt(15, 11.5), 0.5},
	}

	for _, c := range cases {
		m := Circular(c.center, c.radius, shape)
		rotCenter := Pt(float64(shape.Rows-1)-c.center[0], float64(shape.Cols-1)-c.center[1])
		rot := Circular(rotCenter, c.radius, shape)

		for r := 0; r < shape.Rows; r++ {
			for col := 0; col < shape.Cols; col++ {
				if m.At(r, col) != rot.At(shape.Rows-1-r, shape.Cols-1-col) {
					t.Fatalf("center %v radius %v: asymmetry at (%d,%d)", c.center, c.radius, r, col)
				}
			}
		}
	}
}

func TestCircularMaskEdgeCases(t *testing.T) {
	shape := Shape{Rows: 16, Cols: 16}

	assert.Equal(t, 0, Circular(Pt(8, 8), 0, shape).Count(), "radius 0 is empty")
	assert.Equal(t, 0, Circular(Pt(8, 8), -3, shape).Count(), "negative radius is empty")
	assert.Equal(t, 0, Circular(Pt(-50, -50), 4, shape).Count(), "far outside is empty")

	// boundary pixels at exactly the radius are inside
	m := Circular(Pt(8, 8), 2, shape)
	assert.True(t, m.At(8, 10))
	assert.True(t, m.At(6, 8))
	assert.False(t, m.At(10, 10))
	assert.Equal(t, 13, m.Count())

	// partially outside keeps only the in-grid part
	corner := Circular(Pt(0, 0), 2, shape)
	assert.Equal(t, 6, corner.Count())
}

func TestEllipticalMask(t *testing.T) {
	shape := Shape{Rows: 200, Cols: 200}

	plain := Elliptical(Pt(100, 100), 40, 10, 1, shape)
	e, ok := plain.Bounds()
	require.True(t, ok)
	assert.Equal(t, Extent{FirstRow: 60, LastRow: 140, FirstCol: 90, LastCol: 110}, e)

	// compression narrows the short (column) axis and stretches the long one
	squeezed := Elliptical(Pt(100, 100), 40, 10, 2, shape)
	e, ok = squeezed.Bounds()
	require.True(t, ok)
	assert.Equal(t, 95, e.FirstCol)
	assert.Equal(t, 105, e.LastCol)
	assert.Equal(t, 20, e.FirstRow)
	assert.Equal(t, 180, e.LastRow)

	// area is preserved to within discretisation error
	ratio := float64(squeezed.Count()) / float64(plain.Count())
	assert.InDelta(t, 1.0, ratio, 0.05)

	// equal semi-axes reduce to a disk
	disk := Elliptical(Pt(50, 50), 7, 7, 1, shape)
	assert.Equal(t, Circular(Pt(50, 50), 7, shape).Bits, disk.Bits)

	assert.Equal(t, 0, Elliptical(Pt(50, 50), 7, 7, 0, shape).Count())
}

func TestRectangularMask(t *testing.T) {
	shape := Shape{Rows: 10, Cols: 10}
	m := Rectangular(Pt(8, 8), 4, 4, shape)
	assert.Equal(t, 4, m.Count(), "clipped at the border")
	assert.Equal(t, 0, Rectangular(Pt(1, 1), 0, 3, shape).Count())
}

func TestMaskAlgebra(t *testing.T) {
	shape := Shape{Rows: 5, Cols: 5}
	a := Rectangular(Pt(0, 0), 3, 3, shape)
	b := Rectangular(Pt(2, 2), 3, 3, shape)

	assert.Equal(t, 1, a.And(b).Count())
	assert.Equal(t, 17, a.Or(b).Count())
	assert.Equal(t, 16, a.Not().Count())
	assert.Equal(t, []Point{{2, 2}}, a.And(b).Coords())

	_, ok := NewMask(shape).Bounds()
	assert.False(t, ok)
}

func TestConvert(t *testing.T) {
	in := []Point{{1, 2}, {3, 4}}
	assert.Equal(t, []Point{{2, 1}, {4, 3}}, Convert(in, RowCol, XY))
	assert.Equal(t, in, Convert(in, XY, XY))
	assert.Equal(t, []Point{{1, 2}, {3, 4}}, in, "input untouched")
}

// TestApplyRespectsConventions pins down the row/col vs x/y handling: a pure
// x translation must move the column of a RowCol point.
func TestApplyRespectsConventions(t *testing.T) {
	shiftX := Transform{{1, 0, 5}, {0, 1, 0}}
	rc := []Point{{10, 20}}

	assert.Equal(t, []Point{{10, 25}}, Apply(rc, shiftX, RowCol, RowCol))
	assert.Equal(t, []Point{{25, 10}}, Apply(rc, shiftX, RowCol, XY))
	assert.Equal(t, []Point{{15, 20}}, Apply(rc, shiftX, XY, XY))
}

// TestTransformRoundTrip checks apply(apply(p, M, yx, xy), inv(M), xy, yx) == p.
func TestTransformRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		m := Transform{
			{1 + rng.Float64()*0.2, rng.Float64()*0.4 - 0.2, rng.Float64()*40 - 20},
			{rng.Float64()*0.4 - 0.2, 1 + rng.Float64()*0.2, rng.Float64()*40 - 20},
		}
		inv, err := Invert(m)
		require.NoError(t, err)

		pts := make([]Point, 20)
		for i := range pts {
			pts[i] = Pt(rng.Float64()*256, rng.Float64()*256)
		}
		mapped := Apply(pts, m, RowCol, XY)
		back := Apply(mapped, inv, XY, RowCol)
		for i := range pts {
			assert.InDelta(t, pts[i][0], back[i][0], 1e-6)
			assert.InDelta(t, pts[i][1], back[i][1], 1e-6)
		}

		p := Pt(rng.Float64()*256, rng.Float64()*256)
		q := inv.ApplyXY(m.ApplyXY(p))
		assert.InDelta(t, p[0], q[0], 1e-9)
		assert.InDelta(t, p[1], q[1], 1e-9)
	}
}

func TestEuclidean(t *testing.T) {
	m := Euclidean(math.Pi/2, 1, 2)
	out := Apply([]Point{{1, 0}}, m, XY, XY)
	assert.InDelta(t, 1.0, out[0][0], 1e-12)
	assert.InDelta(t, 3.0, out[0][1], 1e-12)
	assert.InDelta(t, math.Pi/2, m.Rotation(), 1e-12)
	assert.Equal(t, Point{1, 2}, m.Translation())
}

func TestInvertSingular(t *testing.T) {
	_, err := Invert(Transform{{1, 2, 0}, {2, 4, 0}})
	assert.ErrorIs(t, err, qaerr.ErrRegistration)
}
