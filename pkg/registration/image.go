package registration

import (
	"math"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
)

// grid is a dense float image used internally by the alignment loop.
type grid struct {
	rows, cols int
	px         []float64
}

func newGrid(rows, cols int) grid {
	return grid{rows: rows, cols: cols, px: make([]float64, rows*cols)}
}

func gridOf(s *models.Slice) grid {
	g := newGrid(s.Rows, s.Cols)
	copy(g.px, s.Pixels)
	return g
}

func (g grid) at(r, c int) float64 { return g.px[r*g.cols+c] }

// reflect101 maps an out-of-range index back into [0, n) mirroring around the
// edge pixels (…, 2, 1 | 0, 1, 2, … ).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// gaussianKernel returns a normalised 1-D kernel of the given odd size. The
// standard deviation follows the usual rule for size-derived kernels:
// 0.3*((size-1)*0.5 - 1) + 0.8.
func gaussianKernel(size int) []float64 {
	sigma := 0.3*((float64(size)-1)*0.5-1) + 0.8
	k := make([]float64, size)
	half := size / 2
	sum := 0.0
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// blur applies a separable Gaussian of the given odd size. Sizes below 3
// return a copy.
func blur(g grid, size int) grid {
	out := newGrid(g.rows, g.cols)
	if size < 3 {
		copy(out.px, g.px)
		return out
	}
	k := gaussianKernel(size)
	half := size / 2

	tmp := newGrid(g.rows, g.cols)
	for r := 0; r < g.rows; r++ {
		for c := 0; c < g.cols; c++ {
			v := 0.0
			for i, w := range k {
				v += w * g.at(r, reflect101(c+i-half, g.cols))
			}
			tmp.px[r*g.cols+c] = v
		}
	}
	for r := 0; r < g.rows; r++ {
		for c := 0; c < g.cols; c++ {
			v := 0.0
			for i, w := range k {
				v += w * tmp.at(reflect101(r+i-half, g.rows), c)
			}
			out.px[r*g.cols+c] = v
		}
	}
	return out
}

// gradients returns central differences along x (columns) and y (rows).
func gradients(g grid) (gx, gy grid) {
	gx, gy = newGrid(g.rows, g.cols), newGrid(g.rows, g.cols)
	for r := 0; r < g.rows; r++ {
		for c := 0; c < g.cols; c++ {
			gx.px[r*g.cols+c] = (g.at(r, reflect101(c+1, g.cols)) - g.at(r, reflect101(c-1, g.cols))) / 2
			gy.px[r*g.cols+c] = (g.at(reflect101(r+1, g.rows), c) - g.at(reflect101(r-1, g.rows), c)) / 2
		}
	}
	return gx, gy
}

// sample reads g at the continuous XY position p with bilinear
// interpolation. ok is false when p falls outside the pixel centres.
func (g grid) sample(p geometry.Point) (v float64, ok bool) {
	x, y := p[0], p[1]
	if x < 0 || y < 0 || x > float64(g.cols-1) || y > float64(g.rows-1) {
		return 0, false
	}
	c0, r0 := int(math.Floor(x)), int(math.Floor(y))
	c1, r1 := c0+1, r0+1
	if c1 >= g.cols {
		c1 = c0
	}
	if r1 >= g.rows {
		r1 = r0
	}
	fx, fy := x-float64(c0), y-float64(r0)
	top := g.at(r0, c0)*(1-fx) + g.at(r0, c1)*fx
	bottom := g.at(r1, c0)*(1-fx) + g.at(r1, c1)*fx
	return top*(1-fy) + bottom*fy, true
}

// Normalize8Bit rescales the absolute pixel values of s linearly onto 0..255
// and rounds to integers, giving both images of a pair the same dynamic range
// before alignment. A constant image maps to zeros.
func Normalize8Bit(s *models.Slice) *models.Slice {
	out := *s
	out.Pixels = make([]float64, len(s.Pixels))
	if len(s.Pixels) == 0 {
		return &out
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range s.Pixels {
		a := math.Abs(v)
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}
	if hi == lo {
		return &out
	}
	scale := 255 / (hi - lo)
	for i, v := range s.Pixels {
		out.Pixels[i] = math.RoundToEven((math.Abs(v) - lo) * scale)
	}
	return &out
}

// Warp resamples src into the frame t maps it to: the output pixel at p
// takes the value of src at the inverse image of p. Pixels that map outside
// src are zero.
func Warp(src *models.Slice, t geometry.Transform, rows, cols int) (*models.Slice, error) {
	inv, err := geometry.Invert(t)
	if err != nil {
		return nil, err
	}
	g := gridOf(src)
	out := models.NewSlice(make([]float64, rows*cols), rows, cols, src.PixelSpacing)
	out.Position, out.Thickness, out.Metadata = src.Position, src.Thickness, src.Metadata
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if v, ok := g.sample(inv.ApplyXY(geometry.Point{float64(c), float64(r)})); ok {
				out.Pixels[r*cols+c] = v
			}
		}
	}
	return out, nil
}
