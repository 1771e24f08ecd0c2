package geometry

import "math"

// Shape is the size of an image grid.
type Shape struct {
	Rows int
	Cols int
}

// Mask is a boolean grid with the shape of its source image. A pixel is true
// when it belongs to the region of interest. Masks are plain values derived
// from their construction parameters.
type Mask struct {
	Rows int
	Cols int
	Bits []bool
}

// NewMask returns an all-false mask.
func NewMask(shape Shape) Mask {
	if shape.Rows < 0 || shape.Cols < 0 {
		shape = Shape{}
	}
	return Mask{Rows: shape.Rows, Cols: shape.Cols, Bits: make([]bool, shape.Rows*shape.Cols)}
}

// Shape returns the grid size of m.
func (m Mask) Shape() Shape { return Shape{Rows: m.Rows, Cols: m.Cols} }

// At reports whether (row, col) is set. Out-of-bounds positions are false.
func (m Mask) At(row, col int) bool {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		return false
	}
	return m.Bits[row*m.Cols+col]
}

// Set marks (row, col). Out-of-bounds positions are ignored.
func (m Mask) Set(row, col int, v bool) {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		return
	}
	m.Bits[row*m.Cols+col] = v
}

// Count is the number of true pixels.
func (m Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Any reports whether at least one pixel is set.
func (m Mask) Any() bool {
	for _, b := range m.Bits {
		if b {
			return true
		}
	}
	return false
}

// Coords lists the set pixels as RowCol points in row-major order.
func (m Mask) Coords() []Point {
	var pts []Point
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if m.Bits[r*m.Cols+c] {
				pts = append(pts, Point{float64(r), float64(c)})
			}
		}
	}
	return pts
}

// And returns the intersection of m and o. Shapes must match; the result
// takes the shape of m and positions missing from o count as false.
func (m Mask) And(o Mask) Mask {
	out := NewMask(m.Shape())
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			out.Bits[r*m.Cols+c] = m.Bits[r*m.Cols+c] && o.At(r, c)
		}
	}
	return out
}

// Or returns the union of m and o in the shape of m.
func (m Mask) Or(o Mask) Mask {
	out := NewMask(m.Shape())
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			out.Bits[r*m.Cols+c] = m.Bits[r*m.Cols+c] || o.At(r, c)
		}
	}
	return out
}

// Not returns the complement of m.
func (m Mask) Not() Mask {
	out := NewMask(m.Shape())
	for i, b := range m.Bits {
		out.Bits[i] = !b
	}
	return out
}

// Extent holds the first and last set row and column of a mask.
type Extent struct {
	FirstRow, LastRow int
	FirstCol, LastCol int
}

// Bounds returns the extent of the set pixels; ok is false for an empty mask.
func (m Mask) Bounds() (e Extent, ok bool) {
	e = Extent{FirstRow: m.Rows, FirstCol: m.Cols, LastRow: -1, LastCol: -1}
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if !m.Bits[r*m.Cols+c] {
				continue
			}
			if r < e.FirstRow {
				e.FirstRow = r
			}
			if r > e.LastRow {
				e.LastRow = r
			}
			if c < e.FirstCol {
				e.FirstCol = c
			}
			if c > e.LastCol {
				e.LastCol = c
			}
		}
	}
	return e, e.LastRow >= 0
}

// Circular returns the disk of the given radius around center (RowCol).
// Pixels at distance exactly radius are included. A non-positive radius
// yields an empty mask; the center may lie outside the grid.
func Circular(center Point, radius float64, shape Shape) Mask {
	m := NewMask(shape)
	if !(radius > 0) {
		return m
	}
	r2 := radius * radius
	rowLo, rowHi := clampRange(center[0]-radius, center[0]+radius, shape.Rows)
	colLo, colHi := clampRange(center[1]-radius, center[1]+radius, shape.Cols)
	for r := rowLo; r <= rowHi; r++ {
		dr := float64(r) - center[0]
		for c := colLo; c <= colHi; c++ {
			dc := float64(c) - center[1]
			if dr*dr+dc*dc <= r2 {
				m.Bits[r*shape.Cols+c] = true
			}
		}
	}
	return m
}

// Elliptical returns an axis-aligned ellipse around center (RowCol) with
// semi-axes semiRow and semiCol. scale compresses the ellipse against a
// boundary: the shorter semi-axis is divided by scale and the longer one
// multiplied by it, so the area is kept while the short side shrinks. For
// equal semi-axes the row axis is treated as the short one. scale == 1 is
// the plain ellipse; non-positive inputs yield an empty mask.
func Elliptical(center Point, semiRow, semiCol, scale float64, shape Shape) Mask {
	m := NewMask(shape)
	if !(semiRow > 0) || !(semiCol > 0) || !(scale > 0) {
		return m
	}
	a, b := ScaledAxes(semiRow, semiCol, scale)

	rowLo, rowHi := clampRange(center[0]-a, center[0]+a, shape.Rows)
	colLo, colHi := clampRange(center[1]-b, center[1]+b, shape.Cols)
	for r := rowLo; r <= rowHi; r++ {
		dr := (float64(r) - center[0]) / a
		for c := colLo; c <= colHi; c++ {
			dc := (float64(c) - center[1]) / b
			if dr*dr+dc*dc <= 1 {
				m.Bits[r*shape.Cols+c] = true
			}
		}
	}
	return m
}

// ScaledAxes applies the Elliptical compression rule and returns the
// effective (row, col) semi-axes.
func ScaledAxes(semiRow, semiCol, scale float64) (float64, float64) {
	if semiRow <= semiCol {
		return semiRow / scale, semiCol * scale
	}
	return semiRow * scale, semiCol / scale
}

// Rectangular returns the height x width block whose top-left pixel is
// topLeft (RowCol), clipped to the grid.
func Rectangular(topLeft Point, height, width int, shape Shape) Mask {
	m := NewMask(shape)
	if height <= 0 || width <= 0 {
		return m
	}
	r0, c0 := int(math.Floor(topLeft[0])), int(math.Floor(topLeft[1]))
	for r := r0; r < r0+height; r++ {
		for c := c0; c < c0+width; c++ {
			m.Set(r, c, true)
		}
	}
	return m
}

// clampRange converts a continuous [lo, hi] interval to the integer pixel
// range inside [0, n).
func clampRange(lo, hi float64, n int) (int, int) {
	l := int(math.Ceil(lo))
	h := int(math.Floor(hi))
	if l < 0 {
		l = 0
	}
	if h > n-1 {
		h = n - 1
	}
	return l, h
}
