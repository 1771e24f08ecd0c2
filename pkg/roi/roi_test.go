package roi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/qaerr"
)

// createTestPhantom renders a uniform disk on a zero background.
func createTestPhantom(size int, radius, value float64) *models.Slice {
	c := float64(size / 2)
	m := geometry.Circular(geometry.Pt(c, c), radius, geometry.Shape{Rows: size, Cols: size})
	px := make([]float64, size*size)
	for i, in := range m.Bits {
		if in {
			px[i] = value
		}
	}
	return models.NewSlice(px, size, size, models.Spacing{Row: 1, Col: 1})
}

func detectBody(t *testing.T, s *models.Slice) landmark.Body {
	t.Helper()
	body, err := landmark.NewBodyDetector().DetectBody(s)
	require.NoError(t, err)
	return body
}

// bodyAt builds a body mask of the given radius around (128, 128) whose
// centroid is reported as centroid.
func bodyAt(size int, radius float64, centroid geometry.Point) landmark.Body {
	c := float64(size / 2)
	return landmark.Body{
		Mask:     geometry.Circular(geometry.Pt(c, c), radius, geometry.Shape{Rows: size, Cols: size}),
		Centroid: centroid,
	}
}

func TestMeasureDiskPhantom(t *testing.T) {
	s := createTestPhantom(256, 100, 1000)
	mask := geometry.Circular(geometry.Pt(128, 128), 50, geometry.Shape{Rows: 256, Cols: 256})

	st, err := Measure(s, mask)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, st.Mean)
	assert.Equal(t, 0.0, st.StdDev)
	assert.Equal(t, mask.Count(), st.Count)

	s.Pixels[130*256+140] = 2000
	perturbed, err := Measure(s, mask)
	require.NoError(t, err)
	assert.InDelta(t, (2000.0-1000.0)/float64(st.Count), perturbed.Mean-st.Mean, 1e-9)
	assert.Equal(t, 2000.0, perturbed.Max)
	assert.Equal(t, 1000.0, perturbed.Min)
}

func TestMeasureEmptyMask(t *testing.T) {
	s := createTestPhantom(32, 10, 1)
	_, err := Measure(s, geometry.NewMask(geometry.Shape{Rows: 32, Cols: 32}))
	assert.ErrorIs(t, err, qaerr.ErrInsufficientGeometry)

	_, err = Measure(s, geometry.NewMask(geometry.Shape{Rows: 8, Cols: 8}))
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)
}

func TestUniformityFlatImage(t *testing.T) {
	px := make([]float64, 256*256)
	for i := range px {
		px[i] = 500
	}
	s := models.NewSlice(px, 256, 256, models.Spacing{Row: 1, Col: 1})

	res, err := Uniformity(s, bodyAt(256, 110, geometry.Pt(120, 128)), DefaultUniformityOptions())
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.PIU)
	assert.Equal(t, 500.0, res.Max)
	assert.Equal(t, 500.0, res.Min)
	assert.Equal(t, geometry.Pt(125, 128), res.LargeCentre)
	assert.Equal(t, 80, res.LargeRadius)
	assert.Equal(t, 6, res.SmallRadius)
}

func TestUniformityGradient(t *testing.T) {
	// intensity rises left to right, so the extremes sit at the left and
	// right ends of the large ROI
	const size = 256
	px := make([]float64, size*size)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			px[r*size+c] = 900 + float64(c)
		}
	}
	s := models.NewSlice(px, size, size, models.Spacing{Row: 1, Col: 1})

	res, err := Uniformity(s, bodyAt(256, 110, geometry.Pt(123, 128)), DefaultUniformityOptions())
	require.NoError(t, err)
	assert.Greater(t, res.Max, res.Min)
	assert.Less(t, res.MinPos[1], 128.0)
	assert.Greater(t, res.MaxPos[1], 128.0)
	want := 100 * (1 - (res.Max-res.Min)/(res.Max+res.Min))
	assert.InDelta(t, want, res.PIU, 1e-12)
	assert.Less(t, res.PIU, 100.0)
}

func TestUniformityNoSignal(t *testing.T) {
	s := models.NewSlice(make([]float64, 64*64), 64, 64, models.Spacing{Row: 1, Col: 1})
	_, err := Uniformity(s, bodyAt(64, 20, geometry.Pt(32, 32)), DefaultUniformityOptions())
	assert.ErrorIs(t, err, qaerr.ErrInsufficientGeometry)
}

func TestUniformityRejectsUnusableBody(t *testing.T) {
	const size = 256
	px := make([]float64, size*size)
	for i := range px {
		px[i] = 900 + float64(i%size)
	}
	s := models.NewSlice(px, size, size, models.Spacing{Row: 1, Col: 1})
	shape := geometry.Shape{Rows: size, Cols: size}

	// signal everywhere, so the body reaches all four borders
	body, err := landmark.NewBodyDetector().DetectBody(s)
	require.NoError(t, err)
	_, err = Uniformity(s, body, DefaultUniformityOptions())
	assert.ErrorIs(t, err, qaerr.ErrInsufficientGeometry)

	full := landmark.Body{Mask: geometry.NewMask(shape).Not(), Centroid: geometry.Pt(128, 128)}
	_, err = Uniformity(s, full, DefaultUniformityOptions())
	assert.ErrorIs(t, err, qaerr.ErrInsufficientGeometry)

	empty := landmark.Body{Mask: geometry.NewMask(shape), Centroid: geometry.Pt(128, 128)}
	_, err = Uniformity(s, empty, DefaultUniformityOptions())
	assert.ErrorIs(t, err, qaerr.ErrInsufficientGeometry)

	_, err = Uniformity(s, bodyAt(64, 20, geometry.Pt(32, 32)), DefaultUniformityOptions())
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)

	// touching three borders still leaves background
	partial := bodyAt(size, 140, geometry.Pt(128, 128))
	for c := 0; c < 10; c++ {
		for r := 0; r < size; r++ {
			partial.Mask.Bits[r*size+c] = false
		}
	}
	_, err = Uniformity(s, partial, DefaultUniformityOptions())
	assert.NoError(t, err)
}

func TestLargeROIRadius(t *testing.T) {
	assert.Equal(t, 80.0, LargeROIRadiusMM(false))
	assert.InDelta(t, math.Sqrt(14400/math.Pi), LargeROIRadiusMM(true), 1e-12)
}

func TestGhostingZeroBackground(t *testing.T) {
	s := createTestPhantom(256, 80, 1000)
	res, err := Ghosting(s, detectBody(t, s), DefaultGhostingOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.PSG)
	assert.Greater(t, res.LargeMean, 0.0)

	assert.Equal(t, geometry.Pt(128, 24), res.West.Centre)
	assert.Equal(t, geometry.Pt(128, 232), res.East.Centre)
	assert.Equal(t, geometry.Pt(24, 128), res.North.Centre)
	assert.Equal(t, geometry.Pt(232, 128), res.South.Centre)
	for _, e := range []Ellipse{res.North, res.South, res.East, res.West} {
		assert.Equal(t, 1.0, e.Scale)
	}
}

func TestGhostingMeasuresGhost(t *testing.T) {
	s := createTestPhantom(256, 80, 1000)
	body := detectBody(t, s)
	// a faint ghost above the phantom in the phase direction
	for r := 0; r < 40; r++ {
		for c := 0; c < 256; c++ {
			s.Pixels[r*256+c] = 50
		}
	}

	res, err := Ghosting(s, body, DefaultGhostingOptions())
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.North.Mean)
	assert.Equal(t, 0.0, res.South.Mean)
	assert.InDelta(t, 100*50/(2*res.LargeMean), res.PSG, 1e-9)
}

func TestGhostingCompressedEllipse(t *testing.T) {
	s := createTestPhantom(256, 105, 1000)
	res, err := Ghosting(s, detectBody(t, s), DefaultGhostingOptions())
	require.NoError(t, err)
	assert.Equal(t, 11.0, res.West.Centre[1])
	assert.InDelta(t, 1.5, res.West.Scale, 1e-12)
}

func TestGhostingNoBackground(t *testing.T) {
	s := createTestPhantom(256, 150, 1000)
	body := detectBody(t, s)
	_, err := Ghosting(s, body, DefaultGhostingOptions())
	assert.ErrorIs(t, err, qaerr.ErrInsufficientGeometry)

	_, err = Ghosting(s, landmark.Body{Mask: geometry.NewMask(geometry.Shape{Rows: 256, Cols: 256})}, DefaultGhostingOptions())
	assert.ErrorIs(t, err, qaerr.ErrInsufficientGeometry)
}

func TestSamplePoints(t *testing.T) {
	px := make([]float64, 20*20)
	for i := range px {
		px[i] = float64(i % 20)
	}
	s := models.NewSlice(px, 20, 20, models.Spacing{Row: 1, Col: 1})
	pts := landmark.Set{Points: []geometry.Point{{10, 5}, {3.4, 12}}, Convention: geometry.RowCol}

	got, err := SamplePoints(s, pts, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{5, 12}, got, 1e-12)

	_, err = SamplePoints(s, landmark.Set{Points: []geometry.Point{{0, 0}}}, 3)
	assert.ErrorIs(t, err, qaerr.ErrInsufficientGeometry)
}
