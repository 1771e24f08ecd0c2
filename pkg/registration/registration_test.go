package registration

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

const testSize = 64

// pattern is two Gaussian blobs of different size so that rotation is
// observable.
func pattern(x, y float64) float64 {
	g := func(cx, cy, sigma, amp float64) float64 {
		dx, dy := x-cx, y-cy
		return amp * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
	}
	return g(20, 24, 5, 1000) + g(44, 40, 4, 600)
}

// createTestImage renders pattern seen through the inverse of t, i.e. the
// image in which template content at p appears at t(p).
func createTestImage(t geometry.Transform) *models.Slice {
	inv, err := geometry.Invert(t)
	if err != nil {
		panic(err)
	}
	px := make([]float64, testSize*testSize)
	for r := 0; r < testSize; r++ {
		for c := 0; c < testSize; c++ {
			q := inv.ApplyXY(geometry.Point{float64(c), float64(r)})
			px[r*testSize+c] = pattern(q[0], q[1])
		}
	}
	return models.NewSlice(px, testSize, testSize, models.Spacing{Row: 1, Col: 1})
}

func TestFitTranslation(t *testing.T) {
	template := createTestImage(geometry.Identity())
	target := createTestImage(geometry.Euclidean(0, 3, 2))

	for _, motion := range []Motion{Translation, Euclidean} {
		opts := DefaultOptions()
		opts.Motion = motion
		res, err := Fit(template, target, opts)
		require.NoError(t, err, motion.String())

		shift := res.Transform.Translation()
		assert.InDelta(t, 3, shift[0], 0.05, motion.String())
		assert.InDelta(t, 2, shift[1], 0.05, motion.String())
		assert.InDelta(t, 0, res.Transform.Rotation(), 0.005, motion.String())
		assert.Greater(t, res.Correlation, 0.99)
		assert.LessOrEqual(t, res.Iterations, opts.MaxIterations)
	}
}

func TestFitRotation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping rotation search in short mode")
	}
	theta := 3 * math.Pi / 180
	c := geometry.Pt(32, 32)
	rot := geometry.Euclidean(theta, 0, 0)
	rc := geometry.Apply([]geometry.Point{c}, rot, geometry.XY, geometry.XY)[0]
	want := geometry.Euclidean(theta, c[0]-rc[0], c[1]-rc[1])

	res, err := Fit(createTestImage(geometry.Identity()), createTestImage(want), DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, theta, res.Transform.Rotation(), 0.005)

	// template landmarks land where the pattern moved to
	mapped := MapLandmarks(landmark.Set{Points: []geometry.Point{{24, 20}}, Convention: geometry.RowCol}, res.Transform)
	exp := geometry.Apply([]geometry.Point{{24, 20}}, want, geometry.RowCol, geometry.RowCol)[0]
	assert.InDelta(t, exp[0], mapped.Points[0][0], 0.1)
	assert.InDelta(t, exp[1], mapped.Points[0][1], 0.1)
	assert.Equal(t, geometry.RowCol, mapped.Convention)
}

func TestFitFailures(t *testing.T) {
	template := createTestImage(geometry.Identity())

	flat := models.NewSlice(make([]float64, testSize*testSize), testSize, testSize, models.Spacing{Row: 1, Col: 1})
	_, err := Fit(template, flat, DefaultOptions())
	assert.ErrorIs(t, err, qaerr.ErrRegistration)

	opts := DefaultOptions()
	opts.MaxIterations = 1
	_, err = Fit(template, createTestImage(geometry.Euclidean(0, 3, 2)), opts)
	assert.ErrorIs(t, err, qaerr.ErrRegistration, "budget exhausted before convergence")

	small := models.NewSlice(make([]float64, 4), 2, 2, models.Spacing{Row: 1, Col: 1})
	_, err = Fit(template, small, DefaultOptions())
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)
}

func TestNormalize8Bit(t *testing.T) {
	s := models.NewSlice([]float64{-10, 0, 5, 10}, 2, 2, models.Spacing{Row: 1, Col: 1})
	out := Normalize8Bit(s)
	assert.Equal(t, []float64{255, 0, 128, 255}, out.Pixels)
	assert.Equal(t, []float64{-10, 0, 5, 10}, s.Pixels, "input untouched")

	flat := Normalize8Bit(models.NewSlice([]float64{3, 3}, 1, 2, models.Spacing{Row: 1, Col: 1}))
	assert.Equal(t, []float64{0, 0}, flat.Pixels)
}

func TestWarp(t *testing.T) {
	px := make([]float64, 100)
	px[5*10+5] = 1
	src := models.NewSlice(px, 10, 10, models.Spacing{Row: 1, Col: 1})

	out, err := Warp(src, geometry.Euclidean(0, 2, 1), 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.At(6, 7))
	assert.Equal(t, 0.0, out.At(5, 5))
	assert.Equal(t, 0.0, out.At(0, 0), "outside the source is zero")

	_, err = Warp(src, geometry.Transform{}, 10, 10)
	assert.ErrorIs(t, err, qaerr.ErrRegistration)
}

func TestParseMotion(t *testing.T) {
	m, err := ParseMotion("affine")
	require.NoError(t, err)
	assert.Equal(t, Affine, m)
	_, err = ParseMotion("projective")
	assert.ErrorIs(t, err, qaerr.ErrInvalidInput)
}

func TestGaussianKernel(t *testing.T) {
	k := gaussianKernel(5)
	sum := 0.0
	for _, v := range k {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-12)
	assert.InDelta(t, k[0], k[4], 1e-15)
	assert.Greater(t, k[2], k[1])
}
