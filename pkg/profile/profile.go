// Package profile extracts 1-D intensity profiles across the slice width
// ramps, removes their smooth baseline and fits the trapezoid model whose
// width measures the slice thickness.
package profile

import (
	"math"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/qaerr"
)

// Profile is an ordered run of intensity samples Spacing apart (in source
// pixels).
type Profile struct {
	Samples []float64
	Spacing float64
}

// Band is a rectangular image region averaged into a profile. End bounds
// are exclusive.
type Band struct {
	Centre           int
	RowStart, RowEnd int
	ColStart, ColEnd int
}

// ExtractBand averages the rows of a band column by column.
func ExtractBand(s *models.Slice, b Band) (Profile, error) {
	if err := s.Validate(); err != nil {
		return Profile{}, err
	}
	if b.RowStart < 0 || b.ColStart < 0 || b.RowEnd > s.Rows || b.ColEnd > s.Cols {
		return Profile{}, qaerr.InvalidInput("band rows [%d,%d) cols [%d,%d) exceed %dx%d image",
			b.RowStart, b.RowEnd, b.ColStart, b.ColEnd, s.Rows, s.Cols)
	}
	if b.RowEnd <= b.RowStart || b.ColEnd <= b.ColStart {
		return Profile{}, qaerr.InvalidInput("empty band rows [%d,%d) cols [%d,%d)",
			b.RowStart, b.RowEnd, b.ColStart, b.ColEnd)
	}

	samples := make([]float64, b.ColEnd-b.ColStart)
	for c := b.ColStart; c < b.ColEnd; c++ {
		sum := 0.0
		for r := b.RowStart; r < b.RowEnd; r++ {
			sum += s.At(r, c)
		}
		samples[c-b.ColStart] = sum / float64(b.RowEnd-b.RowStart)
	}
	return Profile{Samples: samples, Spacing: 1}, nil
}

// RampBands places the two ramp bands midway between the rod rows of a
// 3x3 grid ordered by landmark.OrderGrid: the top band between the middle
// and top rows, the bottom band between the bottom and middle rows. Both
// span from the middle-left rod to the middle-right rod.
func RampBands(rods landmark.Set, halfWidth int) (top, bottom Band, err error) {
	if rods.Len() != 9 {
		return Band{}, Band{}, qaerr.InvalidInput("expected 9 rods, got %d", rods.Len())
	}
	p := rods.In(geometry.RowCol).Points
	topCentre := int(math.RoundToEven((p[3][0]-p[6][0])/2 + p[6][0]))
	bottomCentre := int(math.RoundToEven((p[0][0]-p[3][0])/2 + p[3][0]))
	colStart, colEnd := int(p[3][1]), int(p[5][1])

	band := func(centre int) Band {
		return Band{
			Centre:   centre,
			RowStart: centre - halfWidth,
			RowEnd:   centre + halfWidth,
			ColStart: colStart,
			ColEnd:   colEnd,
		}
	}
	return band(topCentre), band(bottomCentre), nil
}

// Baseline is the quadratic C2*x^2 + C1*x + C0.
type Baseline struct {
	C2, C1, C0 float64
}

// Eval evaluates the baseline at x.
func (b Baseline) Eval(x float64) float64 {
	return (b.C2*x+b.C1)*x + b.C0
}

// EvalAll evaluates the baseline at each x.
func (b Baseline) EvalAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = b.Eval(x)
	}
	return out
}

// Detrended is a profile with its baseline removed, resampled onto a finer
// grid.
type Detrended struct {
	// X is the upsampled sample grid in source sample units
	X []float64

	Baseline Baseline

	// BaselineInterpolated is Baseline evaluated on X
	BaselineInterpolated []float64

	// ProfileInterpolated is the detrended profile on X with the baseline restored
	ProfileInterpolated []float64

	// CorrectedInterpolated is the detrended profile on X
	CorrectedInterpolated []float64

	Spacing float64
}

// Detrend fits a quadratic baseline to the first and last padding samples
// of p (both windows are kept whole, so short profiles count shared samples
// twice), subtracts it and resamples the result every spacing samples with
// linear interpolation (extrapolating linearly past the last sample).
func Detrend(p Profile, spacing float64, padding int) (Detrended, error) {
	n := len(p.Samples)
	if !(spacing > 0) {
		return Detrended{}, qaerr.InvalidInput("sample spacing must be positive, got %g", spacing)
	}
	if padding < 1 {
		return Detrended{}, qaerr.InvalidInput("baseline padding must be positive, got %d", padding)
	}
	// the two windows overlap on profiles shorter than 2*padding
	if padding > n {
		padding = n
	}
	if n < 3 {
		return Detrended{}, qaerr.InvalidInput("profile of %d samples is too short to fit a baseline", n)
	}

	baseline, err := fitQuadratic(p.Samples, padding)
	if err != nil {
		return Detrended{}, err
	}

	xs := make([]float64, n)
	corrected := make([]float64, n)
	for i, v := range p.Samples {
		xs[i] = float64(i)
		corrected[i] = v - baseline.Eval(float64(i))
	}

	count := int(math.Ceil(float64(n)/spacing - 1e-9))
	x := make([]float64, count)
	for i := range x {
		x[i] = float64(i) * spacing
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, corrected); err != nil {
		return Detrended{}, qaerr.InvalidInput("interpolating profile: %v", err)
	}
	d := Detrended{
		X:                     x,
		Baseline:              baseline,
		BaselineInterpolated:  baseline.EvalAll(x),
		CorrectedInterpolated: make([]float64, count),
		ProfileInterpolated:   make([]float64, count),
		Spacing:               spacing,
	}
	last := float64(n - 1)
	for i, xi := range x {
		v := pl.Predict(xi)
		if xi > last {
			slope := corrected[n-1] - corrected[n-2]
			v = corrected[n-1] + slope*(xi-last)
		}
		d.CorrectedInterpolated[i] = v
		d.ProfileInterpolated[i] = v + d.BaselineInterpolated[i]
	}
	return d, nil
}

// fitQuadratic least-squares fits a quadratic to the first and last padding
// samples.
func fitQuadratic(samples []float64, padding int) (Baseline, error) {
	n := len(samples)
	a := mat.NewDense(2*padding, 3, nil)
	b := mat.NewVecDense(2*padding, nil)
	row := 0
	add := func(i int) {
		x := float64(i)
		a.SetRow(row, []float64{x * x, x, 1})
		b.SetVec(row, samples[i])
		row++
	}
	for i := 0; i < padding; i++ {
		add(i)
	}
	for i := n - padding; i < n; i++ {
		add(i)
	}

	var coef mat.VecDense
	if err := coef.SolveVec(a, b); err != nil {
		return Baseline{}, qaerr.InvalidInput("baseline fit: %v", err)
	}
	return Baseline{C2: coef.AtVec(0), C1: coef.AtVec(1), C0: coef.AtVec(2)}, nil
}
