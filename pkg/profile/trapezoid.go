package profile

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"phantomqa/internal/numeric"
	"phantomqa/pkg/qaerr"
)

// Trapezoid is the ramp signal model: LeftBaseline zeros, a ramp of Ramp
// samples down (or up) to Amplitude, Plateau samples at Amplitude, the
// mirrored ramp and RightBaseline zeros.
type Trapezoid struct {
	Ramp          int     `yaml:"ramp"`
	Plateau       int     `yaml:"plateau"`
	LeftBaseline  int     `yaml:"leftBaseline"`
	RightBaseline int     `yaml:"rightBaseline"`
	Amplitude     float64 `yaml:"amplitude"`
}

// FullWidth is the width proxy of the model, plateau plus one ramp.
func (t Trapezoid) FullWidth() int { return t.Plateau + t.Ramp }

// Len is the number of samples Signal produces.
func (t Trapezoid) Len() int {
	return positive(t.LeftBaseline) + 2*positive(t.Ramp) + positive(t.Plateau) + positive(t.RightBaseline)
}

// Signal synthesises the model. Components shorter than one sample are
// left out.
func (t Trapezoid) Signal() []float64 {
	out := make([]float64, 0, t.Len())
	out = append(out, make([]float64, positive(t.LeftBaseline))...)
	if t.Ramp >= 1 {
		out = append(out, linspace(0, t.Amplitude, t.Ramp)...)
	}
	for i := 0; i < t.Plateau; i++ {
		out = append(out, t.Amplitude)
	}
	if t.Ramp >= 1 {
		out = append(out, linspace(t.Amplitude, 0, t.Ramp)...)
	}
	return append(out, make([]float64, positive(t.RightBaseline))...)
}

func positive(n int) int {
	if n < 1 {
		return 0
	}
	return n
}

// linspace returns n evenly spaced values from start to stop inclusive.
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// RampPlateau holds the initial ramp and plateau lengths, in upsampled
// samples, for one nominal slice thickness.
type RampPlateau struct {
	Ramp    int `yaml:"ramp"`
	Plateau int `yaml:"plateau"`
}

// Lookup maps nominal slice thickness (mm) to initial model lengths.
type Lookup map[float64]RampPlateau

// DefaultLookup holds the empirically derived starting shapes for 3 mm and
// 5 mm slices.
func DefaultLookup() Lookup {
	return Lookup{
		3: {Ramp: 7, Plateau: 32},
		5: {Ramp: 47, Plateau: 55},
	}
}

// InitialGuess builds the starting trapezoid for a detrended profile. The
// model is centred on the median index of the samples below the profile
// mean and its amplitude is the 5th minus the 95th percentile, which is
// negative for the signal dip the ramps produce.
func InitialGuess(corrected []float64, thickness float64, lookup Lookup) (Trapezoid, error) {
	shape, ok := lookup[thickness]
	if !ok {
		return Trapezoid{}, qaerr.InvalidInput("no initial trapezoid for %g mm slices", thickness)
	}
	if len(corrected) == 0 {
		return Trapezoid{}, qaerr.InvalidInput("empty profile")
	}

	if numeric.Span(corrected) == 0 {
		return Trapezoid{}, qaerr.InvalidInput("flat profile has no dip to fit")
	}
	mean := stat.Mean(corrected, nil)
	var below []int
	for i, v := range corrected {
		if v < mean {
			below = append(below, i)
		}
	}
	centre := int(math.RoundToEven(numeric.MedianInt(below)))

	left := centre - int(math.RoundToEven(float64(shape.Plateau)/2)) - shape.Ramp - 1
	right := len(corrected) - left - 2*shape.Ramp - shape.Plateau
	return Trapezoid{
		Ramp:          shape.Ramp,
		Plateau:       shape.Plateau,
		LeftBaseline:  left,
		RightBaseline: right,
		Amplitude:     numeric.Percentile(corrected, 5) - numeric.Percentile(corrected, 95),
	}, nil
}

// FitOptions bounds the trapezoid search.
type FitOptions struct {
	MaxPasses int
	Lookup    Lookup
	Log       zerolog.Logger
}

// DefaultFitOptions caps the search at 10000 passes.
func DefaultFitOptions() FitOptions {
	return FitOptions{MaxPasses: 10000, Lookup: DefaultLookup(), Log: zerolog.Nop()}
}

// FitResult is a converged trapezoid search.
type FitResult struct {
	Trapezoid Trapezoid
	Baseline  Baseline
	SSE       float64
	Passes    int
}

// perturb returns the candidate for step i of a pass. Steps 0-5 move the
// baseline coefficients, steps 6-13 move the trapezoid while keeping its
// total length.
func perturb(i int, b Baseline, t Trapezoid) (Baseline, Trapezoid) {
	switch i {
	case 0:
		b.C2 -= 0.0001
	case 1:
		b.C2 += 0.0001
	case 2:
		b.C1 -= 0.001
	case 3:
		b.C1 += 0.001
	case 4:
		b.C0 -= 0.1
	case 5:
		b.C0 += 0.1
	case 6: // narrower ramps
		t.Ramp--
		t.LeftBaseline++
		t.RightBaseline++
	case 7: // wider ramps
		t.Ramp++
		t.LeftBaseline--
		t.RightBaseline--
	case 8: // narrower plateau
		t.Plateau -= 2
		t.LeftBaseline++
		t.RightBaseline++
	case 9: // wider plateau
		t.Plateau += 2
		t.LeftBaseline--
		t.RightBaseline--
	case 10: // shift left
		t.LeftBaseline--
		t.RightBaseline++
	case 11: // shift right
		t.LeftBaseline++
		t.RightBaseline--
	case 12:
		t.Amplitude -= 0.1
	case 13:
		t.Amplitude += 0.1
	}
	return b, t
}

const perturbations = 14

// sse is the squared residual between the baseline-restored profile and
// baseline plus trapezoid. A trapezoid whose length no longer matches the
// profile is infeasible.
func sse(d Detrended, b Baseline, t Trapezoid) float64 {
	sig := t.Signal()
	if len(sig) != len(d.ProfileInterpolated) {
		return math.Inf(1)
	}
	total := 0.0
	for i, x := range d.X {
		r := d.ProfileInterpolated[i] - (b.Eval(x) + sig[i])
		total += r * r
	}
	return total
}

// Fit runs the coordinate-descent trapezoid search on a detrended profile.
// Each pass tries the 14 perturbations in order, keeping any that strictly
// lowers the squared error; passes repeat until one accepts nothing. Hitting
// MaxPasses is a FitDivergenceError.
func Fit(d Detrended, thickness float64, opts FitOptions) (FitResult, error) {
	if len(d.X) != len(d.ProfileInterpolated) || len(d.X) != len(d.CorrectedInterpolated) {
		return FitResult{}, qaerr.InvalidInput("detrended profile arrays differ in length")
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = DefaultLookup()
	}
	trap, err := InitialGuess(d.CorrectedInterpolated, thickness, lookup)
	if err != nil {
		return FitResult{}, err
	}
	base := d.Baseline
	current := sse(d, base, trap)
	if math.IsInf(current, 1) {
		return FitResult{}, qaerr.InvalidInput("initial trapezoid %+v does not fit a %d sample profile", trap, len(d.X))
	}
	maxPasses := opts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultFitOptions().MaxPasses
	}

	passes := 0
	for improved := true; improved; {
		if passes >= maxPasses {
			return FitResult{}, qaerr.FitDivergence("no local optimum after %d passes (sse %.6g)", passes, current)
		}
		passes++
		improved = false
		for i := 0; i < perturbations; i++ {
			b, t := perturb(i, base, trap)
			if e := sse(d, b, t); e < current {
				base, trap, current = b, t, e
				improved = true
			}
		}
	}

	opts.Log.Debug().
		Int("passes", passes).
		Int("fullWidth", trap.FullWidth()).
		Float64("sse", current).
		Msg("trapezoid fitted")

	return FitResult{Trapezoid: trap, Baseline: base, SSE: current, Passes: passes}, nil
}
