// Package slicewidth measures slice thickness from the crossed ramps of the
// slice width insert, together with the in-plane linearity and distortion of
// the rod grid that frames them.
package slicewidth

import (
	"math"

	"github.com/rs/zerolog"

	"phantomqa/internal/models"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/profile"
	"phantomqa/pkg/qaerr"
)

// Options configures the measurement.
type Options struct {
	Rods            *landmark.RodDetector
	BandHalfWidth   int
	SampleSpacing   float64
	BaselinePadding int
	// RampAngleDeg is the inclination of the ramps to the image plane
	RampAngleDeg        float64
	NominalSeparationMM float64
	Fit                 profile.FitOptions
	Log                 zerolog.Logger
}

// DefaultOptions returns the settings for the 3x3 rod insert with 11.3
// degree ramps.
func DefaultOptions() Options {
	return Options{
		Rods:                landmark.NewRodDetector(),
		BandHalfWidth:       10,
		SampleSpacing:       0.25,
		BaselinePadding:     30,
		RampAngleDeg:        11.3,
		NominalSeparationMM: landmark.NominalRodSeparation,
		Fit:                 profile.DefaultFitOptions(),
		Log:                 zerolog.Nop(),
	}
}

// Widths are the slice width estimates from one ramp, in mm.
type Widths struct {
	Default           float64 `yaml:"default"`
	GeometryCorrected float64 `yaml:"geometryCorrected"`
	AAPM              float64 `yaml:"aapm"`
	AAPMCorrected     float64 `yaml:"aapmCorrected"`
}

// Combined merges the top and bottom ramp estimates.
type Combined struct {
	Default           float64 `yaml:"default"`
	GeometryCorrected float64 `yaml:"geometryCorrected"`
	AAPMTilt          float64 `yaml:"aapmTilt"`
	AAPMTiltCorrected float64 `yaml:"aapmTiltCorrected"`
}

// Result is the full slice width report for one slice.
type Result struct {
	Rods      landmark.Set       `yaml:"-"`
	Distances landmark.Distances `yaml:"distances"`

	HorizontalLinearity  float64 `yaml:"horizontalLinearity"`
	VerticalLinearity    float64 `yaml:"verticalLinearity"`
	HorizontalDistortion float64 `yaml:"horizontalDistortion"`
	VerticalDistortion   float64 `yaml:"verticalDistortion"`

	TopBand    profile.Band      `yaml:"-"`
	BottomBand profile.Band      `yaml:"-"`
	TopFit     profile.FitResult `yaml:"topFit"`
	BottomFit  profile.FitResult `yaml:"bottomFit"`

	Top      Widths   `yaml:"top"`
	Bottom   Widths   `yaml:"bottom"`
	Combined Combined `yaml:"combined"`

	PhantomTiltDeg          float64 `yaml:"phantomTiltDeg"`
	PhantomTiltCorrectedDeg float64 `yaml:"phantomTiltCorrectedDeg"`
}

// Measure locates the rods, fits both ramp profiles and converts the fitted
// trapezoid widths to millimetres.
func Measure(s *models.Slice, opts Options) (Result, error) {
	if err := s.Validate(); err != nil {
		return Result{}, err
	}
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if opts.Rods == nil {
		opts.Rods = landmark.NewRodDetector()
	}
	det, err := opts.Rods.Detect(s)
	if err != nil {
		return Result{}, err
	}

	var res Result
	res.Rods = det.Landmarks
	if res.Distances, err = landmark.RodDistances(det.Landmarks, s.PixelSpacing); err != nil {
		return Result{}, err
	}
	res.HorizontalLinearity, res.VerticalLinearity = res.Distances.Linearity()
	res.HorizontalDistortion, res.VerticalDistortion = res.Distances.Distortion()
	topCoef, bottomCoef := landmark.CorrectionCoefficients(res.Distances, opts.NominalSeparationMM)

	if res.TopBand, res.BottomBand, err = profile.RampBands(det.Landmarks, opts.BandHalfWidth); err != nil {
		return Result{}, err
	}
	if res.TopFit, err = fitBand(s, res.TopBand, opts); err != nil {
		return Result{}, err
	}
	if res.BottomFit, err = fitBand(s, res.BottomBand, opts); err != nil {
		return Result{}, err
	}

	pixel := s.PixelSpacing.Row
	tan := math.Tan(opts.RampAngleDeg * math.Pi / 180)
	res.Top = widths(res.TopFit.Trapezoid.FullWidth(), opts.SampleSpacing, pixel, tan, topCoef)
	res.Bottom = widths(res.BottomFit.Trapezoid.FullWidth(), opts.SampleSpacing, pixel, tan, bottomCoef)

	res.Combined.Default = math.Sqrt(res.Top.Default * res.Bottom.Default)
	res.Combined.GeometryCorrected = math.Sqrt(res.Top.GeometryCorrected * res.Bottom.GeometryCorrected)
	res.Combined.AAPMTilt, res.PhantomTiltDeg = AAPMTilt(res.Top.AAPM, res.Bottom.AAPM, opts.RampAngleDeg)
	res.Combined.AAPMTiltCorrected, res.PhantomTiltCorrectedDeg = AAPMTilt(res.Top.AAPMCorrected, res.Bottom.AAPMCorrected, opts.RampAngleDeg)

	opts.Log.Debug().
		Float64("top", res.Top.Default).
		Float64("bottom", res.Bottom.Default).
		Float64("combined", res.Combined.Default).
		Msg("slice width measured")
	return res, nil
}

func fitBand(s *models.Slice, b profile.Band, opts Options) (profile.FitResult, error) {
	p, err := profile.ExtractBand(s, b)
	if err != nil {
		return profile.FitResult{}, err
	}
	d, err := profile.Detrend(p, opts.SampleSpacing, opts.BaselinePadding)
	if err != nil {
		return profile.FitResult{}, err
	}
	return profile.Fit(d, s.Thickness, opts.Fit)
}

func widths(fwhm int, spacing, pixel, tan, coef float64) Widths {
	aapm := float64(fwhm) * spacing * pixel
	w := Widths{Default: aapm * tan, AAPM: aapm}
	w.GeometryCorrected = w.Default / coef
	w.AAPMCorrected = aapm / coef
	return w
}

// AAPMTilt combines the two ramp widths so that a tilt of the phantom
// cancels out, and returns the combined width and the tilt in degrees.
func AAPMTilt(top, bottom, rampAngleDeg float64) (width, tiltDeg float64) {
	if !(top > 0) || !(bottom > 0) {
		return math.NaN(), math.NaN()
	}
	theta := (180 - 2*rampAngleDeg) * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	term1 := cos*cos*(bottom-top)*(bottom-top) + 4*bottom*top
	term2 := (bottom + top) * cos
	width = (math.Sqrt(term1) + term2) / (2 * sin)
	tilt := math.Atan(width/bottom) + theta/2 - math.Pi/2
	return width, tilt * 180 / math.Pi
}

// Validate checks option values that would otherwise surface as confusing
// failures deep in the fit.
func (o Options) Validate() error {
	if o.BandHalfWidth <= 0 {
		return qaerr.InvalidInput("band half width must be positive, got %d", o.BandHalfWidth)
	}
	if !(o.SampleSpacing > 0) || o.SampleSpacing > 1 {
		return qaerr.InvalidInput("sample spacing must be in (0, 1], got %g", o.SampleSpacing)
	}
	if !(o.NominalSeparationMM > 0) {
		return qaerr.InvalidInput("nominal rod separation must be positive, got %g", o.NominalSeparationMM)
	}
	return nil
}
