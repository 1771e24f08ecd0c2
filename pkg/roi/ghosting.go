package roi

import (
	"math"

	"github.com/rs/zerolog"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/qaerr"
)

// GhostingOptions sizes the ghosting ROIs.
type GhostingOptions struct {
	LargeRadiusMM  float64
	VoidOffsetMM   float64
	EllipseAreaMM2 float64
	// TolerancePx is the clearance kept between an ellipse and the phantom or the image edge
	TolerancePx float64
	Log         zerolog.Logger
}

// DefaultGhostingOptions returns 10 cm^2 ellipses with a 5 pixel clearance
// and the 80 mm signal ROI.
func DefaultGhostingOptions() GhostingOptions {
	return GhostingOptions{
		LargeRadiusMM:  80,
		VoidOffsetMM:   5,
		EllipseAreaMM2: 1000,
		TolerancePx:    5,
		Log:            zerolog.Nop(),
	}
}

// Ellipse is one background ROI. SemiRow and SemiCol are the semi-axes
// before Scale compresses the ellipse towards its short axis.
type Ellipse struct {
	Centre  geometry.Point `yaml:"centre"`
	SemiRow float64        `yaml:"semiRow"`
	SemiCol float64        `yaml:"semiCol"`
	Scale   float64        `yaml:"scale"`
	Mean    float64        `yaml:"mean"`
}

// Mask rasterises the ellipse.
func (e Ellipse) Mask(shape geometry.Shape) geometry.Mask {
	return geometry.Elliptical(e.Centre, e.SemiRow, e.SemiCol, e.Scale, shape)
}

// GhostingResult holds the percent signal ghosting and its ROIs.
type GhostingResult struct {
	PSG         float64        `yaml:"psg"`
	LargeMean   float64        `yaml:"largeMean"`
	LargeCentre geometry.Point `yaml:"largeCentre"`
	LargeRadius int            `yaml:"largeRadius"`
	North       Ellipse        `yaml:"north"`
	South       Ellipse        `yaml:"south"`
	East        Ellipse        `yaml:"east"`
	West        Ellipse        `yaml:"west"`
}

// Ghosting places a 1:4 ellipse in the background gap on each side of the
// phantom body, shrinking its short axis when the gap is too narrow, and
// compares the phase and frequency direction means against the phantom
// signal: PSG = 100 * |((N+S) - (W+E)) / (2*signal)|.
func Ghosting(s *models.Slice, body landmark.Body, opts GhostingOptions) (GhostingResult, error) {
	if err := s.Validate(); err != nil {
		return GhostingResult{}, err
	}
	shape := geometry.Shape{Rows: s.Rows, Cols: s.Cols}
	ext, err := checkBody(s, body)
	if err != nil {
		return GhostingResult{}, err
	}

	resRow, resCol := s.PixelSpacing.Row, s.PixelSpacing.Col
	cy, cx := math.Trunc(body.Centroid[0]), math.Trunc(body.Centroid[1])

	rLarge := int(math.Ceil(opts.LargeRadiusMM / resRow))
	lc := geometry.Pt(cy+opts.VoidOffsetMM/resCol, cx)
	signal, err := Measure(s, geometry.Circular(lc, float64(rLarge), shape))
	if err != nil {
		return GhostingResult{}, err
	}
	if signal.Mean == 0 {
		return GhostingResult{}, qaerr.InsufficientGeometry("no signal in the phantom ROI")
	}

	// short axis of a 1:4 ellipse of the requested area
	sad := 2 * math.Ceil(math.Sqrt(opts.EllipseAreaMM2/(4*math.Pi))/resRow)
	half := sad / 2
	axis := 10 / resRow
	tol := opts.TolerancePx

	fit := func(name string, outer, inner float64, outside bool) (float64, error) {
		// outer: ellipse edge margin to the image border (negative = crossing)
		// inner: ellipse edge overlap with the phantom (positive = crossing)
		if !outside {
			return 1, nil
		}
		d := outer
		if math.Abs(inner) > math.Abs(outer) {
			d = inner
		}
		if math.Abs(d) >= half {
			return 0, qaerr.InsufficientGeometry("%s gap too narrow for a %.0f px ellipse", name, sad)
		}
		return half / (half - math.Abs(d)), nil
	}

	res := GhostingResult{LargeMean: signal.Mean, LargeCentre: lc, LargeRadius: rLarge}

	// west
	first := float64(ext.FirstCol)
	wc := math.Floor(first / 2)
	edge, toBody := wc-half-tol, wc+half+tol
	wf, err := fit("west", edge, toBody-first, edge < 0 || toBody > first)
	if err != nil {
		return GhostingResult{}, err
	}
	res.West = Ellipse{Centre: geometry.Pt(cy, wc), SemiRow: 4 * axis, SemiCol: axis, Scale: wf}

	// east
	last := float64(ext.LastCol)
	ec := last + math.Ceil((float64(s.Cols)-last)/2)
	edge, toBody = ec+half+tol, ec-half-tol
	ef, err := fit("east", float64(s.Cols-1)-edge, toBody-last, edge > float64(s.Cols-1) || toBody < last)
	if err != nil {
		return GhostingResult{}, err
	}
	res.East = Ellipse{Centre: geometry.Pt(cy, ec), SemiRow: 4 * axis, SemiCol: axis, Scale: ef}

	// north
	top := float64(ext.FirstRow)
	nr := math.RoundToEven(top / 2)
	edge, toBody = nr-half-tol, nr+half+tol
	nf, err := fit("north", edge, toBody-top, edge < 0 || toBody > top)
	if err != nil {
		return GhostingResult{}, err
	}
	res.North = Ellipse{Centre: geometry.Pt(nr, cx), SemiRow: axis, SemiCol: 4 * axis, Scale: nf}

	// south
	bottom := float64(ext.LastRow)
	sr := bottom + math.RoundToEven((float64(s.Rows)-bottom)/2)
	edge, toBody = sr+half+tol, sr-half-tol
	sf, err := fit("south", float64(s.Rows-1)-edge, toBody-bottom, edge > float64(s.Rows-1) || toBody < bottom)
	if err != nil {
		return GhostingResult{}, err
	}
	res.South = Ellipse{Centre: geometry.Pt(sr, cx), SemiRow: axis, SemiCol: 4 * axis, Scale: sf}

	for _, e := range []*Ellipse{&res.North, &res.South, &res.East, &res.West} {
		st, err := Measure(s, e.Mask(shape))
		if err != nil {
			return GhostingResult{}, err
		}
		e.Mean = st.Mean
	}

	res.PSG = 100 * math.Abs(((res.North.Mean+res.South.Mean)-(res.West.Mean+res.East.Mean))/(2*signal.Mean))

	opts.Log.Debug().
		Float64("psg", res.PSG).
		Float64("signal", signal.Mean).
		Floats64("scales", []float64{nf, sf, ef, wf}).
		Msg("ghosting measured")
	return res, nil
}
