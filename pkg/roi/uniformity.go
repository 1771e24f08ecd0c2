package roi

import (
	"math"

	"github.com/rs/zerolog"

	"phantomqa/internal/models"
	"phantomqa/internal/numeric"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/qaerr"
)

// LargeROIRadiusMM returns the radius of the large uniformity ROI: 80 mm
// (about 200 cm^2) for the large phantom and 90% of a 160 cm^2 disk for the
// medium phantom.
func LargeROIRadiusMM(medium bool) float64 {
	if medium {
		return math.Sqrt(16000 * 0.9 / math.Pi)
	}
	return 80
}

// UniformityOptions sizes the uniformity scan.
type UniformityOptions struct {
	LargeRadiusMM float64
	SmallAreaMM2  float64
	// VoidOffsetMM moves the large ROI down, away from the void at the top of the phantom
	VoidOffsetMM float64
	Log          zerolog.Logger
}

// DefaultUniformityOptions returns the large phantom settings.
func DefaultUniformityOptions() UniformityOptions {
	return UniformityOptions{
		LargeRadiusMM: LargeROIRadiusMM(false),
		SmallAreaMM2:  100,
		VoidOffsetMM:  5,
		Log:           zerolog.Nop(),
	}
}

// UniformityResult is the percent integral uniformity and where its extremes
// were found. Positions are RowCol.
type UniformityResult struct {
	PIU         float64        `yaml:"piu"`
	Max         float64        `yaml:"max"`
	Min         float64        `yaml:"min"`
	MaxPos      geometry.Point `yaml:"maxPos"`
	MinPos      geometry.Point `yaml:"minPos"`
	LargeCentre geometry.Point `yaml:"largeCentre"`
	LargeRadius int            `yaml:"largeRadius"`
	SmallRadius int            `yaml:"smallRadius"`
}

// Uniformity scans a small disk over the large ROI around the body centroid.
// Pixels of the large ROI are split at their median; a small disk centred on
// a below-median pixel is scored only if every pixel under it is below the
// median too, and likewise above. The highest and lowest scored means give
// PIU = 100 * (1 - (max-min)/(max+min)). A large ROI of one constant value is
// perfectly uniform. A body that is empty or touches every image border
// gives an InsufficientGeometryError.
func Uniformity(s *models.Slice, body landmark.Body, opts UniformityOptions) (UniformityResult, error) {
	if err := s.Validate(); err != nil {
		return UniformityResult{}, err
	}
	if _, err := checkBody(s, body); err != nil {
		return UniformityResult{}, err
	}
	centre := body.Centroid
	res := s.PixelSpacing.Row
	rLarge := int(math.Ceil(opts.LargeRadiusMM / res))
	rSmall := int(math.Ceil(math.Sqrt(opts.SmallAreaMM2/math.Pi) / res))
	dVoid := math.Ceil(opts.VoidOffsetMM / res)
	shape := geometry.Shape{Rows: s.Rows, Cols: s.Cols}

	lc := geometry.Pt(centre[0]+dVoid, centre[1])
	large := geometry.Circular(lc, float64(rLarge), shape)

	// large ROI signal, zero elsewhere
	masked := make([]float64, len(s.Pixels))
	var values []float64
	for i, in := range large.Bits {
		if in && s.Pixels[i] != 0 {
			masked[i] = s.Pixels[i]
			values = append(values, s.Pixels[i])
		}
	}
	if len(values) == 0 {
		return UniformityResult{}, qaerr.InsufficientGeometry("large ROI at (%.1f, %.1f) r=%d holds no signal", lc[0], lc[1], rLarge)
	}
	median := numeric.Median(values)

	result := UniformityResult{LargeCentre: lc, LargeRadius: rLarge, SmallRadius: rSmall}

	offsets := diskOffsets(rSmall)
	means := make([]float64, len(s.Pixels))
	candidates := 0
	for idx, v := range masked {
		if v == 0 || v == median {
			continue
		}
		candidates++
		below := v < median
		r, c := idx/s.Cols, idx%s.Cols
		sum := 0.0
		ok := true
		for _, o := range offsets {
			rr, cc := r+o[0], c+o[1]
			if !s.InBounds(rr, cc) {
				ok = false
				break
			}
			w := masked[rr*s.Cols+cc]
			if w == 0 || (below && w >= median) || (!below && w <= median) {
				ok = false
				break
			}
			sum += w
		}
		if ok {
			means[idx] = sum / float64(len(offsets))
		}
	}

	if candidates == 0 {
		// every pixel sits on the median
		result.PIU, result.Max, result.Min = 100, median, median
		result.MaxPos, result.MinPos = lc, lc
		return result, nil
	}

	maxIdx, minIdx := -1, -1
	for idx, m := range means {
		if m == 0 {
			continue
		}
		if maxIdx < 0 || m > means[maxIdx] {
			maxIdx = idx
		}
		if minIdx < 0 || m < means[minIdx] {
			minIdx = idx
		}
	}
	if maxIdx < 0 {
		return UniformityResult{}, qaerr.InsufficientGeometry("no %d px disk fits entirely above or below the median", rSmall)
	}

	result.Max, result.Min = means[maxIdx], means[minIdx]
	result.MaxPos = geometry.Pt(float64(maxIdx/s.Cols), float64(maxIdx%s.Cols))
	result.MinPos = geometry.Pt(float64(minIdx/s.Cols), float64(minIdx%s.Cols))
	result.PIU = 100 * (1 - (result.Max-result.Min)/(result.Max+result.Min))

	opts.Log.Debug().
		Int("largeRadius", rLarge).
		Int("smallRadius", rSmall).
		Float64("median", median).
		Float64("piu", result.PIU).
		Msg("uniformity scanned")
	return result, nil
}

// diskOffsets lists the (row, col) offsets of a disk of the given radius
// around the origin.
func diskOffsets(radius int) [][2]int {
	var out [][2]int
	r2 := radius * radius
	for dr := -radius; dr <= radius; dr++ {
		for dc := -radius; dc <= radius; dc++ {
			if dr*dr+dc*dc <= r2 {
				out = append(out, [2]int{dr, dc})
			}
		}
	}
	return out
}
