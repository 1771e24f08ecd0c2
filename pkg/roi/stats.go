// Package roi measures intensity statistics inside masks placed relative to
// detected landmarks: plain ROI statistics, the integral uniformity scan and
// the ghosting ellipses.
package roi

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/qaerr"
)

// Stats summarises the pixels under a mask.
type Stats struct {
	Count  int     `yaml:"count"`
	Mean   float64 `yaml:"mean"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	StdDev float64 `yaml:"stdDev"`
	// CV is StdDev / Mean
	CV float64 `yaml:"cv"`
}

// Measure computes the statistics of s under mask. The mask must have the
// shape of s and select at least one pixel.
func Measure(s *models.Slice, mask geometry.Mask) (Stats, error) {
	values, err := maskedValues(s, mask)
	if err != nil {
		return Stats{}, err
	}
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}
	st := Stats{
		Count:  len(values),
		Mean:   mean,
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		StdDev: std,
	}
	if mean != 0 {
		st.CV = std / mean
	}
	return st, nil
}

func maskedValues(s *models.Slice, mask geometry.Mask) ([]float64, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if mask.Rows != s.Rows || mask.Cols != s.Cols {
		return nil, qaerr.InvalidInput("mask is %dx%d but image is %dx%d", mask.Rows, mask.Cols, s.Rows, s.Cols)
	}
	var values []float64
	for i, in := range mask.Bits {
		if in {
			values = append(values, s.Pixels[i])
		}
	}
	if len(values) == 0 {
		return nil, qaerr.InsufficientGeometry("mask selects no pixels")
	}
	return values, nil
}

// SamplePoints returns the mean of the size x size square centred on each
// landmark. A square reaching outside the image is an error.
func SamplePoints(s *models.Slice, points landmark.Set, size int) ([]float64, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, qaerr.InvalidInput("kernel size must be positive, got %d", size)
	}
	shape := geometry.Shape{Rows: s.Rows, Cols: s.Cols}
	out := make([]float64, points.Len())
	for i, p := range points.In(geometry.RowCol).Points {
		r0 := int(math.RoundToEven(p[0])) - size/2
		c0 := int(math.RoundToEven(p[1])) - size/2
		if r0 < 0 || c0 < 0 || r0+size > s.Rows || c0+size > s.Cols {
			return nil, qaerr.InsufficientGeometry("sampling square at (%.1f, %.1f) leaves the image", p[0], p[1])
		}
		st, err := Measure(s, geometry.Rectangular(geometry.Pt(float64(r0), float64(c0)), size, size, shape))
		if err != nil {
			return nil, err
		}
		out[i] = st.Mean
	}
	return out, nil
}

// checkBody rejects body masks the background ROIs cannot be placed
// around: an empty mask, or one reaching all four image borders.
func checkBody(s *models.Slice, body landmark.Body) (geometry.Extent, error) {
	if body.Mask.Shape() != (geometry.Shape{Rows: s.Rows, Cols: s.Cols}) {
		return geometry.Extent{}, qaerr.InvalidInput("body mask does not match the image shape")
	}
	ext, ok := body.Mask.Bounds()
	if !ok {
		return geometry.Extent{}, qaerr.InsufficientGeometry("empty body mask")
	}
	if ext.FirstRow == 0 && ext.FirstCol == 0 && ext.LastRow == s.Rows-1 && ext.LastCol == s.Cols-1 {
		return geometry.Extent{}, qaerr.InsufficientGeometry("phantom fills the field of view")
	}
	return ext, nil
}
