package models

import (
	"math"

	"phantomqa/pkg/qaerr"
)

// Spacing is the physical pixel size in mm along each image axis
type Spacing struct {
	// Row is the distance between adjacent rows (vertical pixel size)
	Row float64 `yaml:"row"`

	// Col is the distance between adjacent columns (horizontal pixel size)
	Col float64 `yaml:"col"`
}

// Metadata holds the acquisition attributes the QA tasks need. It is filled
// once by the DICOM collaborator; nothing downstream looks attributes up by name.
type Metadata struct {
	SeriesDescription string  `yaml:"seriesDescription,omitempty"`
	SeriesNumber      int     `yaml:"seriesNumber,omitempty"`
	InstanceNumber    int     `yaml:"instanceNumber,omitempty"`
	Manufacturer      string  `yaml:"manufacturer,omitempty"`
	EchoTime          float64 `yaml:"echoTime,omitempty"`
	RepetitionTime    float64 `yaml:"repetitionTime,omitempty"`
	InversionTime     float64 `yaml:"inversionTime,omitempty"`
}

// Slice represents a single decoded MRI slice with metadata
type Slice struct {
	// Pixels is the intensity grid in row-major order (len == Rows*Cols)
	Pixels []float64

	// Rows and Cols are the grid dimensions
	Rows int
	Cols int

	// PixelSpacing is the in-plane resolution in mm/pixel
	PixelSpacing Spacing

	// Position is the physical position of the slice along the stack axis
	Position float64

	// Thickness is the nominal slice thickness in mm
	Thickness float64

	// Filename is the source the slice was decoded from, if any
	Filename string

	Metadata Metadata
}

// NewSlice wraps a pixel buffer. The buffer is not copied.
func NewSlice(pixels []float64, rows, cols int, spacing Spacing) *Slice {
	return &Slice{
		Pixels:       pixels,
		Rows:         rows,
		Cols:         cols,
		PixelSpacing: spacing,
	}
}

// Validate checks the structural invariants every measurement relies on.
func (s *Slice) Validate() error {
	if s == nil {
		return qaerr.InvalidInput("nil slice")
	}
	if s.Rows <= 0 || s.Cols <= 0 {
		return qaerr.InvalidInput("non-positive dimensions %dx%d", s.Rows, s.Cols)
	}
	if len(s.Pixels) != s.Rows*s.Cols {
		return qaerr.InvalidInput("pixel buffer holds %d values, expected %dx%d=%d",
			len(s.Pixels), s.Rows, s.Cols, s.Rows*s.Cols)
	}
	if !(s.PixelSpacing.Row > 0) || !(s.PixelSpacing.Col > 0) {
		return qaerr.InvalidInput("non-positive pixel spacing %+v", s.PixelSpacing)
	}
	for _, v := range s.Pixels {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return qaerr.InvalidInput("pixel buffer contains non-finite values")
		}
	}
	return nil
}

// At returns the intensity at (row, col). The caller guarantees bounds.
func (s *Slice) At(row, col int) float64 {
	return s.Pixels[row*s.Cols+col]
}

// InBounds reports whether (row, col) addresses a pixel of the slice.
func (s *Slice) InBounds(row, col int) bool {
	return row >= 0 && row < s.Rows && col >= 0 && col < s.Cols
}

// MinMax returns the smallest and largest intensity in the slice.
func (s *Slice) MinMax() (min, max float64) {
	if len(s.Pixels) == 0 {
		return 0, 0
	}
	min, max = s.Pixels[0], s.Pixels[0]
	for _, v := range s.Pixels[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
