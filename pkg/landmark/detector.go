// Package landmark locates fiducials in a phantom slice: the dark rods of the
// slice width insert and the bright body of the phantom. Every detector either
// returns landmarks or an ErrDetection; none of them falls back to a default
// position.
package landmark

import (
	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
)

// Detector is implemented by each landmark strategy.
type Detector interface {
	Detect(s *models.Slice) (Result, error)
}

// Set is an ordered list of landmarks in a known convention.
type Set struct {
	Points     []geometry.Point
	Convention geometry.Convention
}

// In returns the set re-expressed in convention c.
func (s Set) In(c geometry.Convention) Set {
	return Set{Points: geometry.Convert(s.Points, s.Convention, c), Convention: c}
}

// Len is the number of landmarks.
func (s Set) Len() int { return len(s.Points) }

// Result is the outcome of a detection.
type Result struct {
	// Landmarks holds the ordered points found by the detector
	Landmarks Set

	// Threshold is the intensity level the detection settled on
	Threshold float64

	// Body is set by detectors that segment the phantom body
	Body *Body
}
