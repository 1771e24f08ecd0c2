package overlay

import (
	"fmt"
	"image/color"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/landmark"
	"phantomqa/pkg/qaerr"
	"phantomqa/pkg/roi"
	"phantomqa/pkg/slicewidth"
)

// Uniformity marks the large ROI and the small disks holding the maximum
// and minimum means.
func Uniformity(s *models.Slice, res roi.UniformityResult) (*Canvas, error) {
	cv, err := NewCanvas(s)
	if err != nil {
		return nil, err
	}
	shape := geometry.Shape{Rows: s.Rows, Cols: s.Cols}
	cv.Outline(geometry.Circular(res.LargeCentre, float64(res.LargeRadius), shape), Green)
	cv.Outline(geometry.Circular(res.MaxPos, float64(res.SmallRadius), shape), Red)
	cv.Outline(geometry.Circular(res.MinPos, float64(res.SmallRadius), shape), Blue)
	cv.Label(geometry.Pt(2, 2), fmt.Sprintf("PIU %.2f%%", res.PIU), Yellow)
	return cv, nil
}

// Ghosting marks the signal ROI and the four background ellipses with their
// means.
func Ghosting(s *models.Slice, res roi.GhostingResult) (*Canvas, error) {
	cv, err := NewCanvas(s)
	if err != nil {
		return nil, err
	}
	shape := geometry.Shape{Rows: s.Rows, Cols: s.Cols}
	cv.Outline(geometry.Circular(res.LargeCentre, float64(res.LargeRadius), shape), Green)
	for _, e := range []roi.Ellipse{res.North, res.South, res.East, res.West} {
		cv.Outline(e.Mask(shape), Yellow)
		cv.Marker(e.Centre, 2, Yellow)
	}
	cv.Label(geometry.Pt(2, 2), fmt.Sprintf("PSG %.3f%%", res.PSG), Yellow)
	return cv, nil
}

// SliceWidth marks the detected rods and the two ramp bands.
func SliceWidth(s *models.Slice, res slicewidth.Result) (*Canvas, error) {
	cv, err := NewCanvas(s)
	if err != nil {
		return nil, err
	}
	Landmarks(cv, res.Rods, Cyan, true)
	for _, b := range []struct {
		r0, c0, r1, c1 int
	}{
		{res.TopBand.RowStart, res.TopBand.ColStart, res.TopBand.RowEnd, res.TopBand.ColEnd},
		{res.BottomBand.RowStart, res.BottomBand.ColStart, res.BottomBand.RowEnd, res.BottomBand.ColEnd},
	} {
		cv.Rect(b.r0, b.c0, b.r1, b.c1, Magenta)
	}
	cv.Label(geometry.Pt(2, 2), fmt.Sprintf("width %.2f mm", res.Combined.Default), Yellow)
	return cv, nil
}

// Landmarks draws a marker per point, optionally numbered in set order.
func Landmarks(cv *Canvas, set landmark.Set, col color.Color, numbered bool) {
	for i, p := range set.In(geometry.RowCol).Points {
		cv.Marker(p, 3, col)
		if numbered {
			cv.Label(p.Add(geometry.Pt(2, 3)), fmt.Sprint(i), col)
		}
	}
}

// Registration shows how well the template, warped into the target frame,
// covers the target: pixels inside exactly one of the two foregrounds are
// tinted red, the warped template outline is yellow and the mapped
// landmarks are numbered in cyan. Foreground is everything above fraction
// of the image maximum.
func Registration(target, warped *models.Slice, mapped landmark.Set, fraction float64) (*Canvas, error) {
	if warped.Rows != target.Rows || warped.Cols != target.Cols {
		return nil, qaerr.InvalidInput("warped template is %dx%d, target is %dx%d", warped.Rows, warped.Cols, target.Rows, target.Cols)
	}
	cv, err := NewCanvas(target)
	if err != nil {
		return nil, err
	}
	tf, wf := Foreground(target, fraction), Foreground(warped, fraction)
	cv.Tint(tf.Or(wf).And(tf.And(wf).Not()), Red)
	cv.Outline(wf, Yellow)
	Landmarks(cv, mapped, Cyan, true)
	return cv, nil
}

// Foreground marks the pixels of s above fraction of its maximum.
func Foreground(s *models.Slice, fraction float64) geometry.Mask {
	m := geometry.NewMask(geometry.Shape{Rows: s.Rows, Cols: s.Cols})
	_, hi := s.MinMax()
	if hi <= 0 {
		return m
	}
	for i, v := range s.Pixels {
		m.Bits[i] = v > fraction*hi
	}
	return m
}
