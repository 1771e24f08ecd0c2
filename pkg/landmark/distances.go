package landmark

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/qaerr"
)

// NominalRodSeparation is the design distance between outer rods in mm.
const NominalRodSeparation = 120.0

// Distances holds the rod-to-rod distances of the 3x3 grid in mm.
// Horizontal[i] spans the outer rods of row i (bottom, middle, top);
// Vertical[i] spans the outer rods of column i (left, centre, right).
type Distances struct {
	Horizontal [3]float64 `yaml:"horizontal"`
	Vertical   [3]float64 `yaml:"vertical"`
}

// RodDistances measures a grid ordered by OrderGrid.
func RodDistances(rods Set, spacing models.Spacing) (Distances, error) {
	if rods.Len() != 9 {
		return Distances{}, qaerr.InvalidInput("expected 9 rods, got %d", rods.Len())
	}
	p := rods.In(geometry.RowCol).Points
	mm := func(a, b int) float64 {
		dr := (p[a][0] - p[b][0]) * spacing.Row
		dc := (p[a][1] - p[b][1]) * spacing.Col
		return math.Hypot(dr, dc)
	}
	return Distances{
		Horizontal: [3]float64{mm(2, 0), mm(5, 3), mm(8, 6)},
		Vertical:   [3]float64{mm(0, 6), mm(1, 7), mm(2, 8)},
	}, nil
}

// Linearity returns the mean horizontal and vertical distance.
func (d Distances) Linearity() (horizontal, vertical float64) {
	return stat.Mean(d.Horizontal[:], nil), stat.Mean(d.Vertical[:], nil)
}

// Distortion returns the coefficient of variation (percent) of the
// horizontal and vertical distances.
func (d Distances) Distortion() (horizontal, vertical float64) {
	return RodDistortion(d.Horizontal[:]), RodDistortion(d.Vertical[:])
}

// RodDistortion is 100 * sample standard deviation / mean.
func RodDistortion(distances []float64) float64 {
	mean, std := stat.MeanStdDev(distances, nil)
	if mean == 0 {
		return math.NaN()
	}
	return 100 * std / mean
}

// CorrectionCoefficients scales the ramp measurements for in-plane
// distortion. The top ramps sit between the middle and top rod rows and the
// bottom ramps between the bottom and middle rows.
func CorrectionCoefficients(d Distances, nominal float64) (top, bottom float64) {
	top = (d.Horizontal[1] + d.Horizontal[2]) / 2 / nominal
	bottom = (d.Horizontal[0] + d.Horizontal[1]) / 2 / nominal
	return top, bottom
}
