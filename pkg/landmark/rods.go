package landmark

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"phantomqa/internal/models"
	"phantomqa/internal/numeric"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/qaerr"
)

// DefaultMaxLevels bounds the threshold sweep for images with a very wide
// intensity range.
const DefaultMaxLevels = 4096

// RodDetector finds Count dark rods laid out in Rows rows. It sweeps a
// threshold from the image minimum upward and keeps the levels at which the
// dark region {pixel <= level} splits into exactly Count rods plus the
// surrounding background.
type RodDetector struct {
	Count     int
	Rows      int
	MaxLevels int
	Log       zerolog.Logger
}

// NewRodDetector returns the detector for the 3x3 slice width rod grid.
func NewRodDetector() *RodDetector {
	return &RodDetector{Count: 9, Rows: 3, MaxLevels: DefaultMaxLevels, Log: zerolog.Nop()}
}

// Detect implements Detector. The landmarks are intensity-weighted rod
// centroids in RowCol, ordered bottom row first and left to right in a row.
func (d *RodDetector) Detect(s *models.Slice) (Result, error) {
	if err := s.Validate(); err != nil {
		return Result{}, err
	}
	if d.Count <= 0 || d.Rows <= 0 || d.Count%d.Rows != 0 {
		return Result{}, qaerr.InvalidInput("rod grid %d rods in %d rows", d.Count, d.Rows)
	}

	levels := sweepLevels(s, d.MaxLevels)
	counts := ComponentSweep(s.Pixels, s.Rows, s.Cols, levels)

	var qualifying []int
	for i, n := range counts {
		if n == d.Count+1 {
			qualifying = append(qualifying, i)
		}
	}
	if len(qualifying) == 0 {
		return Result{}, qaerr.Detection("no threshold separates %d rods from the background", d.Count)
	}
	level := levels[int(numeric.MedianInt(qualifying))]

	labels := Label(darkMask(s, level))
	if labels.Count != d.Count+1 {
		return Result{}, qaerr.Detection("median threshold %.1f yields %d regions, want %d",
			level, labels.Count, d.Count+1)
	}
	background := labels.Largest()

	centroids := make([]geometry.Point, 0, d.Count)
	for id := 1; id <= labels.Count; id++ {
		if id == background {
			continue
		}
		centroids = append(centroids, weightedCentroid(s, labels, id))
	}

	ordered, err := OrderGrid(centroids, d.Rows)
	if err != nil {
		return Result{}, err
	}

	d.Log.Debug().
		Int("levels", len(levels)).
		Int("qualifying", len(qualifying)).
		Float64("threshold", level).
		Msg("rods detected")

	return Result{
		Landmarks: Set{Points: ordered, Convention: geometry.RowCol},
		Threshold: level,
	}, nil
}

// sweepLevels returns the ascending threshold levels from floor(min) to max.
// Levels are one intensity unit apart unless that would exceed maxLevels.
func sweepLevels(s *models.Slice, maxLevels int) []float64 {
	lo, hi := s.MinMax()
	start := math.Floor(lo)
	step := 1.0
	if maxLevels < 2 {
		maxLevels = DefaultMaxLevels
	}
	if n := math.Floor(hi-start) + 1; n > float64(maxLevels) {
		step = math.Ceil((hi - start) / float64(maxLevels-1))
	}
	var levels []float64
	for v := start; v <= hi; v += step {
		levels = append(levels, v)
	}
	return levels
}

func darkMask(s *models.Slice, level float64) geometry.Mask {
	m := geometry.NewMask(geometry.Shape{Rows: s.Rows, Cols: s.Cols})
	for i, v := range s.Pixels {
		m.Bits[i] = v <= level
	}
	return m
}

// weightedCentroid returns the intensity-weighted centre of component id,
// or the plain centre when the component carries no intensity.
func weightedCentroid(s *models.Slice, l Labels, id int) geometry.Point {
	var wr, wc, w, ur, uc float64
	n := 0
	for i, v := range l.IDs {
		if v != id {
			continue
		}
		r, c := float64(i/l.Cols), float64(i%l.Cols)
		px := s.Pixels[i]
		wr += px * r
		wc += px * c
		w += px
		ur += r
		uc += c
		n++
	}
	if w == 0 {
		return geometry.Pt(ur/float64(n), uc/float64(n))
	}
	return geometry.Pt(wr/w, wc/w)
}

// OrderGrid orders RowCol points laid out in a grid of the given number of
// rows: the bottom row (largest row index) first, each row left to right.
// The ordering is total and stable, so equal inputs always give equal output.
func OrderGrid(points []geometry.Point, rows int) ([]geometry.Point, error) {
	if rows <= 0 || len(points) == 0 || len(points)%rows != 0 {
		return nil, qaerr.Detection("cannot arrange %d points in %d rows", len(points), rows)
	}
	byRow := make([]geometry.Point, len(points))
	copy(byRow, points)
	sort.SliceStable(byRow, func(i, j int) bool {
		if byRow[i][0] != byRow[j][0] {
			return byRow[i][0] < byRow[j][0]
		}
		return byRow[i][1] < byRow[j][1]
	})

	perRow := len(points) / rows
	out := make([]geometry.Point, 0, len(points))
	for g := rows - 1; g >= 0; g-- {
		group := append([]geometry.Point(nil), byRow[g*perRow:(g+1)*perRow]...)
		sort.SliceStable(group, func(i, j int) bool {
			if group[i][1] != group[j][1] {
				return group[i][1] < group[j][1]
			}
			return group[i][0] < group[j][0]
		})
		out = append(out, group...)
	}
	return out, nil
}
