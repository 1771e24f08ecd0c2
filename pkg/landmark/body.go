package landmark

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/qaerr"
)

// Body is the segmented phantom.
type Body struct {
	// Mask is the convex hull of the phantom's bright region
	Mask geometry.Mask

	// Centroid is the mean (row, col) of the hull pixels
	Centroid geometry.Point

	// Threshold is the intensity level used for the foreground
	Threshold float64
}

// BodyDetector segments the bright phantom body with a fixed fraction of the
// image maximum, drops specks smaller than MinArea pixels and fills the
// convex hull of what remains.
type BodyDetector struct {
	ThresholdFraction float64
	MinArea           int
	Log               zerolog.Logger
}

// NewBodyDetector returns a detector with a quarter-of-maximum threshold and
// a 500 pixel area opening.
func NewBodyDetector() *BodyDetector {
	return &BodyDetector{ThresholdFraction: 0.25, MinArea: 500, Log: zerolog.Nop()}
}

// Detect implements Detector. The single landmark is the body centroid.
func (d *BodyDetector) Detect(s *models.Slice) (Result, error) {
	body, err := d.DetectBody(s)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Landmarks: Set{Points: []geometry.Point{body.Centroid}, Convention: geometry.RowCol},
		Threshold: body.Threshold,
		Body:      &body,
	}, nil
}

// DetectBody returns the phantom body mask and centroid.
func (d *BodyDetector) DetectBody(s *models.Slice) (Body, error) {
	if err := s.Validate(); err != nil {
		return Body{}, err
	}
	lo, hi := s.MinMax()
	if hi <= 0 {
		return Body{}, qaerr.Detection("image has no positive signal")
	}
	if lo == hi {
		return Body{}, qaerr.Detection("image is saturated at %g", hi)
	}

	threshold := d.ThresholdFraction * hi
	fg := geometry.NewMask(geometry.Shape{Rows: s.Rows, Cols: s.Cols})
	for i, v := range s.Pixels {
		fg.Bits[i] = v > threshold
	}

	opened := areaOpening(fg, d.MinArea)
	if !opened.Any() {
		return Body{}, qaerr.Detection("no region of at least %d pixels above %.1f", d.MinArea, threshold)
	}

	hull := ConvexHull(opened)
	pts := hull.Coords()
	if len(pts) == 0 {
		return Body{}, qaerr.Detection("empty convex hull")
	}
	var sr, sc float64
	for _, p := range pts {
		sr += p[0]
		sc += p[1]
	}
	centroid := geometry.Pt(sr/float64(len(pts)), sc/float64(len(pts)))

	d.Log.Debug().
		Float64("threshold", threshold).
		Int("pixels", len(pts)).
		Floats64("centroid", centroid[:]).
		Msg("body detected")

	return Body{Mask: hull, Centroid: centroid, Threshold: threshold}, nil
}

// areaOpening removes the 4-connected components of m smaller than minArea.
func areaOpening(m geometry.Mask, minArea int) geometry.Mask {
	labels := Label(m)
	out := geometry.NewMask(m.Shape())
	for i, id := range labels.IDs {
		if id != 0 && labels.Areas[id] >= minArea {
			out.Bits[i] = true
		}
	}
	return out
}

// ConvexHull returns the mask of pixel centres lying inside the convex hull
// of the set pixels of m, each pixel taken as a unit square.
func ConvexHull(m geometry.Mask) geometry.Mask {
	out := geometry.NewMask(m.Shape())

	// Only the row extremes can be hull vertices; use their square corners.
	var corners []geometry.Point // XY
	for r := 0; r < m.Rows; r++ {
		first, last := -1, -1
		for c := 0; c < m.Cols; c++ {
			if m.Bits[r*m.Cols+c] {
				if first < 0 {
					first = c
				}
				last = c
			}
		}
		if first < 0 {
			continue
		}
		y := float64(r)
		corners = append(corners,
			geometry.Pt(float64(first)-0.5, y-0.5), geometry.Pt(float64(first)-0.5, y+0.5),
			geometry.Pt(float64(last)+0.5, y-0.5), geometry.Pt(float64(last)+0.5, y+0.5))
	}
	if len(corners) == 0 {
		return out
	}

	hull := monotoneChain(corners)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range hull {
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}
	for r := int(math.Ceil(minY)); r <= int(math.Floor(maxY)); r++ {
		if r < 0 || r >= m.Rows {
			continue
		}
		for c := 0; c < m.Cols; c++ {
			if insideConvex(hull, geometry.Pt(float64(c), float64(r))) {
				out.Bits[r*m.Cols+c] = true
			}
		}
	}
	return out
}

func cross(o, a, b geometry.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// monotoneChain returns the convex hull of pts in counter-clockwise order
// without collinear points.
func monotoneChain(pts []geometry.Point) []geometry.Point {
	p := append([]geometry.Point(nil), pts...)
	sort.Slice(p, func(i, j int) bool {
		if p[i][0] != p[j][0] {
			return p[i][0] < p[j][0]
		}
		return p[i][1] < p[j][1]
	})
	if len(p) < 3 {
		return p
	}
	hull := make([]geometry.Point, 0, 2*len(p))
	for _, q := range p {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], q) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, q)
	}
	lower := len(hull) + 1
	for i := len(p) - 2; i >= 0; i-- {
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p[i]) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p[i])
	}
	return hull[:len(hull)-1]
}

// insideConvex reports whether q lies inside or on a counter-clockwise hull.
func insideConvex(hull []geometry.Point, q geometry.Point) bool {
	const eps = 1e-9
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		if cross(a, b, q) < -eps {
			return false
		}
	}
	return true
}
