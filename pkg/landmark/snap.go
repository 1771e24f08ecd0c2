package landmark

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"phantomqa/pkg/geometry"
)

// site is a detected landmark stored in the kd-tree.
type site struct {
	P     geometry.Point
	Index int
}

// Compare implements the kdtree.Comparable interface
func (s site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(site)
	return s.P[d] - q.P[d]
}

// Dims returns the number of dimensions for the KD-tree
func (s site) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two sites
func (s site) Distance(c kdtree.Comparable) float64 {
	q := c.(site)
	dx := s.P[0] - q.P[0]
	dy := s.P[1] - q.P[1]
	return dx*dx + dy*dy
}

// sites is a collection of site that satisfies kdtree.Interface
type sites []site

func (p sites) Index(i int) kdtree.Comparable         { return p[i] }
func (p sites) Len() int                              { return len(p) }
func (p sites) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p sites) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(sitePlane{sites: p, Dim: d}, kdtree.MedianOfRandoms(sitePlane{sites: p, Dim: d}, 100))
}

// sitePlane implements kdtree.SortSlicer for sites
type sitePlane struct {
	sites
	kdtree.Dim
}

func (p sitePlane) Less(i, j int) bool {
	return p.sites[i].P[p.Dim] < p.sites[j].P[p.Dim]
}

func (p sitePlane) Slice(start, end int) kdtree.SortSlicer {
	return sitePlane{sites: p.sites[start:end], Dim: p.Dim}
}

func (p sitePlane) Swap(i, j int) {
	p.sites[i], p.sites[j] = p.sites[j], p.sites[i]
}

// Match pairs an expected landmark with its nearest detection.
type Match struct {
	Expected int     `yaml:"expected"`
	Detected int     `yaml:"detected"`
	Distance float64 `yaml:"distance"`
}

// Snap moves each expected landmark onto the nearest detected landmark that
// lies within maxDist. Unmatched landmarks keep their expected position.
// The result is in the convention of expected.
func Snap(expected, detected Set, maxDist float64) (Set, []Match) {
	out := Set{Points: append([]geometry.Point(nil), expected.Points...), Convention: expected.Convention}
	if detected.Len() == 0 || expected.Len() == 0 {
		return out, nil
	}

	det := detected.In(expected.Convention).Points
	pts := make(sites, len(det))
	for i, p := range det {
		pts[i] = site{P: p, Index: i}
	}
	tree := kdtree.New(pts, false)

	var matches []Match
	for i, p := range expected.Points {
		got, d2 := tree.Nearest(site{P: p})
		if got == nil || d2 > maxDist*maxDist {
			continue
		}
		s := got.(site)
		out.Points[i] = s.P
		matches = append(matches, Match{Expected: i, Detected: s.Index, Distance: p.Dist(s.P)})
	}
	return out, matches
}
