package landmark

import (
	"sort"

	"phantomqa/pkg/geometry"
)

// Labels is a 4-connected component labelling of a binary grid. Label 0 is
// unset; components are numbered 1..Count in raster order of their first pixel.
type Labels struct {
	Rows, Cols int
	IDs        []int
	Count      int
	// Areas[i] is the pixel count of component i (Areas[0] is unused).
	Areas []int
}

// Label computes the 4-connected components of the true pixels of m.
func Label(m geometry.Mask) Labels {
	l := Labels{Rows: m.Rows, Cols: m.Cols, IDs: make([]int, len(m.Bits)), Areas: []int{0}}
	queue := make([]int, 0, 64)

	for start, set := range m.Bits {
		if !set || l.IDs[start] != 0 {
			continue
		}
		l.Count++
		id := l.Count
		area := 0
		l.IDs[start] = id
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			area++
			r, c := idx/m.Cols, idx%m.Cols
			for _, n := range neighbours4(r, c, m.Rows, m.Cols) {
				if n >= 0 && m.Bits[n] && l.IDs[n] == 0 {
					l.IDs[n] = id
					queue = append(queue, n)
				}
			}
		}
		l.Areas = append(l.Areas, area)
	}
	return l
}

// Mask returns the footprint of component id.
func (l Labels) Mask(id int) geometry.Mask {
	m := geometry.NewMask(geometry.Shape{Rows: l.Rows, Cols: l.Cols})
	for i, v := range l.IDs {
		if v == id {
			m.Bits[i] = true
		}
	}
	return m
}

// Largest returns the id of the component with the most pixels, preferring
// the lowest id on ties, or 0 when there are no components.
func (l Labels) Largest() int {
	best := 0
	for id := 1; id <= l.Count; id++ {
		if best == 0 || l.Areas[id] > l.Areas[best] {
			best = id
		}
	}
	return best
}

// neighbours4 returns the flat indices of the 4-neighbours of (r, c), or -1
// for positions outside the grid.
func neighbours4(r, c, rows, cols int) [4]int {
	n := [4]int{-1, -1, -1, -1}
	if r > 0 {
		n[0] = (r-1)*cols + c
	}
	if r < rows-1 {
		n[1] = (r+1)*cols + c
	}
	if c > 0 {
		n[2] = r*cols + c - 1
	}
	if c < cols-1 {
		n[3] = r*cols + c + 1
	}
	return n
}

// disjointSet is a union-find over flat pixel indices.
type disjointSet struct {
	parent []int
	rank   []uint8
}

func newDisjointSet(n int) *disjointSet {
	d := &disjointSet{parent: make([]int, n), rank: make([]uint8, n)}
	for i := range d.parent {
		d.parent[i] = i
	}
	return d
}

func (d *disjointSet) find(x int) int {
	for d.parent[x] != x {
		d.parent[x] = d.parent[d.parent[x]]
		x = d.parent[x]
	}
	return x
}

// union merges the sets of a and b and reports whether they were distinct.
func (d *disjointSet) union(a, b int) bool {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return false
	}
	switch {
	case d.rank[ra] < d.rank[rb]:
		d.parent[ra] = rb
	case d.rank[ra] > d.rank[rb]:
		d.parent[rb] = ra
	default:
		d.parent[rb] = ra
		d.rank[ra]++
	}
	return true
}

// ComponentSweep returns, for each level, the number of 4-connected
// components of {pixel <= level}. Levels must be ascending. Pixels are
// added in intensity order and merged with a union-find, so the whole sweep
// costs one sort plus near-linear merging instead of one labelling per level.
func ComponentSweep(pixels []float64, rows, cols int, levels []float64) []int {
	order := make([]int, len(pixels))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return pixels[order[a]] < pixels[order[b]] })

	ds := newDisjointSet(len(pixels))
	added := make([]bool, len(pixels))
	counts := make([]int, len(levels))
	components := 0
	next := 0
	for li, level := range levels {
		for next < len(order) && pixels[order[next]] <= level {
			idx := order[next]
			added[idx] = true
			components++
			for _, n := range neighbours4(idx/cols, idx%cols, rows, cols) {
				if n >= 0 && added[n] && ds.union(idx, n) {
					components--
				}
			}
			next++
		}
		counts[li] = components
	}
	return counts
}
