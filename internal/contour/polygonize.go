package contour

import (
	"fmt"

	"github.com/ctessum/geom"

	"github.com/verte-zerg/hydrobasin/internal/raster"
)

// Mask is a boolean raster. true marks catchment members.
type Mask struct {
	Width     int
	Height    int
	Cells     []bool
	Transform raster.GeoTransform
}

// Value returns the source value of (row, col): 1 for members, 0 otherwise.
func (m Mask) Value(row, col int) int {
	if m.Cells[row*m.Width+col] {
		return MemberValue
	}
	return 0
}

// Empty reports whether no cell is set.
func (m Mask) Empty() bool {
	for _, c := range m.Cells {
		if c {
			return false
		}
	}
	return true
}

func (m Mask) validate() error {
	if m.Width <= 0 || m.Height <= 0 || len(m.Cells) != m.Width*m.Height {
		return fmt.Errorf("mask has %d cells for size %dx%d", len(m.Cells), m.Width, m.Height)
	}
	return nil
}

type vertex struct{ x, y int }

type edge struct {
	from, to vertex
	used     bool
}

func (e edge) heading() vertex {
	return vertex{e.to.x - e.from.x, e.to.y - e.from.y}
}

// polygonize traces one polygon per 4-connected region of equal value.
// Rings are built on the cell-corner lattice (x = col, y = row) with the
// region on the right of every edge, so outer rings have positive lattice
// area and holes negative.
func polygonize(m Mask) ([]Feature, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	labels, count := labelRegions(m)

	edgesByLabel := make([][]edge, count)
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			l := labels[row*m.Width+col]
			same := func(r, c int) bool {
				return r >= 0 && c >= 0 && r < m.Height && c < m.Width && labels[r*m.Width+c] == l
			}
			tl, tr := vertex{col, row}, vertex{col + 1, row}
			bl, br := vertex{col, row + 1}, vertex{col + 1, row + 1}
			if !same(row-1, col) {
				edgesByLabel[l] = append(edgesByLabel[l], edge{from: tl, to: tr})
			}
			if !same(row, col+1) {
				edgesByLabel[l] = append(edgesByLabel[l], edge{from: tr, to: br})
			}
			if !same(row+1, col) {
				edgesByLabel[l] = append(edgesByLabel[l], edge{from: br, to: bl})
			}
			if !same(row, col-1) {
				edgesByLabel[l] = append(edgesByLabel[l], edge{from: bl, to: tl})
			}
		}
	}

	values := make([]int, count)
	for i, l := range labels {
		values[l] = m.Value(i/m.Width, i%m.Width)
	}

	features := make([]Feature, 0, count)
	for l := 0; l < count; l++ {
		rings := traceRings(edgesByLabel[l])
		var outer []vertex
		var holes [][]vertex
		for _, ring := range rings {
			if latticeArea(ring) > 0 {
				if outer != nil {
					return nil, fmt.Errorf("region %d has more than one outer ring", l)
				}
				outer = ring
				continue
			}
			holes = append(holes, ring)
		}
		if outer == nil {
			return nil, fmt.Errorf("region %d has no outer ring", l)
		}
		poly := geom.Polygon{toMap(outer, m.Transform)}
		for _, h := range holes {
			poly = append(poly, toMap(h, m.Transform))
		}
		features = append(features, Feature{Value: values[l], Polygon: poly})
	}
	return features, nil
}

// labelRegions assigns a label to every 4-connected run of equal values,
// numbered in scan order.
func labelRegions(m Mask) ([]int, int) {
	labels := make([]int, len(m.Cells))
	for i := range labels {
		labels[i] = -1
	}
	next := 0
	var stack []int
	for start := range m.Cells {
		if labels[start] >= 0 {
			continue
		}
		want := m.Cells[start]
		labels[start] = next
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			row, col := i/m.Width, i%m.Width
			for _, n := range [4][2]int{{row - 1, col}, {row + 1, col}, {row, col - 1}, {row, col + 1}} {
				r, c := n[0], n[1]
				if r < 0 || c < 0 || r >= m.Height || c >= m.Width {
					continue
				}
				j := r*m.Width + c
				if labels[j] >= 0 || m.Cells[j] != want {
					continue
				}
				labels[j] = next
				stack = append(stack, j)
			}
		}
		next++
	}
	return labels, next
}

// traceRings links directed edges into closed rings. Where a region touches
// itself at a corner the right-most turn is taken, which keeps diagonal cells
// apart and makes the successor of every edge unique.
func traceRings(edges []edge) [][]vertex {
	out := make(map[vertex][]int, len(edges))
	for i, e := range edges {
		out[e.from] = append(out[e.from], i)
	}

	var rings [][]vertex
	for first := range edges {
		if edges[first].used {
			continue
		}
		ring := []vertex{edges[first].from}
		cur := first
		for {
			edges[cur].used = true
			ring = append(ring, edges[cur].to)
			next := pickNext(edges, out[edges[cur].to], edges[cur].heading())
			if next < 0 || next == first {
				break
			}
			cur = next
		}
		rings = append(rings, simplify(ring))
	}
	return rings
}

func pickNext(edges []edge, candidates []int, h vertex) int {
	right := vertex{-h.y, h.x}
	left := vertex{h.y, -h.x}
	for _, want := range [3]vertex{right, h, left} {
		for _, i := range candidates {
			if edges[i].heading() == want {
				return i
			}
		}
	}
	return -1
}

// simplify drops vertices in the middle of straight runs. The ring stays
// closed (first == last).
func simplify(ring []vertex) []vertex {
	if len(ring) < 4 {
		return ring
	}
	pts := ring[:len(ring)-1]
	n := len(pts)
	out := make([]vertex, 0, n+1)
	for i := 0; i < n; i++ {
		prev := pts[(i+n-1)%n]
		cur := pts[i]
		next := pts[(i+1)%n]
		if (cur.x-prev.x)*(next.y-cur.y)-(cur.y-prev.y)*(next.x-cur.x) == 0 {
			continue
		}
		out = append(out, cur)
	}
	return append(out, out[0])
}

func latticeArea(ring []vertex) int {
	sum := 0
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i].x*ring[i+1].y - ring[i+1].x*ring[i].y
	}
	return sum
}

func toMap(ring []vertex, gt raster.GeoTransform) []geom.Point {
	pts := make([]geom.Point, len(ring))
	for i, v := range ring {
		c := gt.Apply(float64(v.x), float64(v.y))
		pts[i] = geom.Point{X: c.X, Y: c.Y}
	}
	return pts
}
