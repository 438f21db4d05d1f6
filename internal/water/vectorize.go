package water

import (
	"fmt"

	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Vectorization traces the connected water regions of a mask into polygons
// whose vertices are pixel corners, so a traced region covers exactly the
// ground footprint of its pixels. Rings are walked along the directed
// boundary edges of each component; at pinch corners the walk turns toward
// the interior, which splits diagonal touches into separate rings instead
// of figure eights.

type corner struct{ x, y int }

type boundaryEdge struct {
	from, to corner
	used     bool
}

// Polygons vectorizes the mask at the given pixel connectivity (4 or 8) and
// returns one polygon per traced outline, holes included, in world
// coordinates. A mask whose bit plane does not match its grid shape is a
// fatal data corruption.
func (m *Mask) Polygons(connectivity int) ([]orb.Polygon, error) {
	w, h := m.Grid.Width, m.Grid.Height
	if len(m.Bits) != w*h {
		return nil, &raster.ErrShapeMismatch{
			Got:  fmt.Sprintf("%d pixels", len(m.Bits)),
			Want: fmt.Sprintf("%dx%d", w, h),
		}
	}
	if connectivity != 4 && connectivity != 8 {
		return nil, fmt.Errorf("unsupported pixel connectivity %d, want 4 or 8", connectivity)
	}

	labels, ncomp := label(m.Bits, w, h, connectivity)

	var polys []orb.Polygon
	for comp := 1; comp <= ncomp; comp++ {
		rings, areas := traceComponent(labels, w, h, comp)
		polys = append(polys, assemblePolygons(m.Grid, rings, areas)...)
	}
	return polys, nil
}

// label assigns component ids (1-based) to water pixels, row major scan
// order, 0 for land.
func label(bits []uint8, w, h, connectivity int) ([]int32, int) {
	neighbors := [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	if connectivity == 8 {
		neighbors = append(neighbors, [2]int{1, 1}, [2]int{1, -1}, [2]int{-1, 1}, [2]int{-1, -1})
	}

	labels := make([]int32, len(bits))
	next := int32(0)
	var stack []int
	for start := range bits {
		if bits[start] == 0 || labels[start] != 0 {
			continue
		}
		next++
		labels[start] = next
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w
			for _, n := range neighbors {
				nx, ny := x+n[0], y+n[1]
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				nidx := ny*w + nx
				if bits[nidx] == 1 && labels[nidx] == 0 {
					labels[nidx] = next
					stack = append(stack, nidx)
				}
			}
		}
	}
	return labels, int(next)
}

// traceComponent extracts the closed rings of one component in pixel corner
// coordinates, along with each ring's signed shoelace area (positive for
// outlines, negative for holes under y-down pixel coordinates).
func traceComponent(labels []int32, w, h int, comp int) ([][]corner, []float64) {
	inComp := func(x, y int) bool {
		return x >= 0 && x < w && y >= 0 && y < h && labels[y*w+x] == int32(comp)
	}

	// Directed boundary edges, interior kept on the right of the walk.
	var edges []*boundaryEdge
	bySrc := make(map[corner][]*boundaryEdge)
	add := func(from, to corner) {
		e := &boundaryEdge{from: from, to: to}
		edges = append(edges, e)
		bySrc[from] = append(bySrc[from], e)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !inComp(x, y) {
				continue
			}
			if !inComp(x, y-1) {
				add(corner{x, y}, corner{x + 1, y})
			}
			if !inComp(x+1, y) {
				add(corner{x + 1, y}, corner{x + 1, y + 1})
			}
			if !inComp(x, y+1) {
				add(corner{x + 1, y + 1}, corner{x, y + 1})
			}
			if !inComp(x-1, y) {
				add(corner{x, y + 1}, corner{x, y})
			}
		}
	}

	var rings [][]corner
	var areas []float64
	for _, start := range edges {
		if start.used {
			continue
		}
		ring := []corner{start.from}
		cur := start
		cur.used = true
		for cur.to != start.from {
			ring = append(ring, cur.to)
			cur = nextEdge(bySrc, cur)
			cur.used = true
		}
		ring = append(ring, start.from) // close
		rings = append(rings, ring)
		areas = append(areas, shoelace(ring))
	}
	return rings, areas
}

// nextEdge continues the walk from cur's endpoint, preferring the turn
// toward the interior (right turn, then straight, then left) when more than
// one boundary edge leaves a corner.
func nextEdge(bySrc map[corner][]*boundaryEdge, cur *boundaryEdge) *boundaryEdge {
	candidates := bySrc[cur.to]
	if len(candidates) == 1 {
		return candidates[0]
	}
	dx := cur.to.x - cur.from.x
	dy := cur.to.y - cur.from.y
	preferred := [3][2]int{
		{-dy, dx},  // right turn
		{dx, dy},   // straight
		{dy, -dx},  // left turn
	}
	for _, dir := range preferred {
		for _, e := range candidates {
			if e.used {
				continue
			}
			if e.to.x-e.from.x == dir[0] && e.to.y-e.from.y == dir[1] {
				return e
			}
		}
	}
	// Unreachable for well formed boundaries; fall back to any unused edge.
	for _, e := range candidates {
		if !e.used {
			return e
		}
	}
	return candidates[0]
}

func shoelace(ring []corner) float64 {
	sum := 0.0
	for i := 0; i < len(ring)-1; i++ {
		sum += float64(ring[i].x*ring[i+1].y - ring[i+1].x*ring[i].y)
	}
	return sum / 2
}

// assemblePolygons groups one component's rings into polygons: each outline
// ring starts a polygon, each hole ring is attached to the outline that
// contains it. Coordinates move to world space here; outlines are wound
// counter clockwise and holes clockwise so downstream area math is signed
// correctly.
func assemblePolygons(grid *raster.Grid, rings [][]corner, areas []float64) []orb.Polygon {
	toWorld := func(ring []corner) orb.Ring {
		out := make(orb.Ring, len(ring))
		for i, c := range ring {
			x, y := grid.PixelToWorld(float64(c.x), float64(c.y))
			out[i] = orb.Point{x, y}
		}
		return out
	}

	var outlines []orb.Ring
	var holes []orb.Ring
	for i, ring := range rings {
		wr := toWorld(ring)
		if areas[i] > 0 {
			if wr.Orientation() != orb.CCW {
				wr.Reverse()
			}
			outlines = append(outlines, wr)
		} else {
			if wr.Orientation() != orb.CW {
				wr.Reverse()
			}
			holes = append(holes, wr)
		}
	}

	polys := make([]orb.Polygon, len(outlines))
	for i, outline := range outlines {
		polys[i] = orb.Polygon{outline}
	}
	for _, hole := range holes {
		for i, outline := range outlines {
			if planar.RingContains(outline, hole[0]) {
				polys[i] = append(polys[i], hole)
				break
			}
		}
	}
	return polys
}
