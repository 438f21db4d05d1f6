package water

// Binary morphology on masks. The gap fill pass repairs the striped Landsat
// scenes: closing with a disk element bridges the stripes, the small object
// filter drops noise specks, and the final opening undoes the boundary
// growth the closing introduced.

type offset struct{ dx, dy int }

// disk returns the offsets of a disk structuring element of the given
// radius, matching skimage's disk (x^2+y^2 <= r^2).
func disk(radius int) []offset {
	var se []offset
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				se = append(se, offset{dx, dy})
			}
		}
	}
	return se
}

func dilate(bits []uint8, width, height int, se []offset) []uint8 {
	out := make([]uint8, len(bits))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if bits[y*width+x] == 0 {
				continue
			}
			for _, o := range se {
				nx, ny := x+o.dx, y+o.dy
				if nx >= 0 && nx < width && ny >= 0 && ny < height {
					out[ny*width+nx] = 1
				}
			}
		}
	}
	return out
}

func erode(bits []uint8, width, height int, se []offset) []uint8 {
	out := make([]uint8, len(bits))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			keep := true
			for _, o := range se {
				nx, ny := x+o.dx, y+o.dy
				if nx < 0 || nx >= width || ny < 0 || ny >= height || bits[ny*width+nx] == 0 {
					keep = false
					break
				}
			}
			if keep {
				out[y*width+x] = 1
			}
		}
	}
	return out
}

func closing(bits []uint8, width, height int, se []offset) []uint8 {
	return erode(dilate(bits, width, height, se), width, height, se)
}

func opening(bits []uint8, width, height int, se []offset) []uint8 {
	return dilate(erode(bits, width, height, se), width, height, se)
}

// removeSmallObjects zeroes connected components with fewer than minPixels
// members, using 8-connectivity as skimage does.
func removeSmallObjects(bits []uint8, width, height, minPixels int) []uint8 {
	out := make([]uint8, len(bits))
	copy(out, bits)
	visited := make([]bool, len(bits))
	var stack []int
	for start := range bits {
		if bits[start] == 0 || visited[start] {
			continue
		}
		component := []int{start}
		visited[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%width, idx/width
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= width || ny < 0 || ny >= height {
						continue
					}
					nidx := ny*width + nx
					if bits[nidx] == 1 && !visited[nidx] {
						visited[nidx] = true
						component = append(component, nidx)
						stack = append(stack, nidx)
					}
				}
			}
		}
		if len(component) < minPixels {
			for _, idx := range component {
				out[idx] = 0
			}
		}
	}
	return out
}

// FillGaps runs the morphological repair pass in place: closing, small
// object removal, opening, in that order.
func (m *Mask) FillGaps(radius, minObjectPixels int) {
	se := disk(radius)
	w, h := m.Grid.Width, m.Grid.Height
	bits := closing(m.Bits, w, h, se)
	bits = removeSmallObjects(bits, w, h, minObjectPixels)
	m.Bits = opening(bits, w, h, se)
}
