package features

import (
	"fmt"
	"math"

	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"github.com/lake-guardian/lake-rise-research-cli/internal/water"
	"github.com/paulmach/orb"
)

// ShorelineDistance builds the distance-from-shoreline predictor for one
// year: the lake outline is traced onto the reference grid and every pixel
// gets its Euclidean distance to the nearest outline pixel, scaled to
// meters by the pixel size. Pixels inside the lake carry a positive
// distance too; the predictor measures proximity to the shoreline, not
// membership. Every year's plane, training and prediction alike, goes
// through this function.
func ShorelineDistance(extent water.Extent, ref *raster.Grid) (*raster.Grid, error) {
	if extent.Empty() {
		return nil, fmt.Errorf("cannot rasterize empty extent for year %d", extent.Year)
	}
	geometry := extent.Geometry
	if extent.EPSG != ref.EPSG {
		var err error
		geometry, err = water.Reproject(geometry, extent.EPSG, ref.EPSG)
		if err != nil {
			return nil, err
		}
	}

	shoreline := traceRings(geometry, ref)
	any := false
	for _, m := range shoreline {
		if m {
			any = true
			break
		}
	}
	if !any {
		return nil, fmt.Errorf("extent for year %d falls outside the reference grid", extent.Year)
	}
	squared := distanceTransform(shoreline, ref.Width, ref.Height)

	out := raster.NewGrid(ref.Width, ref.Height, ref.Transform, ref.EPSG)
	pixelSize := math.Abs(ref.Transform[1])
	for i, d2 := range squared {
		out.Data[i] = math.Sqrt(d2) * pixelSize
	}
	return out, nil
}

// traceRings marks every grid cell a ring segment passes through, sampling
// each segment at quarter-pixel steps. Assumes a north-up grid (no rotation
// terms), which holds for every raster this pipeline produces.
func traceRings(mp orb.MultiPolygon, ref *raster.Grid) []bool {
	marked := make([]bool, ref.Width*ref.Height)
	mark := func(wx, wy float64) {
		px := int(math.Floor((wx - ref.Transform[0]) / ref.Transform[1]))
		py := int(math.Floor((wy - ref.Transform[3]) / ref.Transform[5]))
		if px >= 0 && px < ref.Width && py >= 0 && py < ref.Height {
			marked[py*ref.Width+px] = true
		}
	}

	step := math.Abs(ref.Transform[1]) / 4
	for _, poly := range mp {
		for _, ring := range poly {
			for i := 0; i < len(ring)-1; i++ {
				ax, ay := ring[i][0], ring[i][1]
				bx, by := ring[i+1][0], ring[i+1][1]
				length := math.Hypot(bx-ax, by-ay)
				samples := int(length/step) + 1
				for s := 0; s <= samples; s++ {
					t := float64(s) / float64(samples)
					mark(ax+(bx-ax)*t, ay+(by-ay)*t)
				}
			}
		}
	}
	return marked
}

const edtInf = 1e20

// distanceTransform computes the squared Euclidean distance, in pixel
// units, from every cell to the nearest marked cell (Felzenszwalb and
// Huttenlocher's two pass algorithm).
func distanceTransform(marked []bool, width, height int) []float64 {
	d := make([]float64, width*height)
	for i, m := range marked {
		if !m {
			d[i] = edtInf
		}
	}

	column := make([]float64, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			column[y] = d[y*width+x]
		}
		for y, v := range edt1d(column) {
			d[y*width+x] = v
		}
	}

	row := make([]float64, width)
	for y := 0; y < height; y++ {
		copy(row, d[y*width:(y+1)*width])
		copy(d[y*width:(y+1)*width], edt1d(row))
	}
	return d
}

// edt1d is the one dimensional squared distance transform over a sampled
// function, via the lower envelope of parabolas.
func edt1d(f []float64) []float64 {
	n := len(f)
	d := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	k := 0
	v[0] = 0
	z[0] = -edtInf
	z[1] = edtInf
	for q := 1; q < n; q++ {
		var s float64
		for {
			p := v[k]
			s = ((f[q] + float64(q*q)) - (f[p] + float64(p*p))) / float64(2*q-2*p)
			if s > z[k] {
				break
			}
			k--
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = edtInf
	}

	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
	return d
}
