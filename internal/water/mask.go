package water

import (
	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"github.com/paulmach/orb"
)

// Mask is a binary water/land raster. Bits holds one byte per pixel, row
// major, 1 for water; the grid carries the georeferencing of the index
// raster it was thresholded from. A mask owns no geometry until vectorized.
type Mask struct {
	Bits []uint8
	Grid *raster.Grid
}

// Threshold builds a water mask from a water index raster: a pixel is water
// iff its index value is strictly greater than threshold. Nodata pixels of
// the source are never water.
func Threshold(index *raster.Grid, threshold float64) *Mask {
	bits := make([]uint8, len(index.Data))
	for i, v := range index.Data {
		if index.IsNoData(v) {
			continue
		}
		if v > threshold {
			bits[i] = 1
		}
	}
	return &Mask{Bits: bits, Grid: index}
}

// ToGrid converts the mask to a {0,1} raster on the source grid, ready to
// be written as an 8 bit GeoTIFF.
func (m *Mask) ToGrid() *raster.Grid {
	out := raster.NewGrid(m.Grid.Width, m.Grid.Height, m.Grid.Transform, m.Grid.EPSG)
	for i, b := range m.Bits {
		out.Data[i] = float64(b)
	}
	return out
}

// Extent is the cleaned lake outline for one year: a dissolved, simplified
// multipolygon in a projected CRS with its area. The zero value (no rings)
// is a valid empty extent, produced when no pixel clears the threshold.
type Extent struct {
	Geometry orb.MultiPolygon
	EPSG     int
	AreaKm2  float64
	Year     int
}

func (e Extent) Empty() bool {
	return len(e.Geometry) == 0
}
