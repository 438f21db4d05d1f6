package water

import (
	"math"
	"testing"

	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maskFromRows(t *testing.T, rows []string) *Mask {
	t.Helper()
	h := len(rows)
	w := len(rows[0])
	grid := utmGrid(w, h)
	bits := make([]uint8, w*h)
	for y, row := range rows {
		require.Len(t, row, w)
		for x, c := range row {
			if c == '1' {
				bits[y*w+x] = 1
			}
		}
	}
	return &Mask{Bits: bits, Grid: grid}
}

func TestPolygonsSingleBlockArea(t *testing.T) {
	mask := maskFromRows(t, []string{
		"0000",
		"0110",
		"0110",
		"0000",
	})

	polys, err := mask.Polygons(4)
	require.NoError(t, err)
	require.Len(t, polys, 1)

	// 4 pixels of 900 m² each, exact pixel corner tracing.
	assert.InDelta(t, 4*900.0, math.Abs(planar.Area(polys[0])), 1e-9)
}

func TestPolygonsConnectivity(t *testing.T) {
	mask := maskFromRows(t, []string{
		"10",
		"01",
	})

	polys, err := mask.Polygons(4)
	require.NoError(t, err)
	assert.Len(t, polys, 2, "diagonal neighbors are separate at 4-connectivity")

	polys, err = mask.Polygons(8)
	require.NoError(t, err)
	// One component; the pinch corner still traces as two simple rings.
	total := 0.0
	for _, p := range polys {
		total += math.Abs(planar.Area(p))
	}
	assert.InDelta(t, 2*900.0, total, 1e-9)
}

func TestPolygonsHole(t *testing.T) {
	mask := maskFromRows(t, []string{
		"11111",
		"10001",
		"10001",
		"11111",
	})

	polys, err := mask.Polygons(4)
	require.NoError(t, err)
	require.Len(t, polys, 1)
	require.Len(t, polys[0], 2, "expected an outline and one hole ring")

	// 20 cells minus the 6 cell hole.
	assert.InDelta(t, 14*900.0, math.Abs(planar.Area(polys[0])), 1e-9)
}

// rasterize paints polygons back onto the mask grid by pixel center
// containment, the inverse of the corner tracing.
func rasterize(grid *raster.Grid, polys []orb.Polygon) []uint8 {
	bits := make([]uint8, grid.Width*grid.Height)
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			cx, cy := grid.PixelToWorld(float64(x)+0.5, float64(y)+0.5)
			for _, p := range polys {
				if planar.PolygonContains(p, orb.Point{cx, cy}) {
					bits[grid.Index(x, y)] = 1
					break
				}
			}
		}
	}
	return bits
}

func TestPolygonsRasterizeRoundTrip(t *testing.T) {
	mask := maskFromRows(t, []string{
		"0000000000",
		"0111110010",
		"0100010010",
		"0100010011",
		"0111110000",
		"0000000000",
	})

	polys, err := mask.Polygons(4)
	require.NoError(t, err)
	require.Len(t, polys, 2)

	assert.Equal(t, mask.Bits, rasterize(mask.Grid, polys))

	waterPixels := 0
	for _, b := range mask.Bits {
		waterPixels += int(b)
	}
	total := 0.0
	for _, p := range polys {
		total += math.Abs(planar.Area(p))
	}
	assert.InDelta(t, float64(waterPixels)*900.0, total, 1e-9)
}

func TestPolygonsRejectsBadConnectivity(t *testing.T) {
	mask := maskFromRows(t, []string{"1"})
	_, err := mask.Polygons(6)
	assert.Error(t, err)
}

func TestPolygonsEmptyMask(t *testing.T) {
	mask := maskFromRows(t, []string{"000", "000"})
	polys, err := mask.Polygons(4)
	require.NoError(t, err)
	assert.Empty(t, polys)
}
