package raster

import (
	"fmt"
	"math"
)

// Grid is a single band raster held in memory: row major float64 samples
// plus the georeferencing needed to place every pixel on the ground. The
// transform, EPSG code and shape together fully determine the footprint;
// two grids are aligned iff all three match.
type Grid struct {
	Data      []float64
	Width     int
	Height    int
	Transform [6]float64 // GDAL geotransform: origin x, px width, rot, origin y, rot, px height (negative)
	EPSG      int
	NoData    float64
	HasNoData bool
}

func NewGrid(width, height int, transform [6]float64, epsg int) *Grid {
	return &Grid{
		Data:      make([]float64, width*height),
		Width:     width,
		Height:    height,
		Transform: transform,
		EPSG:      epsg,
	}
}

func (g *Grid) Index(x, y int) int {
	return y*g.Width + x
}

func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v float64) {
	g.Data[y*g.Width+x] = v
}

// IsNoData reports whether v is the undefined sentinel of this grid. NaN is
// always treated as undefined.
func (g *Grid) IsNoData(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return g.HasNoData && v == g.NoData
}

// PixelArea returns the ground area of one pixel in squared CRS units.
func (g *Grid) PixelArea() float64 {
	return math.Abs(g.Transform[1]*g.Transform[5] - g.Transform[2]*g.Transform[4])
}

// PixelToWorld maps pixel-space coordinates to CRS coordinates. Integer
// inputs address pixel corners; add 0.5 for centers.
func (g *Grid) PixelToWorld(px, py float64) (float64, float64) {
	x := g.Transform[0] + g.Transform[1]*px + g.Transform[2]*py
	y := g.Transform[3] + g.Transform[4]*px + g.Transform[5]*py
	return x, y
}

// Bounds returns the grid extent as minx, miny, maxx, maxy in CRS units.
func (g *Grid) Bounds() (float64, float64, float64, float64) {
	x0, y0 := g.PixelToWorld(0, 0)
	x1, y1 := g.PixelToWorld(float64(g.Width), float64(g.Height))
	return math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)
}

// transformEps bounds the relative drift tolerated between geotransforms.
// Warping and read-back round through GeoTIFF doubles, so bit equality is
// too strict for grids whose coordinates are not exactly representable.
const transformEps = 1e-9

// SameGrid reports whether o shares this grid's shape, transform and CRS.
func (g *Grid) SameGrid(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height &&
		sameTransform(g.Transform, o.Transform) && g.EPSG == o.EPSG
}

func sameTransform(a, b [6]float64) bool {
	for i := range a {
		scale := math.Max(1, math.Max(math.Abs(a[i]), math.Abs(b[i])))
		if math.Abs(a[i]-b[i]) > transformEps*scale {
			return false
		}
	}
	return true
}

func (g *Grid) Clone() *Grid {
	c := *g
	c.Data = make([]float64, len(g.Data))
	copy(c.Data, g.Data)
	return &c
}

// ErrShapeMismatch wraps size disagreements between rasters that are
// supposed to share a grid. It always indicates upstream data corruption.
type ErrShapeMismatch struct {
	Got, Want string
}

func (e *ErrShapeMismatch) Error() string {
	return fmt.Sprintf("raster shape mismatch: got %s, want %s", e.Got, e.Want)
}

func ShapeMismatch(gw, gh, ww, wh int) error {
	return &ErrShapeMismatch{
		Got:  fmt.Sprintf("%dx%d", gw, gh),
		Want: fmt.Sprintf("%dx%d", ww, wh),
	}
}
