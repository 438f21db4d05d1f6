package raster

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransform() [6]float64 {
	return [6]float64{500000, 30, 0, 9900000, 0, -30}
}

func TestGridPixelArea(t *testing.T) {
	g := NewGrid(4, 4, testTransform(), 32636)
	assert.Equal(t, 900.0, g.PixelArea())
}

func TestGridPixelToWorld(t *testing.T) {
	g := NewGrid(4, 4, testTransform(), 32636)

	x, y := g.PixelToWorld(0, 0)
	assert.Equal(t, 500000.0, x)
	assert.Equal(t, 9900000.0, y)

	x, y = g.PixelToWorld(2, 3)
	assert.Equal(t, 500060.0, x)
	assert.Equal(t, 9899910.0, y)
}

func TestGridBounds(t *testing.T) {
	g := NewGrid(10, 5, testTransform(), 32636)
	minx, miny, maxx, maxy := g.Bounds()
	assert.Equal(t, 500000.0, minx)
	assert.Equal(t, 500300.0, maxx)
	assert.Equal(t, 9899850.0, miny)
	assert.Equal(t, 9900000.0, maxy)
}

func TestGridSameGrid(t *testing.T) {
	a := NewGrid(4, 4, testTransform(), 32636)
	b := NewGrid(4, 4, testTransform(), 32636)
	assert.True(t, a.SameGrid(b))

	b.EPSG = 4326
	assert.False(t, a.SameGrid(b))

	c := NewGrid(4, 5, testTransform(), 32636)
	assert.False(t, a.SameGrid(c))

	d := NewGrid(4, 4, [6]float64{0, 30, 0, 0, 0, -30}, 32636)
	assert.False(t, a.SameGrid(d))
}

func TestGridSameGridToleratesReadBackDrift(t *testing.T) {
	a := NewGrid(4, 4, testTransform(), 32636)

	wobbled := testTransform()
	wobbled[0] += 1e-7
	wobbled[3] -= 1e-7
	b := NewGrid(4, 4, wobbled, 32636)
	assert.True(t, a.SameGrid(b))

	shifted := testTransform()
	shifted[0] += 0.5
	c := NewGrid(4, 4, shifted, 32636)
	assert.False(t, a.SameGrid(c))
}

func TestGridIsNoData(t *testing.T) {
	g := NewGrid(2, 2, testTransform(), 32636)
	assert.True(t, g.IsNoData(math.NaN()))
	assert.False(t, g.IsNoData(0))

	g.NoData = -9999
	g.HasNoData = true
	assert.True(t, g.IsNoData(-9999))
	assert.False(t, g.IsNoData(0))
}

func TestGridClone(t *testing.T) {
	g := NewGrid(2, 2, testTransform(), 32636)
	g.Set(1, 1, 7)

	c := g.Clone()
	c.Set(0, 0, 3)

	assert.Equal(t, 7.0, g.At(1, 1))
	assert.Equal(t, 0.0, g.At(0, 0))
	assert.Equal(t, 3.0, c.At(0, 0))
}

func TestCacheKeyStableAndSensitive(t *testing.T) {
	ref := NewGrid(10, 10, testTransform(), 32636)

	key := CacheKey("dem.tif", ref, "near")
	require.Len(t, key, 8)
	assert.Equal(t, key, CacheKey("dem.tif", ref, "near"))

	assert.NotEqual(t, key, CacheKey("slope.tif", ref, "near"))
	assert.NotEqual(t, key, CacheKey("dem.tif", ref, "bilinear"))

	other := NewGrid(20, 10, testTransform(), 32636)
	assert.NotEqual(t, key, CacheKey("dem.tif", other, "near"))
}

func TestFormatCoordFullPrecision(t *testing.T) {
	for _, v := range []float64{500000, 9899910.123456789, 1.0 / 3.0, -0.000001234} {
		got, err := strconv.ParseFloat(formatCoord(v), 64)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestAlignedName(t *testing.T) {
	name := AlignedName("/data/processed/features/dem.tif", "abcd1234")
	assert.Equal(t, "dem_aligned_abcd1234.tif", name)
	assert.True(t, IsAlignedName(name))
	assert.False(t, IsAlignedName("dem.tif"))
	assert.False(t, IsAlignedName("dem_aligned.tif"))
}
