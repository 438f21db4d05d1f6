package water

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/lake-guardian/lake-rise-research-cli/internal/properties"
	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utmGrid(w, h int) *raster.Grid {
	return raster.NewGrid(w, h, [6]float64{500000, 30, 0, 9900000, 0, -30}, 32636)
}

func exactConfig(threshold float64) properties.ExtractionConfig {
	return properties.ExtractionConfig{
		Threshold:    threshold,
		Connectivity: 4,
		TargetEPSG:   32636,
	}
}

func TestThresholdBiconditional(t *testing.T) {
	grid := utmGrid(3, 2)
	grid.Data = []float64{-0.5, 0.1, 0.100001, 0.7, 0.1, -9999}
	grid.NoData = -9999
	grid.HasNoData = true

	mask := Threshold(grid, 0.1)

	for i, v := range grid.Data {
		if grid.IsNoData(v) {
			assert.Equal(t, uint8(0), mask.Bits[i], "nodata pixel %d must be excluded", i)
			continue
		}
		want := uint8(0)
		if v > 0.1 {
			want = 1
		}
		assert.Equal(t, want, mask.Bits[i], "pixel %d", i)
	}
}

func TestThresholdNaNExcluded(t *testing.T) {
	grid := utmGrid(2, 1)
	grid.Data = []float64{math.NaN(), 0.9}

	mask := Threshold(grid, 0.1)
	assert.Equal(t, []uint8{0, 1}, mask.Bits)
}

func TestExtractSingleBlock(t *testing.T) {
	grid := utmGrid(10, 10)
	for y := 3; y < 6; y++ {
		for x := 4; x < 7; x++ {
			grid.Set(x, y, 0.9)
		}
	}

	extractor := NewExtractor(exactConfig(0.5))
	mask, extent, err := extractor.Extract(grid, 2016)
	require.NoError(t, err)

	waterPixels := 0
	for _, b := range mask.Bits {
		waterPixels += int(b)
	}
	assert.Equal(t, 9, waterPixels)

	require.False(t, extent.Empty())
	require.Len(t, extent.Geometry, 1)
	assert.Equal(t, 2016, extent.Year)
	assert.Equal(t, 32636, extent.EPSG)

	// 9 pixels of 30x30 m, no simplification or smoothing enabled.
	assert.InDelta(t, 9*900.0/1e6, extent.AreaKm2, 1e-12)
}

func TestExtractEmptyResultIsNotAnError(t *testing.T) {
	grid := utmGrid(10, 10) // all zero, nothing above threshold

	extractor := NewExtractor(exactConfig(0.5))
	mask, extent, err := extractor.Extract(grid, 2007)
	require.NoError(t, err)
	require.NotNil(t, mask)

	assert.True(t, extent.Empty())
	assert.Equal(t, 0.0, extent.AreaKm2)
	assert.Equal(t, 2007, extent.Year)
}

func TestExtractShapeMismatchIsFatal(t *testing.T) {
	grid := utmGrid(4, 4)
	mask := Threshold(grid, 0.5)
	mask.Bits = mask.Bits[:10] // corrupt

	_, err := mask.Polygons(4)
	require.Error(t, err)

	var mismatch *raster.ErrShapeMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestExtentGeoJSONRoundTrip(t *testing.T) {
	grid := utmGrid(10, 10)
	for y := 3; y < 6; y++ {
		for x := 4; x < 7; x++ {
			grid.Set(x, y, 0.9)
		}
	}
	extractor := NewExtractor(exactConfig(0.5))
	_, extent, err := extractor.Extract(grid, 2019)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "lake_2019.geojson")
	require.NoError(t, WriteExtent(path, extent))

	loaded, err := ReadExtent(path)
	require.NoError(t, err)
	assert.Equal(t, extent.Year, loaded.Year)
	assert.Equal(t, extent.EPSG, loaded.EPSG)
	assert.InDelta(t, extent.AreaKm2, loaded.AreaKm2, 1e-12)
	assert.Equal(t, len(extent.Geometry), len(loaded.Geometry))
}
