package features

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"github.com/lake-guardian/lake-rise-research-cli/internal/water"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refGrid(w, h int) *raster.Grid {
	return raster.NewGrid(w, h, [6]float64{0, 30, 0, float64(h) * 30, 0, -30}, 32636)
}

// fakeAligner serves prepared grids keyed by source path, standing in for
// the warp-backed aligner.
type fakeAligner struct {
	grids map[string]*raster.Grid
	calls []string
}

func (f *fakeAligner) Align(srcPath string, ref *raster.Grid) (*raster.Grid, string, error) {
	f.calls = append(f.calls, filepath.Base(srcPath))
	grid, ok := f.grids[filepath.Base(srcPath)]
	if !ok {
		grid = ref.Clone()
	}
	return grid, srcPath, nil
}

func writeEmpty(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
}

func newTestBuilder(dir string, ref *raster.Grid, fake *fakeAligner) *Builder {
	return NewBuilder(dir, ref, fake)
}

func TestBuildPartitionsStaticAndDynamic(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, dir, "dem.tif", "slope.tif",
		"distance_from_shoreline_2013.tif", "distance_from_shoreline_2019.tif")

	ref := refGrid(4, 4)
	builder := newTestBuilder(dir, ref, &fakeAligner{})

	stack, err := builder.Build(2013)
	require.NoError(t, err)

	assert.Equal(t, []string{"dem", "distance_from_shoreline_2013", "slope"}, stack.Names)
	require.Len(t, stack.Planes, 3)
	for _, p := range stack.Planes {
		assert.Len(t, p, 16)
	}
}

func TestBuildOrderIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, dir, "slope.tif", "dem.tif", "aspect.tif")

	ref := refGrid(2, 2)
	builder := newTestBuilder(dir, ref, &fakeAligner{})

	first, err := builder.Build(2025)
	require.NoError(t, err)
	second, err := builder.Build(2025)
	require.NoError(t, err)

	assert.Equal(t, first.Names, second.Names)
	assert.Equal(t, []string{"aspect", "dem", "slope"}, first.Names)
}

func TestBuildSkipsAlignmentArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, dir, "dem.tif", "dem_aligned_abcd1234.tif")

	ref := refGrid(2, 2)
	fake := &fakeAligner{}
	builder := newTestBuilder(dir, ref, fake)

	stack, err := builder.Build(2025)
	require.NoError(t, err)

	assert.Equal(t, []string{"dem"}, stack.Names)
	assert.Equal(t, []string{"dem.tif"}, fake.calls)
}

func TestBuildNoFeaturesIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, dir, "distance_from_shoreline_2013.tif")

	ref := refGrid(2, 2)
	builder := newTestBuilder(dir, ref, &fakeAligner{})

	_, err := builder.Build(2030)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFeatures)
}

func TestBuildShapeMismatchIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, dir, "dem.tif")

	ref := refGrid(4, 4)
	fake := &fakeAligner{grids: map[string]*raster.Grid{
		"dem.tif": refGrid(3, 3),
	}}
	builder := newTestBuilder(dir, ref, fake)

	_, err := builder.Build(2025)
	require.Error(t, err)
	var mismatch *raster.ErrShapeMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestBuildNoDataBecomesNaN(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, dir, "dem.tif")

	ref := refGrid(2, 2)
	grid := refGrid(2, 2)
	grid.NoData = -9999
	grid.HasNoData = true
	grid.Data = []float64{100, -9999, 120, 130}

	builder := newTestBuilder(dir, ref, &fakeAligner{grids: map[string]*raster.Grid{"dem.tif": grid}})
	stack, err := builder.Build(2025)
	require.NoError(t, err)

	assert.Equal(t, 100.0, stack.Planes[0][0])
	assert.True(t, math.IsNaN(stack.Planes[0][1]))
}

func TestShorelineDistance(t *testing.T) {
	ref := raster.NewGrid(5, 5, [6]float64{0, 1, 0, 5, 0, -1}, 32636)

	// Unit square from (1,1) to (4,4) in world meters.
	ring := orb.Ring{{1, 1}, {4, 1}, {4, 4}, {1, 4}, {1, 1}}
	extent := water.Extent{
		Geometry: orb.MultiPolygon{{ring}},
		EPSG:     32636,
		Year:     2019,
	}

	dist, err := ShorelineDistance(extent, ref)
	require.NoError(t, err)

	// World (1,4) is pixel (1,1): on the outline.
	assert.InDelta(t, 0.0, dist.At(1, 1), 1e-9)
	// Pixel (2,2) sits one pixel inside the outline.
	assert.InDelta(t, 1.0, dist.At(2, 2), 1e-9)
	// Pixel (0,0) is one diagonal step from the outline corner cell.
	assert.InDelta(t, math.Sqrt2, dist.At(0, 0), 1e-9)
}

func TestShorelineDistanceEmptyExtent(t *testing.T) {
	ref := refGrid(3, 3)
	_, err := ShorelineDistance(water.Extent{Year: 2013, EPSG: 32636}, ref)
	assert.Error(t, err)
}
