package classifier

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/lake-guardian/lake-rise-research-cli/internal/features"
	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refGrid(w, h int) *raster.Grid {
	return raster.NewGrid(w, h, [6]float64{0, 30, 0, float64(h) * 30, 0, -30}, 32636)
}

// fakeAligner serves prepared grids keyed by file name, standing in for the
// warp-backed aligner.
type fakeAligner struct {
	grids map[string]*raster.Grid
}

func (f *fakeAligner) Align(srcPath string, ref *raster.Grid) (*raster.Grid, string, error) {
	grid, ok := f.grids[filepath.Base(srcPath)]
	if !ok {
		grid = ref.Clone()
	}
	return grid, srcPath, nil
}

// demScene builds a feature directory with one static "dem" raster whose
// values separate the two label classes on a threshold, plus the matching
// label grid (water above 50, land below, NaN where the feature is NaN).
func demScene(t *testing.T) (string, *raster.Grid, *fakeAligner, *raster.Grid) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dem.tif"), nil, 0644))

	ref := refGrid(5, 5)
	dem := ref.Clone()
	labels := ref.Clone()
	for i := range dem.Data {
		dem.Data[i] = float64(i * 10)
		if dem.Data[i] > 50 {
			labels.Data[i] = 1
		} else {
			labels.Data[i] = 0
		}
	}
	dem.Data[3] = math.NaN()
	labels.Data[3] = math.NaN()

	fake := &fakeAligner{grids: map[string]*raster.Grid{"dem.tif": dem}}
	return dir, ref, fake, labels
}

func labelsFor(labels *raster.Grid, years ...int) LabelLoader {
	return func(year int) (*raster.Grid, error) {
		for _, y := range years {
			if y == year {
				return labels, nil
			}
		}
		return nil, fmt.Errorf("no mask for year %d", year)
	}
}

func TestPredictBeforeTrain(t *testing.T) {
	dir, ref, fake, labels := demScene(t)
	builder := features.NewBuilder(dir, ref, fake)
	c := NewExtentClassifier(builder, labelsFor(labels, 2013), smallForestConfig())

	_, err := c.Predict(2030, "")
	assert.ErrorIs(t, err, ErrModelNotTrained)
}

func TestTrainWithoutAnyLabels(t *testing.T) {
	dir, ref, fake, _ := demScene(t)
	builder := features.NewBuilder(dir, ref, fake)
	c := NewExtentClassifier(builder, labelsFor(nil), smallForestConfig())

	err := c.Train([]int{2013, 2019})
	assert.ErrorIs(t, err, ErrNoTrainingYears)
}

func TestTrainRejectsMismatchedLabelGrid(t *testing.T) {
	dir, ref, fake, _ := demScene(t)
	builder := features.NewBuilder(dir, ref, fake)
	bad := refGrid(3, 3)
	c := NewExtentClassifier(builder, labelsFor(bad, 2013), smallForestConfig())

	err := c.Train([]int{2013})
	var mismatch *raster.ErrShapeMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestTrainAndPredictReproducesLabels(t *testing.T) {
	dir, ref, fake, labels := demScene(t)
	builder := features.NewBuilder(dir, ref, fake)
	c := NewExtentClassifier(builder, labelsFor(labels, 2013, 2019), smallForestConfig())

	require.NoError(t, c.Train([]int{2013, 2019}))

	out, err := c.Predict(2025, "")
	require.NoError(t, err)
	require.True(t, out.SameGrid(ref))

	for i := range out.Data {
		if math.IsNaN(labels.Data[i]) {
			assert.True(t, math.IsNaN(out.Data[i]), "pixel %d with undefined feature must stay NaN", i)
			continue
		}
		assert.Equal(t, labels.Data[i], out.Data[i], "pixel %d", i)
	}
}

// addFlowFeature drops a per-year dynamic raster into the scene, valued so
// it separates the classes on the same threshold the dem does.
func addFlowFeature(t *testing.T, dir string, ref *raster.Grid, fake *fakeAligner, years ...int) {
	t.Helper()
	flow := ref.Clone()
	for i := range flow.Data {
		flow.Data[i] = float64(i)
	}
	for _, year := range years {
		name := fmt.Sprintf("flow_%d.tif", year)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
		fake.grids[name] = flow
	}
}

func TestPredictYearWithDynamicFeatures(t *testing.T) {
	dir, ref, fake, labels := demScene(t)
	addFlowFeature(t, dir, ref, fake, 2013, 2019, 2030)

	builder := features.NewBuilder(dir, ref, fake)
	c := NewExtentClassifier(builder, labelsFor(labels, 2013, 2019), smallForestConfig())
	require.NoError(t, c.Train([]int{2013, 2019}))

	out, err := c.Predict(2030, "")
	require.NoError(t, err)
	require.True(t, out.SameGrid(ref))
	for i := range out.Data {
		if math.IsNaN(labels.Data[i]) {
			assert.True(t, math.IsNaN(out.Data[i]))
			continue
		}
		assert.Equal(t, labels.Data[i], out.Data[i], "pixel %d", i)
	}
}

func TestPredictRequiresDynamicCounterpart(t *testing.T) {
	dir, ref, fake, labels := demScene(t)
	addFlowFeature(t, dir, ref, fake, 2013, 2019)

	builder := features.NewBuilder(dir, ref, fake)
	c := NewExtentClassifier(builder, labelsFor(labels, 2013, 2019), smallForestConfig())
	require.NoError(t, c.Train([]int{2013, 2019}))

	// 2030 has no flow plane, so its stack is one feature short of the
	// model and prediction must refuse it.
	_, err := c.Predict(2030, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model expects")
}

func TestSaveLoadModelRoundTrip(t *testing.T) {
	dir, ref, fake, labels := demScene(t)
	builder := features.NewBuilder(dir, ref, fake)
	c := NewExtentClassifier(builder, labelsFor(labels, 2013), smallForestConfig())
	require.NoError(t, c.Train([]int{2013}))

	path := filepath.Join(t.TempDir(), "lake_model")
	require.NoError(t, c.SaveModel(path))

	fresh := NewExtentClassifier(builder, labelsFor(labels, 2013), smallForestConfig())
	require.NoError(t, fresh.LoadModel(path))

	want, err := c.Predict(2025, "")
	require.NoError(t, err)
	got, err := fresh.Predict(2025, "")
	require.NoError(t, err)

	for i := range want.Data {
		if math.IsNaN(want.Data[i]) {
			assert.True(t, math.IsNaN(got.Data[i]))
			continue
		}
		assert.Equal(t, want.Data[i], got.Data[i])
	}
}

func TestSaveModelRequiresTraining(t *testing.T) {
	dir, ref, fake, labels := demScene(t)
	builder := features.NewBuilder(dir, ref, fake)
	c := NewExtentClassifier(builder, labelsFor(labels, 2013), smallForestConfig())

	err := c.SaveModel(filepath.Join(t.TempDir(), "model"))
	assert.ErrorIs(t, err, ErrModelNotTrained)
}

func TestFlattenMarksUndefinedRows(t *testing.T) {
	ref := refGrid(2, 2)
	plane := []float64{1, math.NaN(), 3, 4}
	stack := &features.Stack{Names: []string{"dem"}, Planes: [][]float64{plane}, Grid: ref}

	rows, valid := Flatten(stack)
	require.Len(t, rows, 4)
	assert.Equal(t, []bool{true, false, true, true}, valid)
	assert.Equal(t, []float64{3}, rows[2])
}

func TestTrainSingleClassScene(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dem.tif"), nil, 0644))
	ref := refGrid(3, 3)
	dem := ref.Clone()
	labels := ref.Clone()
	for i := range dem.Data {
		dem.Data[i] = float64(i)
		labels.Data[i] = 1
	}
	fake := &fakeAligner{grids: map[string]*raster.Grid{"dem.tif": dem}}
	builder := features.NewBuilder(dir, ref, fake)
	c := NewExtentClassifier(builder, labelsFor(labels, 2013), smallForestConfig())

	require.NoError(t, c.Train([]int{2013}))
	out, err := c.Predict(2030, "")
	require.NoError(t, err)
	for i := range out.Data {
		assert.Equal(t, 1.0, out.Data[i])
	}
}
