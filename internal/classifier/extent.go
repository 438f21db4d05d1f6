package classifier

import (
	"errors"
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/lake-guardian/lake-rise-research-cli/internal/features"
	"github.com/lake-guardian/lake-rise-research-cli/internal/properties"
	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

var (
	// ErrModelNotTrained guards prediction before a model exists.
	ErrModelNotTrained = errors.New("no trained or loaded model")
	// ErrNoTrainingYears means not one requested year had a usable label
	// raster; an empty model would be meaningless.
	ErrNoTrainingYears = errors.New("no training years with usable labels")
)

// LabelLoader fetches the {0,1,nodata} label raster for a year. Absence is
// reported through the error; the trainer treats it as a skippable
// condition, not a failure.
type LabelLoader func(year int) (*raster.Grid, error)

// ExtentClassifier owns the trained model and the train/predict loop over
// per-pixel feature stacks. Per-pixel water/land is treated as a plain
// tabular problem; no spatial modeling happens beyond the feature planes.
type ExtentClassifier struct {
	builder *features.Builder
	labels  LabelLoader
	cfg     properties.ForestConfig
	forest  *Forest
	log     *zap.SugaredLogger
}

func NewExtentClassifier(builder *features.Builder, labels LabelLoader, cfg properties.ForestConfig) *ExtentClassifier {
	return &ExtentClassifier{
		builder: builder,
		labels:  labels,
		cfg:     cfg,
		log:     zap.S().Named("classifier"),
	}
}

// Train fits the forest on every requested year that has both a feature
// stack and a label raster. Years without a label are skipped with a
// warning; a year whose stack cannot be built is fatal.
func (c *ExtentClassifier) Train(years []int) error {
	var x [][]float64
	var y []int
	contributed := 0

	for _, year := range years {
		stack, err := c.builder.Build(year)
		if err != nil {
			return fmt.Errorf("failed to build feature stack for training year %d: %w", year, err)
		}

		labels, err := c.labels(year)
		if err != nil {
			c.log.Warnf("no label found for %d, skipping: %v", year, err)
			continue
		}
		if !labels.SameGrid(stack.Grid) {
			return fmt.Errorf("label raster for year %d: %w", year,
				raster.ShapeMismatch(labels.Width, labels.Height, stack.Grid.Width, stack.Grid.Height))
		}

		rows, valid := Flatten(stack)
		bar := progressbar.Default(int64(len(rows)), fmt.Sprintf("Collecting training pixels for %d", year))
		added := 0
		for i, row := range rows {
			bar.Add(1)
			if !valid[i] {
				continue
			}
			label := labels.Data[i]
			if labels.IsNoData(label) {
				continue
			}
			x = append(x, row)
			y = append(y, int(label))
			added++
		}
		bar.Finish()
		if added == 0 {
			c.log.Warnf("year %d contributed no valid pixels, skipping", year)
			continue
		}
		c.log.Infof("year %d contributed %d pixels across %d features", year, added, len(stack.Names))
		contributed++
	}

	if contributed == 0 {
		return fmt.Errorf("%w (requested %v)", ErrNoTrainingYears, years)
	}

	counts := map[int]int{}
	for _, label := range y {
		counts[label]++
	}
	c.log.Infof("training dataset size: %dx%d, label counts: %v", len(x), len(x[0]), counts)

	forest, err := TrainForest(x, y, c.cfg)
	if err != nil {
		return err
	}
	c.forest = forest
	c.log.Info("model training complete")
	return nil
}

// Predict classifies every fully defined pixel of the year's feature stack
// and returns the result on the stack's grid, NaN where any feature was
// undefined. When outPath is non-empty the raster is also persisted as
// 32 bit float.
func (c *ExtentClassifier) Predict(year int, outPath string) (*raster.Grid, error) {
	if c.forest == nil {
		return nil, fmt.Errorf("cannot predict year %d: %w", year, ErrModelNotTrained)
	}

	stack, err := c.builder.Build(year)
	if err != nil {
		return nil, fmt.Errorf("failed to build feature stack for prediction year %d: %w", year, err)
	}
	if len(stack.Names) != c.forest.NumFeatures {
		return nil, fmt.Errorf("prediction stack for year %d has %d features, model expects %d",
			year, len(stack.Names), c.forest.NumFeatures)
	}

	rows, valid := Flatten(stack)
	var definedRows [][]float64
	var definedIdx []int
	for i, row := range rows {
		if valid[i] {
			definedRows = append(definedRows, row)
			definedIdx = append(definedIdx, i)
		}
	}

	out := raster.NewGrid(stack.Grid.Width, stack.Grid.Height, stack.Grid.Transform, stack.Grid.EPSG)
	for i := range out.Data {
		out.Data[i] = math.NaN()
	}
	classes := c.forest.PredictBatch(definedRows, c.cfg.Workers)
	for i, idx := range definedIdx {
		out.Data[idx] = float64(classes[i])
	}
	c.log.Infof("predicted %d of %d pixels for year %d", len(definedIdx), len(rows), year)

	if outPath != "" {
		if err := raster.Write(outPath, out, godal.Float32); err != nil {
			return nil, err
		}
		c.log.Infof("saved prediction to %s", outPath)
	}
	return out, nil
}

// SaveModel persists the trained forest as an opaque artifact.
func (c *ExtentClassifier) SaveModel(path string) error {
	if c.forest == nil {
		return ErrModelNotTrained
	}
	if err := c.forest.Save(path); err != nil {
		return err
	}
	c.log.Infof("model saved to %s", path)
	return nil
}

// LoadModel restores a previously saved forest.
func (c *ExtentClassifier) LoadModel(path string) error {
	forest, err := LoadForest(path)
	if err != nil {
		return err
	}
	c.forest = forest
	c.log.Infof("loaded existing model from %s", path)
	return nil
}

// Flatten turns a stack into one row per pixel plus a validity flag: a row
// is valid iff no feature is NaN at that pixel.
func Flatten(stack *features.Stack) ([][]float64, []bool) {
	pixels := stack.Grid.Width * stack.Grid.Height
	rows := make([][]float64, pixels)
	valid := make([]bool, pixels)
	for i := 0; i < pixels; i++ {
		row := make([]float64, len(stack.Planes))
		ok := true
		for p, plane := range stack.Planes {
			v := plane[i]
			if math.IsNaN(v) {
				ok = false
			}
			row[p] = v
		}
		rows[i] = row
		valid[i] = ok
	}
	return rows, valid
}
