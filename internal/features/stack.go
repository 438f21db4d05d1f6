package features

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"go.uber.org/zap"
)

// ErrNoFeatures marks a year for which the feature directory yields zero
// usable predictor rasters. Assembling an empty stack would silently train
// or predict on nothing, so this is fatal for that year.
var ErrNoFeatures = errors.New("no features")

// Stack is the ordered set of co-registered predictor planes for one target
// year. Every plane shares the reference grid; undefined pixels are NaN.
// The order is a stable sort by feature name, so a model trained on one
// stack indexes columns identically at inference.
type Stack struct {
	Names  []string
	Planes [][]float64
	Grid   *raster.Grid
}

// Aligner is the coregistration dependency of the builder, satisfied by
// raster.Aligner.
type Aligner interface {
	Align(srcPath string, ref *raster.Grid) (*raster.Grid, string, error)
}

// featureFile is the structured identity of one candidate raster, parsed
// once when the directory is scanned. Downstream code never re-derives
// metadata from the file name.
type featureFile struct {
	name string
	path string
	year int // 0 for static features
}

var yearToken = regexp.MustCompile(`(19|20)\d{2}`)

// Builder assembles feature stacks from a directory of candidate rasters,
// aligning each candidate onto the reference grid through the aligner's
// cache.
type Builder struct {
	dir     string
	ref     *raster.Grid
	aligner Aligner
	log     *zap.SugaredLogger
}

func NewBuilder(dir string, ref *raster.Grid, a Aligner) *Builder {
	return &Builder{
		dir:     dir,
		ref:     ref,
		aligner: a,
		log:     zap.S().Named("features"),
	}
}

// Grid returns the reference grid all stacks are built on.
func (b *Builder) Grid() *raster.Grid {
	return b.ref
}

// Build returns the feature stack for a target year: static features plus
// the dynamic features carrying that year token, aligned and sorted by
// name.
func (b *Builder) Build(year int) (*Stack, error) {
	files, err := b.scan()
	if err != nil {
		return nil, err
	}

	stack := &Stack{Grid: b.ref}
	for _, f := range files {
		if f.year != 0 && f.year != year {
			continue
		}
		grid, _, err := b.aligner.Align(f.path, b.ref)
		if err != nil {
			return nil, fmt.Errorf("failed to align feature %s: %w", f.name, err)
		}
		if !grid.SameGrid(b.ref) {
			return nil, fmt.Errorf("feature %s: %w", f.name,
				raster.ShapeMismatch(grid.Width, grid.Height, b.ref.Width, b.ref.Height))
		}
		stack.Names = append(stack.Names, f.name)
		stack.Planes = append(stack.Planes, plane(grid))
		if f.year == 0 {
			b.log.Infof("added static feature: %s", f.name)
		} else {
			b.log.Infof("added year feature: %s", f.name)
		}
	}

	if len(stack.Planes) == 0 {
		return nil, fmt.Errorf("%w for year %d in %s", ErrNoFeatures, year, b.dir)
	}
	return stack, nil
}

// scan lists candidate rasters sorted by name, skipping alignment cache
// artifacts, and parses each name's year token once.
func (b *Builder) scan() ([]featureFile, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature directory %s: %w", b.dir, err)
	}

	var files []featureFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".tif") {
			continue
		}
		if raster.IsAlignedName(name) {
			continue
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		f := featureFile{name: base, path: filepath.Join(b.dir, name)}
		if token := yearToken.FindString(base); token != "" {
			f.year, _ = strconv.Atoi(token)
		}
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func plane(grid *raster.Grid) []float64 {
	out := make([]float64, len(grid.Data))
	for i, v := range grid.Data {
		if grid.IsNoData(v) {
			out[i] = math.NaN()
		} else {
			out[i] = v
		}
	}
	return out
}
