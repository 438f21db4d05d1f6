package mndwi

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"go.uber.org/zap"
)

// ErrBandNotFound means a named band exists neither in the file's band
// descriptions nor in its file name.
var ErrBandNotFound = errors.New("band not found")

// Band names as they appear in Landsat Collection 2 band descriptions.
const (
	GreenBand = "green"
	SwirBand  = "swir16"
)

// Calculator derives the modified normalized difference water index, the
// green/shortwave-infrared ratio that separates water from land, from raw
// multiband scenes.
type Calculator struct {
	greenBand string
	swirBand  string
	log       *zap.SugaredLogger
}

func NewCalculator() *Calculator {
	return &Calculator{
		greenBand: GreenBand,
		swirBand:  SwirBand,
		log:       zap.S().Named("mndwi"),
	}
}

// FindBand resolves a band name to its 1-based index by case-insensitive
// substring match against the file's band descriptions. Single-band files
// named after the band are accepted as a fallback.
func FindBand(path, name string) (int, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open scene %s: %w", path, err)
	}
	defer ds.Close()

	want := strings.ToLower(name)
	for i, band := range ds.Bands() {
		if strings.Contains(strings.ToLower(band.Description()), want) {
			return i + 1, nil
		}
	}
	if strings.Contains(strings.ToLower(filepath.Base(path)), want) {
		return 1, nil
	}
	return 0, fmt.Errorf("band %q in %s: %w", name, path, ErrBandNotFound)
}

// Compute evaluates (green-swir)/(green+swir) per pixel. Pixels where
// either input is undefined, or the denominator is zero, come out NaN.
func Compute(green, swir *raster.Grid) (*raster.Grid, error) {
	if !green.SameGrid(swir) {
		return nil, fmt.Errorf("green and swir bands: %w",
			raster.ShapeMismatch(green.Width, green.Height, swir.Width, swir.Height))
	}

	out := green.Clone()
	out.HasNoData = false
	out.NoData = 0
	for i := range out.Data {
		g, s := green.Data[i], swir.Data[i]
		if green.IsNoData(g) || swir.IsNoData(s) || g+s == 0 {
			out.Data[i] = math.NaN()
			continue
		}
		out.Data[i] = (g - s) / (g + s)
	}
	return out, nil
}

// Run computes the index for one scene and writes it as a 32 bit float
// raster to outPath.
func (c *Calculator) Run(scenePath, outPath string) error {
	greenIdx, err := FindBand(scenePath, c.greenBand)
	if err != nil {
		return err
	}
	swirIdx, err := FindBand(scenePath, c.swirBand)
	if err != nil {
		return err
	}

	green, err := raster.ReadBand(scenePath, greenIdx)
	if err != nil {
		return err
	}
	swir, err := raster.ReadBand(scenePath, swirIdx)
	if err != nil {
		return err
	}

	index, err := Compute(green, swir)
	if err != nil {
		return fmt.Errorf("scene %s: %w", scenePath, err)
	}
	if err := raster.Write(outPath, index, godal.Float32); err != nil {
		return err
	}
	c.log.Infof("MNDWI saved to %s", outPath)
	return nil
}
