package output

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
)

// CreateMaskPreview renders a binary water mask as a PNG: water blue, land
// white, undefined pixels light gray.
func CreateMaskPreview(grid *raster.Grid, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create preview folder: %w", err)
	}

	dc := gg.NewContext(grid.Width, grid.Height)
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			v := grid.At(x, y)
			switch {
			case grid.IsNoData(v):
				dc.SetRGB(0.8, 0.8, 0.8)
			case v > 0.5:
				dc.SetRGB(0.13, 0.42, 0.85)
			default:
				dc.SetRGB(1, 1, 1)
			}
			dc.SetPixel(x, y)
		}
	}

	if err := dc.SavePNG(outPath); err != nil {
		return fmt.Errorf("failed to save preview image: %w", err)
	}
	return nil
}

// CreatePredictionPreview renders a predicted extent raster: water blue,
// land sand, NaN transparent.
func CreatePredictionPreview(grid *raster.Grid, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create preview folder: %w", err)
	}

	dc := gg.NewContext(grid.Width, grid.Height)
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			v := grid.At(x, y)
			switch {
			case math.IsNaN(v):
				dc.SetRGBA(0, 0, 0, 0)
			case v > 0.5:
				dc.SetRGB(0.13, 0.42, 0.85)
			default:
				dc.SetRGB(0.93, 0.87, 0.73)
			}
			dc.SetPixel(x, y)
		}
	}

	if err := dc.SavePNG(outPath); err != nil {
		return fmt.Errorf("failed to save preview image: %w", err)
	}
	return nil
}
