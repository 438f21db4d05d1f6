package raster

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/airbusgeo/godal"
)

// Read loads the first band of a GeoTIFF into a Grid.
func Read(path string) (*Grid, error) {
	return ReadBand(path, 1)
}

// ReadBand loads one band (1-based) of a GeoTIFF into a Grid.
func ReadBand(path string, index int) (*Grid, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raster %s: %w", path, err)
	}
	defer ds.Close()

	structure := ds.Structure()
	width, height := structure.SizeX, structure.SizeY

	transform, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to read geotransform of %s: %w", path, err)
	}

	grid := NewGrid(width, height, transform, 0)

	sr := ds.SpatialRef()
	if sr != nil {
		if code, err := strconv.Atoi(sr.AuthorityCode("")); err == nil {
			grid.EPSG = code
		}
		sr.Close()
	}

	bands := ds.Bands()
	if index < 1 || index > len(bands) {
		return nil, fmt.Errorf("raster %s has no band %d (%d bands)", path, index, len(bands))
	}
	band := bands[index-1]
	if nodata, ok := band.NoData(); ok {
		grid.NoData = nodata
		grid.HasNoData = true
	}
	if err := band.Read(0, 0, grid.Data, width, height); err != nil {
		return nil, fmt.Errorf("failed to read band %d of %s: %w", index, path, err)
	}
	return grid, nil
}

// Write stores a Grid as a single band LZW compressed GeoTIFF. Masks go out
// as 8 bit, everything derived as 32 bit float; NaN samples are written as
// the grid's nodata value when one is set.
func Write(path string, grid *Grid, dtype godal.DataType) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	ds, err := godal.Create(godal.GTiff, path, 1, dtype, grid.Width, grid.Height,
		godal.CreationOption("COMPRESS=LZW"))
	if err != nil {
		return fmt.Errorf("failed to create raster %s: %w", path, err)
	}
	defer ds.Close()

	if err := ds.SetGeoTransform(grid.Transform); err != nil {
		return fmt.Errorf("failed to set geotransform on %s: %w", path, err)
	}
	if grid.EPSG != 0 {
		sr, err := godal.NewSpatialRefFromEPSG(grid.EPSG)
		if err != nil {
			return fmt.Errorf("failed to create spatial ref EPSG:%d: %w", grid.EPSG, err)
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return fmt.Errorf("failed to set spatial ref on %s: %w", path, err)
		}
	}

	band := ds.Bands()[0]
	data := grid.Data
	if grid.HasNoData {
		if err := band.SetNoData(grid.NoData); err != nil {
			return fmt.Errorf("failed to set nodata on %s: %w", path, err)
		}
		data = make([]float64, len(grid.Data))
		for i, v := range grid.Data {
			if math.IsNaN(v) {
				data[i] = grid.NoData
			} else {
				data[i] = v
			}
		}
	}
	if err := band.Write(0, 0, data, grid.Width, grid.Height); err != nil {
		return fmt.Errorf("failed to write band 1 of %s: %w", path, err)
	}
	return nil
}

// IsGeographic reports whether an EPSG code names a geographic (degree
// based) CRS. Area and distance math must never run in one.
func IsGeographic(epsg int) bool {
	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return false
	}
	defer sr.Close()
	return sr.Geographic()
}
