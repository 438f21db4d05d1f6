package water

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Extents are persisted as single-feature GeoJSON layers carrying the year,
// area and CRS as feature properties, so the prediction stage can run in a
// separate process from the extraction stage.

func WriteExtent(path string, extent Extent) error {
	feature := geojson.NewFeature(extent.Geometry)
	feature.Properties["year"] = extent.Year
	feature.Properties["area_km2"] = extent.AreaKm2
	feature.Properties["epsg"] = extent.EPSG

	data, err := json.Marshal(feature)
	if err != nil {
		return fmt.Errorf("failed to encode extent feature: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write extent to %s: %w", path, err)
	}
	return nil
}

func ReadExtent(path string) (Extent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Extent{}, fmt.Errorf("failed to read extent from %s: %w", path, err)
	}
	feature, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return Extent{}, fmt.Errorf("failed to decode extent feature from %s: %w", path, err)
	}

	var mp orb.MultiPolygon
	switch g := feature.Geometry.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{g}
	case orb.MultiPolygon:
		mp = g
	default:
		return Extent{}, fmt.Errorf("extent file %s holds %s, want polygon", path, feature.Geometry.GeoJSONType())
	}

	extent := Extent{Geometry: mp}
	if v, ok := feature.Properties["year"].(float64); ok {
		extent.Year = int(v)
	}
	if v, ok := feature.Properties["area_km2"].(float64); ok {
		extent.AreaKm2 = v
	}
	if v, ok := feature.Properties["epsg"].(float64); ok {
		extent.EPSG = int(v)
	}
	return extent, nil
}
