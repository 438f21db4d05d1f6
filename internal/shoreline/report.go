package shoreline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb/geojson"
)

// ChangeRecord is one row of the shoreline change report.
type ChangeRecord struct {
	FromYear      int     `csv:"from_year"`
	ToYear        int     `csv:"to_year"`
	FromAreaKm2   float64 `csv:"from_area_km2"`
	ToAreaKm2     float64 `csv:"to_area_km2"`
	AreaDeltaKm2  float64 `csv:"area_delta_km2"`
	GrowthAreaKm2 float64 `csv:"growth_area_km2"`
	MeanShiftM    float64 `csv:"mean_shoreline_shift_m"`
}

// WriteReport stores the change records as CSV under the results directory.
func WriteReport(path string, records []ChangeRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file %s: %w", path, err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&records, file); err != nil {
		return fmt.Errorf("failed to write shoreline report %s: %w", path, err)
	}
	return nil
}

// WriteGrowth stores a growth region as a single-feature GeoJSON layer.
func WriteGrowth(path string, region GrowthRegion) error {
	feature := geojson.NewFeature(region.Geometry)
	feature.Properties["from_year"] = region.FromYear
	feature.Properties["to_year"] = region.ToYear
	feature.Properties["area_km2"] = region.AreaKm2
	feature.Properties["epsg"] = region.EPSG

	data, err := json.Marshal(feature)
	if err != nil {
		return fmt.Errorf("failed to encode growth region: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write growth region to %s: %w", path, err)
	}
	return nil
}
