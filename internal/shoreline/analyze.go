package shoreline

import (
	"fmt"

	"github.com/lake-guardian/lake-rise-research-cli/internal/water"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"
)

// Analyzer quantifies shoreline change between dated lake extents. All of
// its operations run in one projected CRS; extents expressed elsewhere are
// reprojected on demand.
type Analyzer struct {
	epsg int
	log  *zap.SugaredLogger
}

func NewAnalyzer(epsg int) *Analyzer {
	return &Analyzer{
		epsg: epsg,
		log:  zap.S().Named("shoreline"),
	}
}

// GrowthRegion is the ground gained by the lake between two years: the
// geometric difference later minus earlier.
type GrowthRegion struct {
	Geometry orb.MultiPolygon
	EPSG     int
	AreaKm2  float64
	FromYear int
	ToYear   int
}

// AreaDelta returns the signed area change in km², later minus earlier.
func (a *Analyzer) AreaDelta(earlier, later water.Extent) float64 {
	return later.AreaKm2 - earlier.AreaKm2
}

// Growth computes the difference polygon later − earlier with its area.
func (a *Analyzer) Growth(later, earlier water.Extent) (GrowthRegion, error) {
	laterGeom, err := a.project(later)
	if err != nil {
		return GrowthRegion{}, err
	}
	earlierGeom, err := a.project(earlier)
	if err != nil {
		return GrowthRegion{}, err
	}

	region := GrowthRegion{
		EPSG:     a.epsg,
		FromYear: earlier.Year,
		ToYear:   later.Year,
	}
	if len(laterGeom) == 0 {
		return region, nil
	}
	if len(earlierGeom) == 0 {
		region.Geometry = laterGeom
		region.AreaKm2 = water.AreaKm2(laterGeom)
		return region, nil
	}

	diff, err := water.Difference(laterGeom, earlierGeom, a.epsg)
	if err != nil {
		return GrowthRegion{}, fmt.Errorf("failed to compute growth region %d-%d: %w",
			earlier.Year, later.Year, err)
	}
	region.Geometry = diff
	region.AreaKm2 = water.AreaKm2(diff)
	return region, nil
}

// BoundaryDistance reports the average shoreline shift between two extents:
// the mean over all boundary vertices of moved of the minimum distance to
// ref's boundary. A typical-shift summary, not a worst case Hausdorff
// distance.
func (a *Analyzer) BoundaryDistance(ref, moved water.Extent) (float64, error) {
	refGeom, err := a.project(ref)
	if err != nil {
		return 0, err
	}
	movedGeom, err := a.project(moved)
	if err != nil {
		return 0, err
	}
	if len(refGeom) == 0 || len(movedGeom) == 0 {
		return 0, fmt.Errorf("boundary distance needs two non-empty extents (years %d and %d)",
			ref.Year, moved.Year)
	}

	boundary := rings(refGeom)
	sum, count := 0.0, 0
	for _, ring := range rings(movedGeom) {
		for _, vertex := range ring[:len(ring)-1] { // closing point repeats
			sum += minDistance(boundary, vertex)
			count++
		}
	}
	if count == 0 {
		return 0, fmt.Errorf("extent for year %d has no boundary vertices", moved.Year)
	}
	return sum / float64(count), nil
}

func (a *Analyzer) project(extent water.Extent) (orb.MultiPolygon, error) {
	if extent.Empty() || extent.EPSG == a.epsg {
		return extent.Geometry, nil
	}
	reprojected, err := water.Reproject(extent.Geometry, extent.EPSG, a.epsg)
	if err != nil {
		return nil, fmt.Errorf("failed to reproject extent for year %d: %w", extent.Year, err)
	}
	return reprojected, nil
}

func rings(mp orb.MultiPolygon) []orb.LineString {
	var out []orb.LineString
	for _, poly := range mp {
		for _, ring := range poly {
			out = append(out, orb.LineString(ring))
		}
	}
	return out
}

func minDistance(boundary []orb.LineString, p orb.Point) float64 {
	min := -1.0
	for _, ls := range boundary {
		d := planar.DistanceFrom(ls, p)
		if min < 0 || d < min {
			min = d
		}
	}
	return min
}
