package water

import (
	"math"

	"github.com/lake-guardian/lake-rise-research-cli/internal/properties"
	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
	"go.uber.org/zap"
)

// Extractor turns a water index raster into a binary mask and one cleaned
// lake extent polygon.
type Extractor struct {
	cfg properties.ExtractionConfig
	log *zap.SugaredLogger
}

func NewExtractor(cfg properties.ExtractionConfig) *Extractor {
	return &Extractor{
		cfg: cfg,
		log: zap.S().Named("water"),
	}
}

// Extract thresholds the index raster, optionally repairs gap stripes,
// vectorizes the mask and reduces the traced polygons to a single simplified
// extent with its area in km². An index raster with no pixel above the
// threshold yields the mask plus a valid empty extent, not an error.
func (e *Extractor) Extract(index *raster.Grid, year int) (*Mask, Extent, error) {
	mask := Threshold(index, e.cfg.Threshold)
	if e.cfg.GapFill {
		e.log.Infof("filling gaps for year %d (disk radius %d)", year, e.cfg.GapFillRadius)
		mask.FillGaps(e.cfg.GapFillRadius, e.cfg.MinObjectPixels)
	}

	polys, err := mask.Polygons(e.cfg.Connectivity)
	if err != nil {
		return nil, Extent{}, err
	}
	if len(polys) == 0 {
		e.log.Warnf("no water polygons found above threshold %f for year %d", e.cfg.Threshold, year)
		return mask, Extent{EPSG: e.workingEPSG(index.EPSG), Year: year}, nil
	}

	extent, err := e.clean(polys, index.EPSG, year)
	if err != nil {
		return nil, Extent{}, err
	}
	return mask, extent, nil
}

func (e *Extractor) workingEPSG(srcEPSG int) int {
	if raster.IsGeographic(srcEPSG) {
		return e.cfg.TargetEPSG
	}
	return srcEPSG
}

// clean runs the fixed geometry cleanup order: dissolve, reproject to a
// metric CRS if needed, drop speckle parts, repair, simplify, re-dissolve
// with a buffer-unbuffer pass, compute the final area.
func (e *Extractor) clean(polys []orb.Polygon, srcEPSG, year int) (Extent, error) {
	mp, err := Dissolve(polys, srcEPSG)
	if err != nil {
		return Extent{}, err
	}

	epsg := srcEPSG
	if raster.IsGeographic(epsg) {
		mp, err = Reproject(mp, epsg, e.cfg.TargetEPSG)
		if err != nil {
			return Extent{}, err
		}
		epsg = e.cfg.TargetEPSG
	}

	if e.cfg.MinPartAreaM2 > 0 {
		var kept orb.MultiPolygon
		for _, part := range mp {
			if math.Abs(planar.Area(part)) >= e.cfg.MinPartAreaM2 {
				kept = append(kept, part)
			}
		}
		mp = kept
		if len(mp) == 0 {
			e.log.Warnf("all polygon parts below %f m² for year %d", e.cfg.MinPartAreaM2, year)
			return Extent{EPSG: epsg, Year: year}, nil
		}
	}

	mp, err = Repair(mp, epsg)
	if err != nil {
		return Extent{}, err
	}
	if len(mp) == 0 {
		e.log.Warnf("geometry for year %d still invalid after repair, dropping", year)
		return Extent{EPSG: epsg, Year: year}, nil
	}

	if e.cfg.SimplifyToleranceM > 0 {
		mp = simplify.DouglasPeucker(e.cfg.SimplifyToleranceM).Simplify(mp.Clone()).(orb.MultiPolygon)
	}

	if e.cfg.SmoothBufferM > 0 {
		mp, err = BufferUnbuffer(mp, epsg, e.cfg.SmoothBufferM)
	} else if len(mp) > 1 {
		mp, err = Dissolve(mp, epsg)
	}
	if err != nil {
		return Extent{}, err
	}

	return Extent{
		Geometry: mp,
		EPSG:     epsg,
		AreaKm2:  AreaKm2(mp),
		Year:     year,
	}, nil
}

// AreaKm2 returns the unsigned area of a multipolygon expressed in a metric
// CRS, in km².
func AreaKm2(mp orb.MultiPolygon) float64 {
	return math.Abs(planar.Area(mp)) / 1e6
}
