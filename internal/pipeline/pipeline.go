package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/lake-guardian/lake-rise-research-cli/internal/catalog"
	"github.com/lake-guardian/lake-rise-research-cli/internal/classifier"
	"github.com/lake-guardian/lake-rise-research-cli/internal/features"
	"github.com/lake-guardian/lake-rise-research-cli/internal/mndwi"
	"github.com/lake-guardian/lake-rise-research-cli/internal/properties"
	"github.com/lake-guardian/lake-rise-research-cli/internal/raster"
	"github.com/lake-guardian/lake-rise-research-cli/internal/shoreline"
	"github.com/lake-guardian/lake-rise-research-cli/internal/utils"
	"github.com/lake-guardian/lake-rise-research-cli/internal/water"
	"github.com/lake-guardian/lake-rise-research-cli/output"
	"go.uber.org/zap"
)

// Lake Baringo area of interest, WGS84 lon/lat.
var aoiBBox = [4]float64{35.95, 0.45, 36.20, 0.80}

// Pipeline wires the whole lake rise workflow: scene download, water index
// computation, extent extraction with shoreline change analysis, and the
// train/predict loop for the future extent.
type Pipeline struct {
	years          []int
	gapFillYears   map[int]bool
	predictionYear int
	extraction     properties.ExtractionConfig
	align          properties.AlignConfig
	forest         properties.ForestConfig
	calculator     *mndwi.Calculator
	log            *zap.SugaredLogger
}

func New() *Pipeline {
	gapFill := map[int]bool{}
	for _, year := range properties.GapFillYears() {
		gapFill[year] = true
	}
	return &Pipeline{
		years:          utils.SortYears(properties.Years(), true),
		gapFillYears:   gapFill,
		predictionYear: properties.PredictionYear(),
		extraction:     properties.DefaultExtraction(),
		align:          properties.DefaultAlign(),
		forest:         properties.DefaultForest(),
		calculator:     mndwi.NewCalculator(),
		log:            zap.S().Named("pipeline"),
	}
}

func indexPath(year int) string {
	return filepath.Join(properties.ProcessedPath(), fmt.Sprintf("%d_mndwi.tif", year))
}

func maskPath(year int) string {
	return filepath.Join(properties.MasksPath(), fmt.Sprintf("%d_mndwi_watermask.tif", year))
}

func extentPath(year int) string {
	return filepath.Join(properties.ResultsPath(), fmt.Sprintf("lake_%d.geojson", year))
}

func previewPath(year int) string {
	return filepath.Join(properties.ResultsPath(), "previews", fmt.Sprintf("%d.png", year))
}

func distancePath(year int) string {
	return filepath.Join(properties.FeaturesPath(), fmt.Sprintf("distance_from_shoreline_%d.tif", year))
}

func predictionPath(year int) string {
	return filepath.Join(properties.ResultsPath(), fmt.Sprintf("prediction_%d.tif", year))
}

// RunDownload fetches one scene per reference year. Catalog failures
// degrade to "no data for that year" and never abort the stage.
func (p *Pipeline) RunDownload(ctx context.Context) error {
	client, err := catalog.NewClient(ctx, aoiBBox)
	if err != nil {
		return err
	}

	downloaded := 0
	for _, year := range p.years {
		if _, err := client.DownloadScene(ctx, year); err != nil {
			if errors.Is(err, catalog.ErrNoScene) {
				p.log.Warnf("no scene available for year %d", year)
			} else {
				p.log.Warnf("failed to download scene for year %d: %v", year, err)
			}
			continue
		}
		downloaded++
	}
	p.log.Infof("data download complete for %d of %d years", downloaded, len(p.years))
	return nil
}

// RunMNDWI computes the water index raster for every year with a scene on
// disk.
func (p *Pipeline) RunMNDWI() error {
	for _, year := range p.years {
		scenePath := catalog.ScenePath(year)
		if _, err := os.Stat(scenePath); err != nil {
			p.log.Warnf("no scene on disk for year %d, skipping", year)
			continue
		}
		if err := p.calculator.Run(scenePath, indexPath(year)); err != nil {
			return fmt.Errorf("mndwi for year %d: %w", year, err)
		}
	}
	return nil
}

// RunExtent extracts per-year masks and extents, then derives the shoreline
// change report, the growth region and the mask timelapse.
func (p *Pipeline) RunExtent() error {
	extents := map[int]water.Extent{}
	var previews []string

	for _, year := range p.years {
		index, err := raster.Read(indexPath(year))
		if err != nil {
			p.log.Warnf("no index raster for year %d, skipping: %v", year, err)
			continue
		}

		cfg := p.extraction
		cfg.GapFill = p.gapFillYears[year]
		mask, extent, err := water.NewExtractor(cfg).Extract(index, year)
		if err != nil {
			return fmt.Errorf("extraction for year %d: %w", year, err)
		}

		if err := raster.Write(maskPath(year), mask.ToGrid(), godal.Byte); err != nil {
			return err
		}
		if err := water.WriteExtent(extentPath(year), extent); err != nil {
			return err
		}
		if err := output.CreateMaskPreview(mask.ToGrid(), previewPath(year)); err != nil {
			return err
		}
		previews = append(previews, previewPath(year))
		extents[year] = extent
		p.log.Infof("year %d: lake area %.3f km2", year, extent.AreaKm2)
	}

	if err := p.analyzeShoreline(extents); err != nil {
		return err
	}

	if len(previews) > 1 {
		timelapsePath := filepath.Join(properties.ResultsPath(), "lake_timelapse.avi")
		if err := output.CreateTimelapse(previews, timelapsePath); err != nil {
			return err
		}
		p.log.Infof("saved mask timelapse to %s", timelapsePath)
	}
	return nil
}

// analyzeShoreline compares consecutive extents and writes the change
// report plus the overall first-to-last growth region.
func (p *Pipeline) analyzeShoreline(extents map[int]water.Extent) error {
	years := utils.GetSortedYears(extents, true)
	var contributing []int
	for _, year := range years {
		if !extents[year].Empty() {
			contributing = append(contributing, year)
		}
	}
	if len(contributing) < 2 {
		p.log.Warnf("need at least two non-empty extents for shoreline analysis, have %d", len(contributing))
		return nil
	}

	analyzer := shoreline.NewAnalyzer(p.extraction.TargetEPSG)
	var records []shoreline.ChangeRecord
	for i := 1; i < len(contributing); i++ {
		from, to := contributing[i-1], contributing[i]
		earlier, later := extents[from], extents[to]

		growth, err := analyzer.Growth(later, earlier)
		if err != nil {
			return fmt.Errorf("growth region %d-%d: %w", from, to, err)
		}
		shift, err := analyzer.BoundaryDistance(earlier, later)
		if err != nil {
			return fmt.Errorf("boundary distance %d-%d: %w", from, to, err)
		}

		delta := analyzer.AreaDelta(earlier, later)
		p.log.Infof("lake extent changed %.3f km2 between %d and %d", delta, from, to)
		records = append(records, shoreline.ChangeRecord{
			FromYear:      from,
			ToYear:        to,
			FromAreaKm2:   earlier.AreaKm2,
			ToAreaKm2:     later.AreaKm2,
			AreaDeltaKm2:  delta,
			GrowthAreaKm2: growth.AreaKm2,
			MeanShiftM:    shift,
		})
	}

	reportPath := filepath.Join(properties.ResultsPath(), "shoreline_report.csv")
	if err := shoreline.WriteReport(reportPath, records); err != nil {
		return err
	}
	p.log.Infof("saved shoreline report to %s", reportPath)

	first, last := contributing[0], contributing[len(contributing)-1]
	overall, err := analyzer.Growth(extents[last], extents[first])
	if err != nil {
		return fmt.Errorf("growth region %d-%d: %w", first, last, err)
	}
	growthPath := filepath.Join(properties.ResultsPath(), "growth_area.geojson")
	if err := shoreline.WriteGrowth(growthPath, overall); err != nil {
		return err
	}
	p.log.Infof("lake expanded by %.3f km2 between %d and %d", overall.AreaKm2, first, last)
	return nil
}

// RunPredict builds the per-year feature stacks, trains the classifier on
// the reference years and predicts the target year's extent.
func (p *Pipeline) RunPredict() error {
	ref, err := p.referenceGrid()
	if err != nil {
		return err
	}

	if err := p.buildDistanceFeatures(ref); err != nil {
		return err
	}

	aligner := raster.NewAligner(properties.FeaturesPath(), p.align)
	builder := features.NewBuilder(properties.FeaturesPath(), ref, aligner)
	c := classifier.NewExtentClassifier(builder, labelLoader, p.forest)

	if err := c.Train(p.years); err != nil {
		return err
	}
	if err := c.SaveModel(properties.ModelPath()); err != nil {
		return err
	}

	prediction, err := c.Predict(p.predictionYear, predictionPath(p.predictionYear))
	if err != nil {
		return err
	}
	previewOut := filepath.Join(properties.ResultsPath(), "previews", fmt.Sprintf("prediction_%d.png", p.predictionYear))
	if err := output.CreatePredictionPreview(prediction, previewOut); err != nil {
		return err
	}
	p.log.Infof("prediction for %d complete", p.predictionYear)
	return nil
}

// referenceGrid is the pixel grid every feature is aligned onto: the mask
// of the most recent reference year.
func (p *Pipeline) referenceGrid() (*raster.Grid, error) {
	latest := p.years[len(p.years)-1]
	ref, err := raster.Read(maskPath(latest))
	if err != nil {
		return nil, fmt.Errorf("reference mask for year %d: %w", latest, err)
	}
	return ref, nil
}

// buildDistanceFeatures writes a distance-from-shoreline raster per year
// with an extent on disk, plus one for the prediction year. Reference years
// without an extent are skipped; the stack builder treats their distance
// plane as absent.
func (p *Pipeline) buildDistanceFeatures(ref *raster.Grid) error {
	latestYear := 0
	var latest water.Extent
	for _, year := range p.years {
		extent, err := water.ReadExtent(extentPath(year))
		if err != nil {
			p.log.Warnf("no extent for year %d, skipping distance feature: %v", year, err)
			continue
		}
		distance, err := features.ShorelineDistance(extent, ref)
		if err != nil {
			p.log.Warnf("distance feature for year %d: %v", year, err)
			continue
		}
		if err := raster.Write(distancePath(year), distance, godal.Float32); err != nil {
			return err
		}
		latestYear, latest = year, extent
		p.log.Infof("created distance from shoreline raster for year %d", year)
	}

	if latestYear == 0 {
		p.log.Warn("no usable extent for any reference year, skipping prediction year distance feature")
		return nil
	}

	// The prediction year has no observed shoreline. Its plane is derived
	// from the newest extent so the prediction stack carries every feature
	// the model is trained on.
	distance, err := features.ShorelineDistance(latest, ref)
	if err != nil {
		return fmt.Errorf("distance feature for year %d: %w", p.predictionYear, err)
	}
	if err := raster.Write(distancePath(p.predictionYear), distance, godal.Float32); err != nil {
		return err
	}
	p.log.Infof("created distance from shoreline raster for year %d from the %d shoreline", p.predictionYear, latestYear)
	return nil
}

func labelLoader(year int) (*raster.Grid, error) {
	return raster.Read(maskPath(year))
}

// RunAll executes every stage in order.
func (p *Pipeline) RunAll(ctx context.Context) error {
	if err := p.RunDownload(ctx); err != nil {
		return err
	}
	if err := p.RunMNDWI(); err != nil {
		return err
	}
	if err := p.RunExtent(); err != nil {
		return err
	}
	return p.RunPredict()
}
