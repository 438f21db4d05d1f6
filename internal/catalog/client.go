package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lake-guardian/lake-rise-research-cli/internal/properties"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	processURL = "https://sh.dataspace.copernicus.eu/api/v1/process"

	// Landsat Collection 2 Level-2 archives. OLI imagery starts in 2013;
	// earlier years come from the TM archive with its own band numbering.
	CollectionOLI = "landsat-ot-l2"
	CollectionTM  = "landsat-tm-l2"
	oliFirstYear  = 2013

	// Landsat ground sample distance in meters, and the process API's
	// output dimension limit.
	resolutionM = 30
	maxPixels   = 2500

	requestRetries = 5
	retryDelay     = 5 * time.Second

	// October scenes: end of the long rains, lowest cloud cover over the
	// lake.
	sceneMonth = time.October
)

// ErrNoScene means the catalog holds no acceptable scene for the requested
// year. Callers degrade to "no data for that year"; it is never
// pipeline-fatal.
var ErrNoScene = errors.New("no scene available")

// CollectionFor maps an acquisition year onto the Landsat archive that
// covers it.
func CollectionFor(year int) string {
	if year >= oliFirstYear {
		return CollectionOLI
	}
	return CollectionTM
}

// collectionBands returns a collection's green and SWIR band names, the two
// inputs of the water index.
func collectionBands(collection string) (string, string) {
	if collection == CollectionTM {
		return "B02", "B05"
	}
	return "B03", "B06"
}

func evalscriptFor(collection string) string {
	green, swir := collectionBands(collection)
	return fmt.Sprintf(`
//VERSION=3
function setup() {
  return {
    input: ["%s", "%s"],
    output: {
      id: "default",
      bands: 2,
      sampleType: SampleType.FLOAT32,
    },
  }
}

function evaluatePixel(sample) {
  return [sample.%s, sample.%s];
}
`, green, swir, green, swir)
}

// calculatePixels converts a WGS84 degree span to output pixels at the
// Landsat resolution, clamped to what the process API accepts.
func calculatePixels(degrees float64) int {
	pixels := int(math.Round(degrees * (111000.0 / resolutionM)))
	if pixels < 1 {
		return 1
	}
	if pixels > maxPixels {
		return maxPixels
	}
	return pixels
}

// Client downloads yearly scenes from the Copernicus process API into the
// raw data directory.
type Client struct {
	httpClient *http.Client
	bboxWGS84  [4]float64
	log        *zap.SugaredLogger
}

// NewClient authenticates with the client-credentials flow. The bounding
// box is the area of interest in WGS84 lon/lat order.
func NewClient(ctx context.Context, bboxWGS84 [4]float64) (*Client, error) {
	clientID := properties.CopernicusClientID()
	clientSecret := properties.CopernicusClientSecret()
	tokenURL := properties.CopernicusTokenURL()
	if clientID == "" || clientSecret == "" || tokenURL == "" {
		return nil, fmt.Errorf("missing required environment variables: COPERNICUS_CLIENT_ID, COPERNICUS_CLIENT_SECRET, or COPERNICUS_TOKEN_URL")
	}

	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return &Client{
		httpClient: config.Client(ctx),
		bboxWGS84:  bboxWGS84,
		log:        zap.S().Named("catalog"),
	}, nil
}

// ScenePath is where a year's downloaded scene lands in the raw directory.
func ScenePath(year int) string {
	return filepath.Join(properties.RawPath(), fmt.Sprintf("%s_%d.tif", CollectionFor(year), year))
}

// DownloadScene fetches the least-cloudy October scene of a year and writes
// it to ScenePath(year). Years with nothing acceptable return ErrNoScene.
func (c *Client) DownloadScene(ctx context.Context, year int) (string, error) {
	start := time.Date(year, sceneMonth, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Second)

	body, err := c.requestScene(ctx, CollectionFor(year), start, end)
	if err != nil {
		return "", fmt.Errorf("scene for year %d: %w", year, err)
	}

	outPath := ScenePath(year)
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create raw directory: %w", err)
	}
	if err := os.WriteFile(outPath, body, 0644); err != nil {
		return "", fmt.Errorf("failed to save scene for year %d: %w", year, err)
	}
	c.log.Infof("saved scene for year %d to %s", year, outPath)
	return outPath, nil
}

func (c *Client) requestScene(ctx context.Context, collection string, start, end time.Time) ([]byte, error) {
	payload := map[string]interface{}{
		"input": map[string]interface{}{
			"bounds": map[string]interface{}{
				"bbox": c.bboxWGS84,
			},
			"data": []map[string]interface{}{
				{
					"dataFilter": map[string]interface{}{
						"timeRange": map[string]string{
							"from": start.Format(time.RFC3339),
							"to":   end.Format(time.RFC3339),
						},
						"mosaickingOrder": "leastCC",
					},
					"type": collection,
				},
			},
		},
		"output": map[string]interface{}{
			"width":  calculatePixels(c.bboxWGS84[2] - c.bboxWGS84[0]),
			"height": calculatePixels(c.bboxWGS84[3] - c.bboxWGS84[1]),
			"responses": []map[string]interface{}{
				{
					"identifier": "default",
					"format": map[string]string{
						"type": "image/tiff",
					},
				},
			},
		},
		"evalscript": evalscriptFor(collection),
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= requestRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, processURL, bytes.NewReader(requestBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		response, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warnf("attempt %d failed: %v", attempt, err)
			time.Sleep(retryDelay)
			continue
		}

		body, readErr := io.ReadAll(response.Body)
		response.Body.Close()

		switch {
		case response.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response body: %w", readErr)
			}
			if len(body) == 0 {
				return nil, ErrNoScene
			}
			return body, nil
		case response.StatusCode == http.StatusNotFound:
			return nil, ErrNoScene
		case response.StatusCode == http.StatusForbidden || response.StatusCode == http.StatusUnauthorized:
			return nil, fmt.Errorf("unauthorized access, check your client ID and secret")
		default:
			lastErr = fmt.Errorf("status %d: %s", response.StatusCode, string(body))
			c.log.Warnf("attempt %d failed: %v", attempt, lastErr)
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("failed to request scene after %d attempts: %w", requestRetries, lastErr)
}
