package ndvi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/krushirakshak/crop-advisory/internal/httputil"
)

// SentinelClient implements Provider against the Sentinel statistics
// upstream.
type SentinelClient struct {
	name    string
	token   string
	baseURL string
	httpCfg httputil.ClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewSentinelClient creates a client for the statistics API at baseURL.
func NewSentinelClient(client *http.Client, baseURL, token string) *SentinelClient {
	return &SentinelClient{
		name:    "sentinel",
		token:   token,
		baseURL: baseURL,
		httpCfg: httputil.ClientConfig{
			Client:  client,
			Backoff: httputil.DefaultBackoff,
		},
		circuit: httputil.NewBreaker("sentinel"),
	}
}

const dateLayout = "2006-01-02"

func (c *SentinelClient) Timeseries(ctx context.Context, lat, lon float64, from, to time.Time) ([]RawPoint, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", fmt.Sprintf("%f", lat))
		values.Set("lon", fmt.Sprintf("%f", lon))
		values.Set("from", from.Format(dateLayout))
		values.Set("to", to.Format(dateLayout))

		u := fmt.Sprintf("%s/statistics/timeseries?%s", c.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		return req, nil
	}

	resp, err := httputil.DoWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Points []struct {
			Date string  `json:"date"`
			Mean float64 `json:"mean"`
		} `json:"points"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode timeseries: %w", err)
	}

	points := make([]RawPoint, 0, len(payload.Points))
	for _, p := range payload.Points {
		date, err := time.Parse(dateLayout, p.Date)
		if err != nil {
			// A malformed date from upstream invalidates just that point.
			continue
		}
		// NDVI is bounded to [-1, 1]; anything outside is sensor garbage.
		if math.IsNaN(p.Mean) || p.Mean < -1 || p.Mean > 1 {
			continue
		}
		points = append(points, RawPoint{Date: date.UTC(), Mean: p.Mean})
	}
	return points, nil
}

func (c *SentinelClient) Stats(ctx context.Context, lat, lon, radiusM float64) (Stats, bool, error) {
	body, err := json.Marshal(map[string]any{
		"bbox": boundingBox(lat, lon, radiusM),
	})
	if err != nil {
		return Stats{}, false, err
	}

	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s/statistics/compute", c.baseURL)
		req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)
		return req, nil
	}

	resp, err := httputil.DoWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return Stats{}, false, err
	}
	defer resp.Body.Close()

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return Stats{}, false, fmt.Errorf("decode stats: %w", err)
	}

	if stats.ValidPixels == 0 {
		return Stats{}, false, nil
	}
	return stats, true, nil
}

func (c *SentinelClient) Image(ctx context.Context, job string) (string, error) {
	values := url.Values{}
	values.Set("job", job)
	u := fmt.Sprintf("%s/image?%s", c.baseURL, values.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	c.authorize(req)

	// Polling is driven by the pipeline; a single attempt per call, no
	// breaker retries.
	resp, err := c.httpCfg.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return "", ErrAssetNotReady
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image request: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode image response: %w", err)
	}
	return payload.URL, nil
}

func (c *SentinelClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// boundingBox converts a center point and radius in meters into a WGS84
// [minLon, minLat, maxLon, maxLat] box. One degree of latitude is ~111.32 km;
// longitude shrinks with cos(lat).
func boundingBox(lat, lon, radiusM float64) [4]float64 {
	dLat := radiusM / 111320.0
	dLon := radiusM / (111320.0 * math.Cos(lat*math.Pi/180))
	return [4]float64{lon - dLon, lat - dLat, lon + dLon, lat + dLat}
}
