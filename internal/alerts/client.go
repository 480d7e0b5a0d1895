// Package alerts fetches government agro-advisory alerts for a coordinate.
// The upstream payload is loosely structured; normalization tolerates the
// key variants observed in the wild.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/krushirakshak/crop-advisory/internal/httputil"
)

// Alert is one normalized advisory alert.
type Alert struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"alert_type"`
	Date        string `json:"date"` // YYYY-MM-DD
}

// Client fetches alerts with the shared resilience wrapper.
type Client struct {
	baseURL string
	httpCfg httputil.ClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates an alerts client for the locator service at baseURL.
func NewClient(client *http.Client, baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpCfg: httputil.ClientConfig{
			Client:  client,
			Backoff: httputil.DefaultBackoff,
		},
		circuit: httputil.NewBreaker("alerts"),
	}
}

// Fetch returns the alerts for a coordinate. Upstream failures degrade to an
// error the caller turns into an unavailable dashboard section.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) ([]Alert, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", fmt.Sprintf("%f", lat))
		values.Set("lon", fmt.Sprintf("%f", lon))

		u := fmt.Sprintf("%s/agrilocatorservice?%s", c.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	resp, err := httputil.DoWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}

	return Normalize(payload), nil
}

// Normalize extracts alerts from the upstream payload, which may be a bare
// list, or an object wrapping the list under one of several keys.
func Normalize(payload any) []Alert {
	var items []any

	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		for _, key := range []string{"data", "records", "alerts", "results"} {
			if list, ok := v[key].([]any); ok {
				items = list
				break
			}
			if one, ok := v[key].(map[string]any); ok {
				items = []any{one}
				break
			}
		}
	}

	alerts := make([]Alert, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if a, ok := normalizeOne(obj); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

func normalizeOne(item map[string]any) (Alert, bool) {
	title := firstString(item, "title", "alert_title", "subject", "name")
	desc := firstString(item, "description", "alert_description", "message", "content", "details")
	if title == "" && desc == "" {
		return Alert{}, false
	}

	alertType := firstString(item, "alert_type", "type", "category", "alert_category")
	if alertType == "" {
		alertType = "general"
	}

	date := firstString(item, "date", "alert_date", "published_date", "created_at", "updated_at")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	return Alert{
		Title:       title,
		Description: desc,
		Type:        alertType,
		Date:        date,
	}, true
}

func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := item[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
