// Package market fetches per-crop mandi price summaries from the upstream
// market data API.
package market

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

// PriceQuote is the normalized price summary for one crop: modal price with
// min/max spread across the district's markets and the day-over-day change.
type PriceQuote struct {
	Crop          string    `json:"crop"`
	ModalPrice    float64   `json:"modal_price"`
	MinPrice      float64   `json:"min_price"`
	MaxPrice      float64   `json:"max_price"`
	ChangePercent float64   `json:"change_percent"`
	Markets       []string  `json:"markets,omitempty"`
	Date          time.Time `json:"date"`
}

// Client fetches price quotes with the shared resilience wrapper.
type Client struct {
	baseURL string
	httpCfg httputil.ClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates a market data client for the API at baseURL.
func NewClient(client *http.Client, baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpCfg: httputil.ClientConfig{
			Client:  client,
			Backoff: httputil.DefaultBackoff,
		},
		circuit: httputil.NewBreaker("market"),
	}
}

// Quote returns the price summary for one crop in a state/district.
func (c *Client) Quote(ctx context.Context, crop, state, district string) (PriceQuote, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("commodity", crop)
		values.Set("state", state)
		values.Set("district", district)

		u := fmt.Sprintf("%s/prices/daily?%s", c.baseURL, values.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	resp, err := httputil.DoWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return PriceQuote{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Commodity     string   `json:"commodity"`
		ModalPrice    float64  `json:"modal_price"`
		MinPrice      float64  `json:"min_price"`
		MaxPrice      float64  `json:"max_price"`
		ChangePercent float64  `json:"change_percent"`
		Markets       []string `json:"markets"`
		Date          string   `json:"date"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return PriceQuote{}, fmt.Errorf("decode market quote: %w", err)
	}

	date, err := time.Parse("2006-01-02", payload.Date)
	if err != nil {
		date = time.Now().UTC()
	}

	return PriceQuote{
		Crop:          crop,
		ModalPrice:    payload.ModalPrice,
		MinPrice:      payload.MinPrice,
		MaxPrice:      payload.MaxPrice,
		ChangePercent: payload.ChangePercent,
		Markets:       payload.Markets,
		Date:          date,
	}, nil
}

// Quotes returns price summaries for several crops, skipping crops the
// upstream has no data for.
func (c *Client) Quotes(ctx context.Context, crops []string, state, district string) ([]PriceQuote, error) {
	quotes := make([]PriceQuote, 0, len(crops))
	var lastErr error
	for _, crop := range crops {
		q, err := c.Quote(ctx, crop, state, district)
		if err != nil {
			lastErr = err
			continue
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return quotes, nil
}
