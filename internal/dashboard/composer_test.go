package dashboard

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krushirakshak/crop-advisory/internal/alerts"
	"github.com/krushirakshak/crop-advisory/internal/fusion"
	"github.com/krushirakshak/crop-advisory/internal/market"
	"github.com/krushirakshak/crop-advisory/internal/ndvi"
	"github.com/krushirakshak/crop-advisory/internal/observability"
	"github.com/krushirakshak/crop-advisory/internal/store"
	"github.com/krushirakshak/crop-advisory/internal/weather"
)

var testNow = time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

type fakeWeatherProvider struct {
	reading weather.ProviderReading
}

func (f *fakeWeatherProvider) Name() string { return "fake" }

func (f *fakeWeatherProvider) Fetch(ctx context.Context, loc weather.Location) (weather.ProviderReading, error) {
	return f.reading, nil
}

type fakeNdviProvider struct {
	points []ndvi.RawPoint
}

func (f *fakeNdviProvider) Timeseries(ctx context.Context, lat, lon float64, from, to time.Time) ([]ndvi.RawPoint, error) {
	return f.points, nil
}

func (f *fakeNdviProvider) Stats(ctx context.Context, lat, lon, radiusM float64) (ndvi.Stats, bool, error) {
	return ndvi.Stats{}, false, nil
}

func (f *fakeNdviProvider) Image(ctx context.Context, job string) (string, error) {
	return "", ndvi.ErrAssetNotReady
}

// loadTestRules builds a store with a single vegetation-decline rule so the
// advisory outcome is fully determined by the fake satellite series.
func loadTestRules(t *testing.T) *fusion.Store {
	t.Helper()
	dir := t.TempDir()

	packs := map[string]string{
		"pest": `{
			"pest_ndvi_drop": {
				"description": "Vegetation index swung sharply over the window",
				"conditions": [{"feature": "ndvi_change", "op": "abs_gte", "value": 0.08}],
				"score": 0.7,
				"recommendation": "Scout fields for pest damage",
				"timeline": "within 48 hours",
				"severity": "medium"
			}
		}`,
		"irrigation": `{}`,
		"market":     `{}`,
	}
	for name, body := range packs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o600))
	}

	rules, err := fusion.LoadStore(dir)
	require.NoError(t, err)
	return rules
}

type composerEnv struct {
	composer  *Composer
	marketSrv *httptest.Server
	alertsSrv *httptest.Server
}

func newComposerEnv(t *testing.T, marketHandler, alertsHandler http.HandlerFunc) *composerEnv {
	t.Helper()

	if marketHandler == nil {
		marketHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"commodity": "` + r.URL.Query().Get("commodity") + `",
				"modal_price": 2200, "min_price": 2100, "max_price": 2300,
				"change_percent": 1.5, "markets": ["Aurangabad"], "date": "2026-03-07"}`))
		}
	}
	if alertsHandler == nil {
		alertsHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data": [{"title": "Rainfall alert", "description": "Heavy showers expected"}]}`))
		}
	}

	marketSrv := httptest.NewServer(marketHandler)
	t.Cleanup(marketSrv.Close)
	alertsSrv := httptest.NewServer(alertsHandler)
	t.Cleanup(alertsSrv.Close)

	clock := clockwork.NewFakeClockAt(testNow)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	weatherSvc := weather.NewService(
		store.NewMemoryStore(10, 0),
		[]weather.Provider{&fakeWeatherProvider{reading: weather.ProviderReading{
			ProviderName: "fake",
			TemperatureC: 31,
			HumidityPct:  68,
			RainfallMm:   0,
			WindSpeedMS:  4,
			Timestamp:    testNow,
		}}},
		logger,
	)

	// Raw vegetation points at the window edges give a -0.10 swing once the
	// interior days are interpolated.
	ndviProvider := &fakeNdviProvider{points: []ndvi.RawPoint{
		{Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Mean: 0.50},
		{Date: time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), Mean: 0.40},
	}}
	pipeline := ndvi.NewPipeline(ndviProvider, clock, metrics, logger, ndvi.Options{WindowDays: 7})

	composer := NewComposer(
		weatherSvc,
		market.NewClient(marketSrv.Client(), marketSrv.URL),
		alerts.NewClient(alertsSrv.Client(), alertsSrv.URL),
		pipeline,
		loadTestRules(t),
		clock,
		metrics,
		logger,
		[]string{"wheat", "rice"},
	)

	return &composerEnv{composer: composer, marketSrv: marketSrv, alertsSrv: alertsSrv}
}

func TestComposerAdvisory(t *testing.T) {
	env := newComposerEnv(t, nil, nil)
	loc := weather.Location{Lat: 19.7515, Lon: 75.7139}

	t.Run("vegetation swing produces a medium advisory", func(t *testing.T) {
		advisory, err := env.composer.Advisory(context.Background(), "wheat", "Maharashtra", "Aurangabad", loc)
		require.NoError(t, err)

		assert.Equal(t, "wheat", advisory.Crop)
		assert.Equal(t, "medium", advisory.Priority)
		require.Len(t, advisory.FiredRules, 1)
		assert.Equal(t, "pest_ndvi_drop", advisory.FiredRules[0].ID)
		assert.InDelta(t, -0.10, advisory.FiredRules[0].Matched["ndvi_change"], 1e-9)

		require.Len(t, advisory.Recommendations, 1)
		assert.Equal(t, "Vegetation index swung sharply over the window", advisory.Recommendations[0].Title)
		assert.Equal(t, "Scout fields for pest damage", advisory.Recommendations[0].Desc)
		assert.Equal(t, "within 48 hours", advisory.Recommendations[0].Timeline)

		assert.InDelta(t, 0.7, advisory.RuleBreakdown[fusion.CategoryPest].Score, 1e-9)
		assert.ElementsMatch(t, []fusion.Source{fusion.SourceWeather, fusion.SourceSatellite, fusion.SourceMarket},
			advisory.DataSources)
	})

	t.Run("unknown crop is rejected", func(t *testing.T) {
		_, err := env.composer.Advisory(context.Background(), "durian", "Maharashtra", "Aurangabad", loc)
		assert.ErrorIs(t, err, ErrUnknownCrop)
	})
}

func TestComposerCompose(t *testing.T) {
	loc := weather.Location{Lat: 19.7515, Lon: 75.7139}

	t.Run("all sections populated", func(t *testing.T) {
		env := newComposerEnv(t, nil, nil)

		dash, err := env.composer.Compose(context.Background(), Request{
			State:    "Maharashtra",
			District: "Aurangabad",
			Location: loc,
		})
		require.NoError(t, err)

		require.NotNil(t, dash.Weather)
		assert.InDelta(t, 31.0, dash.Weather.Temperature, 1e-9)
		assert.Len(t, dash.Market, 2)
		require.Len(t, dash.Alerts, 1)
		assert.Equal(t, "Rainfall alert", dash.Alerts[0].Title)

		require.Len(t, dash.CropHealth, 2)
		wheat := dash.CropHealth["wheat"]
		assert.Equal(t, "medium", wheat.Priority)
		assert.InDelta(t, 0.7, wheat.RiskScore, 1e-9)

		assert.Zero(t, dash.Summary.HighPriorityCount)
		assert.Empty(t, dash.Unavailable)
	})

	t.Run("failing market source degrades only its section", func(t *testing.T) {
		brokenMarket := func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}
		env := newComposerEnv(t, brokenMarket, nil)

		dash, err := env.composer.Compose(context.Background(), Request{
			Crop:     "wheat",
			State:    "Maharashtra",
			District: "Aurangabad",
			Location: loc,
		})
		require.NoError(t, err)

		assert.Contains(t, dash.Unavailable, "market")
		assert.Empty(t, dash.Market)
		require.NotNil(t, dash.Weather)
		assert.Len(t, dash.Alerts, 1)

		// The advisory still runs on the remaining observation domains.
		require.Contains(t, dash.CropHealth, "wheat")
		assert.Equal(t, "medium", dash.CropHealth["wheat"].Priority)
	})

	t.Run("single requested crop limits crop health", func(t *testing.T) {
		env := newComposerEnv(t, nil, nil)

		dash, err := env.composer.Compose(context.Background(), Request{
			Crop:     "rice",
			State:    "Maharashtra",
			District: "Aurangabad",
			Location: loc,
		})
		require.NoError(t, err)
		assert.Len(t, dash.CropHealth, 1)
		assert.Contains(t, dash.CropHealth, "rice")
	})

	t.Run("unknown crop fails the whole request", func(t *testing.T) {
		env := newComposerEnv(t, nil, nil)

		_, err := env.composer.Compose(context.Background(), Request{Crop: "durian", Location: loc})
		assert.ErrorIs(t, err, ErrUnknownCrop)
	})
}
