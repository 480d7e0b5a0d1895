package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func seriesOf(start time.Time, means ...float64) []SeriesPoint {
	points := make([]SeriesPoint, 0, len(means))
	for i, m := range means {
		points = append(points, SeriesPoint{Date: start.AddDate(0, 0, i), Mean: m})
	}
	return points
}

func TestBuildFeatures(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	day1 := time.Date(2026, 4, 4, 0, 0, 0, 0, time.UTC)

	t.Run("all sources present", func(t *testing.T) {
		fs, sources := BuildFeatures(
			&WeatherObs{Temperature: 31, Humidity: 80, Rainfall: 2, WindSpeed: 4, Timestamp: now.Add(-time.Hour)},
			&MarketObs{Price: 2200, ChangePercent: -6},
			&VegetationObs{Series: seriesOf(day1, 0.50, 0.48, 0.46, 0.45, 0.44, 0.42, 0.40), WindowDays: 7},
			now,
		)

		assert.Equal(t, 31.0, fs[FeatureTemperature])
		assert.Equal(t, 80.0, fs[FeatureHumidity])
		assert.Equal(t, 2.0, fs[FeatureRainfall])
		assert.Equal(t, 4.0, fs[FeatureWindSpeed])
		assert.Equal(t, 2200.0, fs[FeatureMarketPrice])
		assert.Equal(t, -6.0, fs[FeaturePriceChangePercent])
		assert.Equal(t, 0.40, fs[FeatureNDVI])
		assert.InDelta(t, -0.10, fs[FeatureNDVIChange], 1e-9)
		assert.Equal(t, []Source{SourceWeather, SourceSatellite, SourceMarket}, sources)
	})

	t.Run("absent inputs produce absent keys", func(t *testing.T) {
		fs, sources := BuildFeatures(nil, nil, nil, now)
		assert.Empty(t, fs)
		assert.Empty(t, sources)
	})

	t.Run("partial window omits ndvi_change, not zero", func(t *testing.T) {
		fs, _ := BuildFeatures(nil, nil, &VegetationObs{
			Series:     seriesOf(day1, 0.50, 0.40),
			WindowDays: 7,
		}, now)

		_, present := fs[FeatureNDVIChange]
		assert.False(t, present, "ndvi_change must be absent for a partial window")
		assert.Equal(t, 0.40, fs[FeatureNDVI], "latest ndvi is still exposed")
	})

	t.Run("empty series contributes nothing", func(t *testing.T) {
		fs, sources := BuildFeatures(nil, nil, &VegetationObs{WindowDays: 7}, now)
		assert.Empty(t, fs)
		assert.Empty(t, sources)
	})

	t.Run("soil moisture normalization", func(t *testing.T) {
		cases := []struct {
			name string
			in   float64
			want float64
		}{
			{"fraction kept", 0.4, 0.4},
			{"percentage divided", 40, 0.4},
			{"boundary one is a fraction", 1, 1},
			{"over 100 percent clamps", 140, 1},
			{"negative clamps to zero", -0.2, 0},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				fs, _ := BuildFeatures(nil, nil, &VegetationObs{SoilRatio: ptr(tc.in)}, now)
				require.Contains(t, fs, FeatureSoilMoisture)
				assert.InDelta(t, tc.want, fs[FeatureSoilMoisture], 1e-9)
			})
		}
	})

	t.Run("stale weather is treated as absent", func(t *testing.T) {
		fs, sources := BuildFeatures(
			&WeatherObs{Temperature: 31, Timestamp: now.Add(-4 * time.Hour)},
			nil, nil, now,
		)
		assert.NotContains(t, fs, FeatureTemperature)
		assert.NotContains(t, sources, SourceWeather)
	})

	t.Run("pure function: identical inputs identical output", func(t *testing.T) {
		veg := &VegetationObs{Series: seriesOf(day1, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5), WindowDays: 7, Min: ptr(0.1), Max: ptr(0.9)}
		a, _ := BuildFeatures(nil, nil, veg, now)
		b, _ := BuildFeatures(nil, nil, veg, now)
		assert.Equal(t, a, b)
	})
}
