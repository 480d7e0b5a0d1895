package fusion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAdvisory(t *testing.T) {
	t.Run("no fired rules means low priority and empty list", func(t *testing.T) {
		store := storeWith(t, CategoryPest, `{}`)
		results := EvaluateAll(store, FeatureSet{})

		advisory := BuildAdvisory("wheat", results, nil)

		assert.Equal(t, "low", advisory.Priority)
		assert.Equal(t, "low", advisory.Severity)
		assert.Empty(t, advisory.Recommendations)
		assert.Contains(t, advisory.Analysis, "No significant risk detected for wheat")
		for _, cat := range CategoryOrder {
			assert.Zero(t, advisory.RuleBreakdown[cat].Score)
		}
	})

	t.Run("ndvi swing fires a single medium advisory", func(t *testing.T) {
		store := storeWith(t, CategoryPest, `{
			"ndvi_swing": {
				"description": "Vegetation index swing",
				"conditions": [{"feature": "ndvi_change", "op": "abs_gte", "value": 0.08}],
				"score": 0.7,
				"recommendation": "Scout the field",
				"timeline": "within 2 days",
				"severity": "medium"
			}
		}`)

		results := EvaluateAll(store, FeatureSet{FeatureNDVIChange: -0.10})
		advisory := BuildAdvisory("cotton", results, []Source{SourceSatellite})

		assert.Equal(t, "medium", advisory.Priority)
		require.Len(t, advisory.Recommendations, 1)
		assert.Equal(t, "Vegetation index swing", advisory.Recommendations[0].Title)
		assert.Equal(t, "Scout the field", advisory.Recommendations[0].Desc)
		assert.Equal(t, "medium", advisory.Recommendations[0].Priority)
		assert.Equal(t, "within 2 days", advisory.Recommendations[0].Timeline)
		assert.Equal(t, []Source{SourceSatellite}, advisory.DataSources)
		assert.InDelta(t, 0.7, advisory.RuleBreakdown[CategoryPest].Score, 1e-9)
	})

	t.Run("any high severity rule lifts overall priority", func(t *testing.T) {
		store := storeWith(t, CategoryIrrigation, `{
			"dry": {
				"description": "dry soil",
				"conditions": [{"feature": "soil_moisture", "op": "<", "value": 0.25}],
				"score": 0.8,
				"recommendation": "irrigate",
				"severity": "high"
			}
		}`)

		results := EvaluateAll(store, FeatureSet{FeatureSoilMoisture: 0.1})
		advisory := BuildAdvisory("rice", results, []Source{SourceSatellite})
		assert.Equal(t, "high", advisory.Priority)
		assert.Equal(t, "high", advisory.Severity)
	})

	t.Run("recommendations ordered by severity then category then load order", func(t *testing.T) {
		dir := writePacks(t, map[Category]string{
			CategoryPest: `{
				"p_low": {
					"description": "pest low",
					"conditions": [{"feature": "ndvi", "op": "<", "value": 1}],
					"score": 0.2,
					"recommendation": "n/a",
					"severity": "low"
				}
			}`,
			CategoryIrrigation: `{
				"i_high": {
					"description": "irrigation high",
					"conditions": [{"feature": "ndvi", "op": "<", "value": 1}],
					"score": 0.3,
					"recommendation": "n/a",
					"severity": "high"
				},
				"i_low": {
					"description": "irrigation low",
					"conditions": [{"feature": "ndvi", "op": "<", "value": 1}],
					"score": 0.2,
					"recommendation": "n/a",
					"severity": "low"
				}
			}`,
			CategoryMarket: `{
				"m_high": {
					"description": "market high",
					"conditions": [{"feature": "ndvi", "op": "<", "value": 1}],
					"score": 0.3,
					"recommendation": "n/a",
					"severity": "high"
				}
			}`,
		})
		store, err := LoadStore(dir)
		require.NoError(t, err)

		results := EvaluateAll(store, FeatureSet{FeatureNDVI: 0.5})
		advisory := BuildAdvisory("wheat", results, nil)

		titles := make([]string, 0, len(advisory.Recommendations))
		for _, r := range advisory.Recommendations {
			titles = append(titles, r.Title)
		}
		assert.Equal(t, []string{
			"irrigation high", // high severity, irrigation before market
			"market high",
			"pest low", // low severity, pest category first
			"irrigation low",
		}, titles)
	})

	t.Run("re-running yields byte-identical ordering", func(t *testing.T) {
		store := storeWith(t, CategoryMarket, `{
			"spike": {
				"description": "spike",
				"conditions": [{"feature": "price_change_percent", "op": ">=", "value": 5}],
				"score": 0.6,
				"recommendation": "sell",
				"severity": "medium"
			},
			"swing": {
				"description": "swing",
				"conditions": [{"feature": "price_change_percent", "op": "abs_gte", "value": 5}],
				"score": 0.4,
				"recommendation": "compare mandis",
				"severity": "low"
			}
		}`)

		fs := FeatureSet{FeaturePriceChangePercent: 7}

		first, err := json.Marshal(BuildAdvisory("wheat", EvaluateAll(store, fs), []Source{SourceMarket}))
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			again, err := json.Marshal(BuildAdvisory("wheat", EvaluateAll(store, fs), []Source{SourceMarket}))
			require.NoError(t, err)
			assert.Equal(t, string(first), string(again))
		}
	})
}
