package fusion

import (
	"time"
)

// Feature names form a fixed vocabulary. Rule packs may only reference names
// listed here; LoadStore rejects anything else.
const (
	FeatureNDVI               = "ndvi"
	FeatureNDVIMin            = "ndvi_min"
	FeatureNDVIMax            = "ndvi_max"
	FeatureNDVIChange         = "ndvi_change"
	FeatureSoilMoisture       = "soil_moisture"
	FeatureTemperature        = "temperature"
	FeatureHumidity           = "humidity"
	FeatureRainfall           = "rainfall"
	FeatureWindSpeed          = "wind_speed"
	FeatureMarketPrice        = "market_price"
	FeaturePriceChangePercent = "price_change_percent"
)

var featureVocabulary = map[string]struct{}{
	FeatureNDVI:               {},
	FeatureNDVIMin:            {},
	FeatureNDVIMax:            {},
	FeatureNDVIChange:         {},
	FeatureSoilMoisture:       {},
	FeatureTemperature:        {},
	FeatureHumidity:           {},
	FeatureRainfall:           {},
	FeatureWindSpeed:          {},
	FeatureMarketPrice:        {},
	FeaturePriceChangePercent: {},
}

// KnownFeature reports whether name is part of the feature vocabulary.
func KnownFeature(name string) bool {
	_, ok := featureVocabulary[name]
	return ok
}

// FeatureSet maps feature names to derived numeric values. A genuinely
// missing input is an absent key, never a zero: the evaluator fails closed
// on absent keys so rules never fire on fabricated data.
type FeatureSet map[string]float64

// Source names an upstream domain that contributed at least one feature.
type Source string

const (
	SourceWeather   Source = "weather"
	SourceSatellite Source = "satellite"
	SourceMarket    Source = "market"
)

// WeatherObs is a normalized weather snapshot as seen by the builder.
type WeatherObs struct {
	Temperature float64
	Humidity    float64
	Rainfall    float64
	WindSpeed   float64
	Timestamp   time.Time
}

// MarketObs carries the price signals for one crop.
type MarketObs struct {
	Price         float64
	ChangePercent float64
}

// SeriesPoint is one day of the interpolated vegetation-index series.
type SeriesPoint struct {
	Date time.Time
	Mean float64
}

// VegetationObs carries satellite-derived inputs: the interpolated NDVI
// series plus optional per-scene min/max and a soil-moisture ratio.
type VegetationObs struct {
	Series      []SeriesPoint
	WindowDays  int
	Min         *float64
	Max         *float64
	SoilRatio   *float64 // fraction [0,1] or percentage (>1); normalized here
}

// weatherStaleAfter is how old a weather snapshot may be before the builder
// drops it. A stale reading is treated as absent rather than presented to
// rules as current conditions.
const weatherStaleAfter = 3 * time.Hour

// BuildFeatures derives the flat feature set from whatever observations are
// present. It is a pure function of its inputs and now; absent inputs simply
// produce absent keys. The returned sources list names only the domains that
// contributed at least one feature, in a fixed order.
func BuildFeatures(weather *WeatherObs, market *MarketObs, veg *VegetationObs, now time.Time) (FeatureSet, []Source) {
	fs := make(FeatureSet)
	var sources []Source

	if weather != nil && now.Sub(weather.Timestamp) <= weatherStaleAfter {
		fs[FeatureTemperature] = weather.Temperature
		fs[FeatureHumidity] = weather.Humidity
		fs[FeatureRainfall] = weather.Rainfall
		fs[FeatureWindSpeed] = weather.WindSpeed
		sources = append(sources, SourceWeather)
	}

	if veg != nil {
		if contributed := buildVegetation(fs, veg); contributed {
			sources = append(sources, SourceSatellite)
		}
	}

	if market != nil {
		fs[FeatureMarketPrice] = market.Price
		fs[FeaturePriceChangePercent] = market.ChangePercent
		sources = append(sources, SourceMarket)
	}

	return fs, sources
}

func buildVegetation(fs FeatureSet, veg *VegetationObs) bool {
	contributed := false

	if n := len(veg.Series); n > 0 {
		fs[FeatureNDVI] = veg.Series[n-1].Mean
		contributed = true

		// The change delta compares endpoints that must really be WindowDays
		// apart; a partial series would produce a misleading slope.
		if veg.WindowDays > 0 && n == veg.WindowDays {
			fs[FeatureNDVIChange] = veg.Series[n-1].Mean - veg.Series[0].Mean
		}
	}

	if veg.Min != nil {
		fs[FeatureNDVIMin] = *veg.Min
		contributed = true
	}
	if veg.Max != nil {
		fs[FeatureNDVIMax] = *veg.Max
		contributed = true
	}

	if veg.SoilRatio != nil {
		fs[FeatureSoilMoisture] = normalizeRatio(*veg.SoilRatio)
		contributed = true
	}

	return contributed
}

// normalizeRatio maps a moisture-like reading onto [0,1]. Upstream sources
// disagree on units: anything above 1 is a percentage.
func normalizeRatio(v float64) float64 {
	if v > 1 {
		v = v / 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
