package weather

import "time"

// AggregateReadings combines multiple provider readings into a single
// Snapshot. Numeric fields are averaged; the snapshot carries the newest
// contributing timestamp.
func AggregateReadings(loc Location, readings []ProviderReading) Snapshot {
	if len(readings) == 0 {
		return Snapshot{
			Location:  loc,
			Timestamp: time.Now().UTC(),
		}
	}

	var (
		sumTemp     float64
		sumHumidity float64
		sumRainfall float64
		sumWind     float64
	)

	providers := make([]ProviderContribution, 0, len(readings))
	var newestTS time.Time

	for _, r := range readings {
		sumTemp += r.TemperatureC
		sumHumidity += r.HumidityPct
		sumRainfall += r.RainfallMm
		sumWind += r.WindSpeedMS

		if r.Timestamp.After(newestTS) {
			newestTS = r.Timestamp
		}

		providers = append(providers, ProviderContribution{
			ProviderName: r.ProviderName,
			Timestamp:    r.Timestamp,
		})
	}

	n := float64(len(readings))

	if newestTS.IsZero() {
		newestTS = time.Now().UTC()
	}

	return Snapshot{
		Location:    loc,
		Timestamp:   newestTS,
		Temperature: sumTemp / n,
		Humidity:    sumHumidity / n,
		Rainfall:    sumRainfall / n,
		WindSpeed:   sumWind / n,
		Providers:   providers,
	}
}
