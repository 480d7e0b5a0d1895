package weather

import (
	"context"
	"time"
)

// ProviderReading represents a single provider's normalized reading that can
// be aggregated into a Snapshot.
type ProviderReading struct {
	ProviderName string
	Timestamp    time.Time

	TemperatureC float64
	HumidityPct  float64
	RainfallMm   float64
	WindSpeedMS  float64
}

// Provider abstracts a weather data source (e.g. Open-Meteo, OpenWeatherMap).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location) (ProviderReading, error)
}

// Store is the contract the in-memory store (and any future persistent
// store) must satisfy.
type Store interface {
	SaveSnapshot(loc Location, snapshot Snapshot)
	GetLatest(loc Location) (Snapshot, error)
	GetRange(loc Location, from, to time.Time) ([]Snapshot, error)
}
