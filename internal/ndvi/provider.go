package ndvi

import (
	"context"
	"errors"
	"time"
)

// ErrAssetNotReady is returned by Image while the rendered visual is still
// being produced upstream.
var ErrAssetNotReady = errors.New("ndvi image not ready")

// Provider abstracts the satellite statistics upstream.
type Provider interface {
	// Timeseries returns the observed per-day mean NDVI for the area around
	// (lat, lon) between from and to inclusive. Days without usable scenes
	// are absent from the result.
	Timeseries(ctx context.Context, lat, lon float64, from, to time.Time) ([]RawPoint, error)

	// Stats computes NDVI statistics for the area of the given radius in
	// meters. ok is false when every pixel was masked out.
	Stats(ctx context.Context, lat, lon, radiusM float64) (stats Stats, ok bool, err error)

	// Image returns the URL of the rendered NDVI visual for a job, or
	// ErrAssetNotReady while it is still being produced.
	Image(ctx context.Context, job string) (string, error)
}
