// Package ndvi fetches vegetation-index statistics for a coordinate and
// turns sparse per-day observations into a fixed-length interpolated series.
package ndvi

import "time"

// Stats are the per-scene NDVI statistics for one date and area, computed
// over the cloud/water/snow-masked pixel set.
type Stats struct {
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
	ValidPixels int     `json:"valid_pixels"`
	TotalPixels int     `json:"total_pixels"`
}

// RawPoint is one observed day of mean NDVI, as returned by the upstream
// statistics API. Days without usable scenes are simply absent.
type RawPoint struct {
	Date time.Time `json:"date"`
	Mean float64   `json:"mean"`
}

// TimeseriesPoint is one day of the interpolated output series.
type TimeseriesPoint struct {
	Date         time.Time `json:"date"`
	Mean         float64   `json:"mean"`
	Interpolated bool      `json:"interpolated"`
}

// RunStatus is the outcome class of an on-demand NDVI computation.
type RunStatus string

const (
	// RunOK means statistics were computed over at least one valid pixel.
	RunOK RunStatus = "ok"
	// RunNoValidData means the entire pixel set was masked out (cloud,
	// water, snow). This is a defined outcome, not an error.
	RunNoValidData RunStatus = "no_valid_data"
)

// RunResult is the response of an on-demand NDVI stats computation.
type RunResult struct {
	Status RunStatus `json:"status"`
	Stats  *Stats    `json:"stats,omitempty"`
	Job    string    `json:"job"`

	// ImageURL points at the rendered NDVI visual when it became available
	// within the polling budget; ImageUnavailable is set otherwise.
	ImageURL         string `json:"image_url,omitempty"`
	ImageUnavailable bool   `json:"image_unavailable,omitempty"`
}
