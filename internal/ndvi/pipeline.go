package ndvi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/krushirakshak/crop-advisory/internal/observability"
)

// Options configure a Pipeline.
type Options struct {
	// WindowDays is the trailing window length of the interpolated series.
	WindowDays int
	// PollDelay and PollMaxAttempts bound the visual-asset polling loop.
	PollDelay       time.Duration
	PollMaxAttempts int
}

// Pipeline fetches per-day vegetation statistics for a coordinate over a
// trailing window, deduplicating concurrent identical requests, and
// interpolates missing days into a fixed-length series.
type Pipeline struct {
	provider Provider
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	opts     Options

	// group coalesces in-flight fetches per coordinate key: a caller for a
	// key that is already Fetching attaches to the existing call and shares
	// its result or failure. The group owns the only mutable shared state of
	// the pipeline.
	group singleflight.Group
}

// NewPipeline creates a Pipeline. WindowDays defaults to 7.
func NewPipeline(provider Provider, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger, opts Options) *Pipeline {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 7
	}
	if opts.PollDelay <= 0 {
		opts.PollDelay = 2 * time.Second
	}
	if opts.PollMaxAttempts <= 0 {
		opts.PollMaxAttempts = 5
	}
	return &Pipeline{
		provider: provider,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
	}
}

// WindowDays reports the configured window length.
func (p *Pipeline) WindowDays() int {
	return p.opts.WindowDays
}

// coalescingKey rounds the coordinate so requests for effectively the same
// point share one upstream call. 4 decimals is ~11 m.
func coalescingKey(lat, lon float64, days int) string {
	return fmt.Sprintf("%.4f:%.4f:%d", lat, lon, days)
}

// RawSeries returns the observed (pre-interpolation) points of the trailing
// window, coalescing concurrent identical requests into a single upstream
// fetch.
func (p *Pipeline) RawSeries(ctx context.Context, lat, lon float64, days int) ([]RawPoint, error) {
	if days <= 0 {
		days = p.opts.WindowDays
	}

	key := coalescingKey(lat, lon, days)
	v, err, shared := p.group.Do(key, func() (interface{}, error) {
		window := Window(p.clock.Now(), days)
		from, to := window[0], window[len(window)-1]

		start := p.clock.Now()
		points, err := p.provider.Timeseries(ctx, lat, lon, from, to)
		p.metrics.NdviFetchDuration.Observe(p.clock.Since(start).Seconds())
		if err != nil {
			p.metrics.NdviFetches.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("ndvi timeseries fetch: %w", err)
		}
		if len(points) == 0 {
			p.metrics.NdviFetches.WithLabelValues("empty").Inc()
		} else {
			p.metrics.NdviFetches.WithLabelValues("success").Inc()
		}
		return points, nil
	})
	if shared {
		p.metrics.NdviCoalesced.Inc()
	}
	if err != nil {
		return nil, err
	}
	// The slice is shared between all attached callers; treat it as
	// read-only.
	return v.([]RawPoint), nil
}

// Series returns the interpolated trailing-window series for a coordinate.
// With zero raw observations the result is the empty series; otherwise it
// has exactly WindowDays points, one per calendar day.
func (p *Pipeline) Series(ctx context.Context, lat, lon float64) ([]TimeseriesPoint, error) {
	raw, err := p.RawSeries(ctx, lat, lon, p.opts.WindowDays)
	if err != nil {
		return nil, err
	}
	window := Window(p.clock.Now(), p.opts.WindowDays)
	return Interpolate(window, raw), nil
}

// SeriesChange returns last-minus-first mean over a full-length series, or
// ok=false when the series is absent or partial.
func (p *Pipeline) SeriesChange(series []TimeseriesPoint) (float64, bool) {
	return Change(series, p.opts.WindowDays)
}

// Run computes on-demand NDVI statistics for an area and polls for the
// rendered visual within a bounded retry budget. Exhausting the budget still
// returns the numeric stats, with the image flagged unavailable.
func (p *Pipeline) Run(ctx context.Context, lat, lon, radiusM float64) (RunResult, error) {
	stats, ok, err := p.provider.Stats(ctx, lat, lon, radiusM)
	if err != nil {
		return RunResult{}, fmt.Errorf("ndvi stats: %w", err)
	}

	job := uuid.NewString()
	if !ok {
		return RunResult{Status: RunNoValidData, Job: job}, nil
	}

	result := RunResult{Status: RunOK, Stats: &stats, Job: job}

	url, err := p.pollImage(ctx, job)
	if err != nil {
		p.metrics.NdviImageTimeouts.Inc()
		p.logger.Warn("ndvi image unavailable after polling", "job", job, "error", err)
		result.ImageUnavailable = true
		return result, nil
	}
	result.ImageURL = url
	return result, nil
}

// pollImage retries the image lookup with a fixed delay and a fixed maximum
// attempt count.
func (p *Pipeline) pollImage(ctx context.Context, job string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < p.opts.PollMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-p.clock.After(p.opts.PollDelay):
			}
		}

		url, err := p.provider.Image(ctx, job)
		if err == nil {
			return url, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("image polling budget exhausted: %w", lastErr)
}
