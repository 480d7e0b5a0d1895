package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// advisory service.
type Metrics struct {
	RuleEvaluations prometheus.Counter
	RulesFired      *prometheus.CounterVec // labels: category
	AdvisoriesBuilt prometheus.Counter

	// Vegetation-index pipeline metrics.
	NdviFetches        *prometheus.CounterVec // labels: outcome={success,error,empty}
	NdviCoalesced      prometheus.Counter
	NdviFetchDuration  prometheus.Histogram
	NdviImageTimeouts  prometheus.Counter

	// Dashboard composition metrics.
	DashboardSectionFailures *prometheus.CounterVec // labels: section
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RuleEvaluations,
		m.RulesFired,
		m.AdvisoriesBuilt,
		m.NdviFetches,
		m.NdviCoalesced,
		m.NdviFetchDuration,
		m.NdviImageTimeouts,
		m.DashboardSectionFailures,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RuleEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crop_advisory",
			Name:      "rule_evaluations_total",
			Help:      "Total rule evaluation passes over a feature set.",
		}),
		RulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crop_advisory",
			Name:      "rules_fired_total",
			Help:      "Fired rules by category.",
		}, []string{"category"}),
		AdvisoriesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crop_advisory",
			Name:      "advisories_built_total",
			Help:      "Total advisories assembled.",
		}),
		NdviFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crop_advisory",
			Name:      "ndvi_fetches_total",
			Help:      "Upstream NDVI time-series fetches by outcome.",
		}, []string{"outcome"}),
		NdviCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crop_advisory",
			Name:      "ndvi_coalesced_total",
			Help:      "Requests that attached to an already in-flight fetch.",
		}),
		NdviFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crop_advisory",
			Name:      "ndvi_fetch_duration_seconds",
			Help:      "Upstream NDVI fetch duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		NdviImageTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crop_advisory",
			Name:      "ndvi_image_timeouts_total",
			Help:      "NDVI visual artifacts that never became available within the polling budget.",
		}),
		DashboardSectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crop_advisory",
			Name:      "dashboard_section_failures_total",
			Help:      "Dashboard sections degraded to unavailable, by section.",
		}, []string{"section"}),
	}
}
