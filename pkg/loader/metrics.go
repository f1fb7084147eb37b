package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for row loading.
var (
	// FetchesTotal counts window fetches by outcome.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowcache_fetches_total",
			Help: "Total number of row window fetches by outcome",
		},
		[]string{"outcome"}, // "resolved", "failed", "cancelled"
	)

	// FetchDuration observes how long a window stays in flight.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rowcache_fetch_duration_seconds",
			Help:    "Duration of row window fetches in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	// PendingRows tracks rows currently marked pending across loaders.
	PendingRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rowcache_pending_rows",
			Help: "Number of rows with a fetch in flight",
		},
	)

	// RowsResolved counts rows written by merges.
	RowsResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowcache_rows_resolved_total",
			Help: "Total number of rows resolved from fetch responses",
		},
	)
)
