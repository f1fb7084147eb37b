package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh cache hits by layer.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks cache misses, including stale entries.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// CacheBytesWritten tracks the bytes stored per layer.
	CacheBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_cache_bytes_written_total",
			Help: "Total bytes written to the page cache",
		},
		[]string{"layer"},
	)

	// ConditionalRequests tracks 304 Not Modified responses.
	ConditionalRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "purge"
	)
)
