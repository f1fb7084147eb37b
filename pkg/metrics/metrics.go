// Package metrics exposes the Prometheus registry shared by the row cache and
// the notifications client. Metrics are defined in their own packages
// (loader, client, cache, ratelimit) via promauto; this package serves them
// and documents the catalogue.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers its metrics with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Metric prefixes.
const (
	PrefixRowCache = "rowcache_"
	PrefixNotify   = "notify_"
)

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Owned reports whether name belongs to this module's catalogue.
func Owned(name string) bool {
	return strings.HasPrefix(name, PrefixRowCache) || strings.HasPrefix(name, PrefixNotify)
}

// Catalogue
//
// Row loading (pkg/loader):
//   - rowcache_fetches_total{outcome} (Counter): window fetches by outcome (resolved, failed, cancelled)
//   - rowcache_fetch_duration_seconds (Histogram): time a window stays in flight
//   - rowcache_pending_rows (Gauge): rows with a fetch in flight
//   - rowcache_rows_resolved_total (Counter): rows written by merges
//
// Error limit (pkg/ratelimit):
//   - notify_errors_remaining (Gauge): errors left in the API error window
//   - notify_rate_limit_blocks_total (Counter): requests blocked at the critical threshold
//   - notify_rate_limit_throttles_total (Counter): requests throttled in the warning range
//
// Page cache (pkg/cache):
//   - notify_cache_hits_total{layer} (Counter)
//   - notify_cache_misses_total (Counter): misses, stale entries included
//   - notify_cache_bytes_written_total{layer} (Counter)
//   - notify_304_responses_total (Counter): revalidations answered with 304
//   - notify_cache_errors_total{operation} (Counter)
//
// Requests (pkg/client):
//   - notify_requests_total{status} (Counter): by HTTP status, "cached", "blocked" or "network_error"
//   - notify_request_duration_seconds (Histogram): page fetch duration, retries included
//   - notify_errors_total{class} (Counter): by class (client, server, rate_limit, network)
//   - notify_retries_total{error_class} (Counter)
//   - notify_retry_backoff_seconds{error_class} (Histogram)
//   - notify_retry_exhausted_total{error_class} (Counter)
//
// Example queries:
//
//	# Rows waiting on the API
//	rowcache_pending_rows
//
//	# Failed window ratio
//	sum(rate(rowcache_fetches_total{outcome="failed"}[5m])) / sum(rate(rowcache_fetches_total[5m]))
//
//	# Cache hit rate
//	sum(rate(notify_cache_hits_total[5m])) /
//	(sum(rate(notify_cache_hits_total[5m])) + sum(rate(notify_cache_misses_total[5m])))
//
//	# P95 page latency
//	histogram_quantile(0.95, rate(notify_request_duration_seconds_bucket[5m]))
