// Package cache keeps notification page responses in Redis.
//
// Pages are cached until their Expires header and then kept for a
// revalidate window, so the next request for the same page can be sent
// with If-None-Match and answered by a 304 Not Modified.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//	key := cache.PageKey("/v1/notifications", 1, 10)
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch the page
//	}
//
// # Conditional Requests
//
//	if stale, err := manager.GetStale(ctx, key); err == nil {
//		cache.AddConditionalHeaders(req, stale)
//	}
//
// On 304 the stale entry is refreshed with UpdateTTL. On 200 the response
// is converted with ResponseToEntry and stored with Set. Purge drops every
// page of an endpoint, e.g. after a pull-to-refresh.
//
// # Metrics
//
//   - notify_cache_hits_total{layer="redis"}
//   - notify_cache_misses_total
//   - notify_cache_bytes_written_total{layer="redis"}
//   - notify_304_responses_total
//   - notify_cache_errors_total{operation}
package cache
