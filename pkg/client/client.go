// Package client is the HTTP client for the notifications API. It paces
// requests, respects the server's error limit, caches pages in Redis with
// ETag revalidation and retries transient failures.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/notification-window/pkg/cache"
	"github.com/Sternrassler/notification-window/pkg/loader"
	"github.com/Sternrassler/notification-window/pkg/logging"
	"github.com/Sternrassler/notification-window/pkg/notification"
	"github.com/Sternrassler/notification-window/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_requests_total",
		Help: "Total notifications API requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notify_request_duration_seconds",
		Help:    "Notifications API page fetch duration in seconds, retries included",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_errors_total",
		Help: "Total notifications API errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the notifications API, e.g. "http://localhost:8080".
	BaseURL string

	// UserAgent is sent with every request.
	UserAgent string

	// Redis enables the page cache and the shared error limit state.
	// Without it pages are not cached and the error limit is tracked in process.
	Redis *redis.Client

	// RateLimit is the sustained request rate per second, 0 for no pacing.
	RateLimit float64
	Burst     int

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries overrides the per-class attempt count when > 0.
	MaxRetries int
	// InitialBackoff overrides the per-class first backoff when > 0.
	InitialBackoff time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		RateLimit: 10,
		Burst:     5,
		Timeout:   30 * time.Second,
	}
}

// Client fetches notification pages.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	limiter     *rate.Limiter
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger := logging.NewLogger("notifications-client")

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     base,
		limiter:     rate.NewLimiter(limit, burst),
		rateLimiter: ratelimit.NewTracker(cfg.Redis, logger),
		cache:       cacheManager,
		config:      cfg,
		logger:      logger,
	}, nil
}

// FetchPage returns one page of notifications in the loader's page shape.
func (c *Client) FetchPage(ctx context.Context, page, pageSize int) (loader.Page[notification.Item], error) {
	resp, err := c.GetNotifications(ctx, page, pageSize)
	if err != nil {
		return loader.Page[notification.Item]{}, err
	}
	return loader.Page[notification.Item]{
		Items:          resp.Page.Items,
		TotalItems:     resp.Page.TotalItems,
		TotalPages:     resp.Page.TotalPages,
		NotViewedCount: resp.NotViewedCount,
	}, nil
}

// GetNotifications performs GET /v1/notifications?page=N&page_size=M.
//
// A fresh cached page is returned without a request. A stale cached page is
// revalidated with If-None-Match and reused on 304.
func (c *Client) GetNotifications(ctx context.Context, page, pageSize int) (*notification.Response, error) {
	if page < 1 || pageSize < 1 {
		return nil, fmt.Errorf("%w: page=%d page_size=%d", notification.ErrInvalidPage, page, pageSize)
	}

	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	cacheKey := cache.PageKey(notification.Path, page, pageSize)

	var cachedEntry *cache.CacheEntry
	if c.cache != nil {
		entry, err := c.cache.GetStale(ctx, cacheKey)
		switch {
		case err == nil && !entry.IsExpired():
			cache.CacheHits.WithLabelValues("redis").Inc()
			c.logger.Debug().Int("page", page).Int("page_size", pageSize).Msg("Serving page from cache")
			requestsTotal.WithLabelValues("cached").Inc()
			return decodePage(entry.Data)
		case err == nil:
			cache.CacheMisses.Inc()
			cachedEntry = entry
		case errors.Is(err, cache.ErrCacheMiss):
			cache.CacheMisses.Inc()
		default:
			c.logger.Warn().Err(err).Int("page", page).Msg("Cache get error")
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
	}

	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Rate limit check failed")
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		requestsTotal.WithLabelValues("blocked").Inc()
		return nil, ErrRequestBlocked
	}

	var (
		status int
		body   []byte
		header http.Header
	)

	retryErr := retryWithBackoff(ctx, c.logger, c.retryConfigFor, func() (ErrorClass, error) {
		resp, err := c.do(ctx, page, pageSize, cachedEntry)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
			}
			c.logger.Warn().Err(err).Int("page", page).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues("network_error").Inc()
			return ErrorClassNetwork, err
		}
		defer resp.Body.Close()

		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
		requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			errorClass := classifyStatus(resp.StatusCode)
			errorsTotal.WithLabelValues(string(errorClass)).Inc()
			c.logger.Warn().
				Int("page", page).
				Int("status", resp.StatusCode).
				Str("error_class", string(errorClass)).
				Msg("Notifications API error")
			return errorClass, &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: errorClass,
				Message:    resp.Status,
			}
		}

		status, header = resp.StatusCode, resp.Header
		if resp.StatusCode == http.StatusOK {
			entry, err := cache.ResponseToEntry(resp)
			if err != nil {
				return ErrorClassNetwork, fmt.Errorf("page response: %w", err)
			}
			body = entry.Data
			c.store(ctx, cacheKey, entry)
		}
		return "", nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	if status == http.StatusNotModified {
		if cachedEntry == nil {
			return nil, &APIError{StatusCode: status, ErrorClass: ErrorClassClient, Message: "304 without cached page"}
		}
		cache.ConditionalRequests.Inc()
		c.logger.Debug().Int("page", page).Msg("304 Not Modified, using cached page")
		if c.cache != nil {
			if err := c.cache.UpdateTTL(ctx, cacheKey, cache.ParseExpires(header)); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
			}
		}
		return decodePage(cachedEntry.Data)
	}

	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: fmt.Sprintf("unexpected status %d", status)}
	}

	return decodePage(body)
}

// Invalidate drops every cached page, e.g. before a full reload.
func (c *Client) Invalidate(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	deleted, err := c.cache.Purge(ctx, notification.Path)
	if err != nil {
		return fmt.Errorf("purge page cache: %w", err)
	}
	c.logger.Info().Int("pages", deleted).Msg("Page cache invalidated")
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimiter returns the error limit tracker.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}

func (c *Client) do(ctx context.Context, page, pageSize int, cached *cache.CacheEntry) (*http.Response, error) {
	u := c.baseURL.JoinPath(notification.Path)
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	if cached != nil && cache.ShouldMakeConditionalRequest(cached) {
		cache.AddConditionalHeaders(req, cached)
		c.logger.Debug().
			Int("page", page).
			Str("etag", cached.ETag).
			Msg("Making conditional request")
	}

	return c.httpClient.Do(req)
}

func (c *Client) store(ctx context.Context, key cache.CacheKey, entry *cache.CacheEntry) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache page")
		return
	}
	c.logger.Debug().Str("key", key.String()).Dur("ttl", entry.TTL()).Msg("Cached page")
}

func (c *Client) retryConfigFor(errorClass ErrorClass) RetryConfig {
	cfg := RetryConfigForErrorClass(errorClass)
	if c.config.MaxRetries > 0 {
		cfg.MaxAttempts = c.config.MaxRetries
	}
	if c.config.InitialBackoff > 0 {
		cfg.InitialBackoff = c.config.InitialBackoff
		if cfg.MaxBackoff < cfg.InitialBackoff {
			cfg.MaxBackoff = cfg.InitialBackoff
		}
	}
	return cfg
}

func decodePage(data []byte) (*notification.Response, error) {
	var resp notification.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode notifications page: %w", err)
	}
	return &resp, nil
}
