package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/notification-window/internal/testutil"
	"github.com/Sternrassler/notification-window/pkg/cache"
	"github.com/Sternrassler/notification-window/pkg/notification"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func newTestClient(t *testing.T, mock *testutil.MockAPI, redisClient *redis.Client) *Client {
	t.Helper()

	cfg := DefaultConfig(mock.URL(), "NotificationWindowTest/1.0")
	cfg.Redis = redisClient
	cfg.RateLimit = 0
	cfg.InitialBackoff = time.Millisecond

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config without redis",
			config: DefaultConfig("http://localhost:8080", "TestApp/1.0.0"),
		},
		{
			name:        "empty base url",
			config:      Config{UserAgent: "TestApp/1.0.0"},
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "relative base url",
			config:      Config{BaseURL: "localhost", UserAgent: "TestApp/1.0.0"},
			expectError: true,
			errorMsg:    `invalid base url "localhost"`,
		},
		{
			name:        "empty user agent",
			config:      Config{BaseURL: "http://localhost:8080"},
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "negative rate limit",
			config:      Config{BaseURL: "http://localhost:8080", UserAgent: "TestApp/1.0.0", RateLimit: -1},
			expectError: true,
			errorMsg:    "rate_limit must be >= 0 (got -1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if client == nil {
				t.Error("Client is nil")
			}
			if client.cache != nil {
				t.Error("cache should be disabled without redis")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("http://localhost:8080", "TestApp/1.0.0")

	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.UserAgent != "TestApp/1.0.0" {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.RateLimit != 10 {
		t.Errorf("RateLimit = %v, want 10", cfg.RateLimit)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestFetchPage(t *testing.T) {
	mock := testutil.NewMockAPI(1000)
	defer mock.Close()
	c := newTestClient(t, mock, nil)

	page, err := c.FetchPage(context.Background(), 3, 10)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if len(page.Items) != 10 {
		t.Fatalf("items = %d, want 10", len(page.Items))
	}
	if page.Items[0].Title != "Notification 21" {
		t.Errorf("first title = %q, want Notification 21", page.Items[0].Title)
	}
	if page.TotalItems != 1000 || page.TotalPages != 100 {
		t.Errorf("totals = %d items / %d pages, want 1000 / 100", page.TotalItems, page.TotalPages)
	}
	if page.NotViewedCount != 10 {
		t.Errorf("NotViewedCount = %d, want 10", page.NotViewedCount)
	}

	reqs := mock.GetPageRequests()
	if len(reqs) != 1 || reqs[0] != (testutil.PageRequest{Page: 3, PageSize: 10}) {
		t.Errorf("page requests = %v, want [{3 10}]", reqs)
	}
}

func TestGetNotifications_HeadersSet(t *testing.T) {
	mock := testutil.NewMockAPI(10)
	defer mock.Close()
	c := newTestClient(t, mock, nil)

	if _, err := c.GetNotifications(context.Background(), 1, 5); err != nil {
		t.Fatalf("GetNotifications() error = %v", err)
	}

	if got := mock.LastRequestHeader.Get("User-Agent"); got != "NotificationWindowTest/1.0" {
		t.Errorf("User-Agent = %q", got)
	}
	if got := mock.LastRequestHeader.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q", got)
	}
}

func TestGetNotifications_InvalidPage(t *testing.T) {
	mock := testutil.NewMockAPI(10)
	defer mock.Close()
	c := newTestClient(t, mock, nil)

	_, err := c.GetNotifications(context.Background(), 0, 10)
	if !errors.Is(err, notification.ErrInvalidPage) {
		t.Errorf("error = %v, want ErrInvalidPage", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("requests = %d, want 0", mock.GetRequestCount())
	}
}

func TestGetNotifications_RetryOnServerError(t *testing.T) {
	mock := testutil.NewMockAPI(100)
	defer mock.Close()
	mock.FailNext(2, testutil.NewServerErrorResponse())
	c := newTestClient(t, mock, nil)

	resp, err := c.GetNotifications(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("GetNotifications() error = %v", err)
	}
	if len(resp.Page.Items) != 10 {
		t.Errorf("items = %d, want 10", len(resp.Page.Items))
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
}

func TestGetNotifications_RetryOnRateLimit(t *testing.T) {
	mock := testutil.NewMockAPI(100)
	defer mock.Close()
	mock.FailNext(1, testutil.NewRateLimitResponse())
	c := newTestClient(t, mock, nil)

	if _, err := c.GetNotifications(context.Background(), 1, 10); err != nil {
		t.Fatalf("GetNotifications() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestGetNotifications_NoRetryOnClientError(t *testing.T) {
	mock := testutil.NewMockAPI(100)
	defer mock.Close()
	mock.FailNext(1, testutil.NewBadRequestResponse())
	c := newTestClient(t, mock, nil)

	_, err := c.GetNotifications(context.Background(), 1, 10)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("APIError = %+v, want 400 client", apiErr)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("client errors must not be retried")
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestGetNotifications_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockAPI(100)
	defer mock.Close()
	mock.FailNext(5, testutil.NewServerErrorResponse())

	c := newTestClient(t, mock, nil)
	c.config.MaxRetries = 2

	_, err := c.GetNotifications(context.Background(), 1, 10)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("error = %v, want ErrRetryExhausted", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("last error = %v, want 500 APIError", err)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestGetNotifications_BlockedByErrorLimit(t *testing.T) {
	mock := testutil.NewMockAPI(100)
	defer mock.Close()
	mock.FailNext(1, testutil.NewCriticalErrorLimitResponse())

	c := newTestClient(t, mock, nil)
	c.config.MaxRetries = 1

	if _, err := c.GetNotifications(context.Background(), 1, 10); err == nil {
		t.Fatal("first request should fail")
	}

	_, err := c.GetNotifications(context.Background(), 1, 10)
	if !errors.Is(err, ErrRequestBlocked) {
		t.Errorf("error = %v, want ErrRequestBlocked", err)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1 (second blocked locally)", got)
	}
}

func TestGetNotifications_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockAPI(100)
	defer mock.Close()
	mock.SetResponse(notification.Path, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Delay:      200 * time.Millisecond,
	})
	c := newTestClient(t, mock, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.GetNotifications(ctx, 1, 10)
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1 (no retry after cancellation)", got)
	}
}

func TestGetNotifications_Pacing(t *testing.T) {
	mock := testutil.NewMockAPI(100)
	defer mock.Close()

	cfg := DefaultConfig(mock.URL(), "NotificationWindowTest/1.0")
	cfg.RateLimit = 20
	cfg.Burst = 1
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	for page := 1; page <= 3; page++ {
		if _, err := c.GetNotifications(context.Background(), page, 10); err != nil {
			t.Fatalf("GetNotifications(%d) error = %v", page, err)
		}
	}

	// Burst 1 at 20/s: the 2nd and 3rd request wait ~50ms each.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("three paced requests took %v, want >= 80ms", elapsed)
	}
}

func TestGetNotifications_CacheHit(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockAPI(100)
	defer mock.Close()
	c := newTestClient(t, mock, redisClient)
	ctx := context.Background()

	first, err := c.GetNotifications(ctx, 2, 10)
	if err != nil {
		t.Fatalf("first GetNotifications() error = %v", err)
	}
	second, err := c.GetNotifications(ctx, 2, 10)
	if err != nil {
		t.Fatalf("second GetNotifications() error = %v", err)
	}

	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1 (second served from cache)", got)
	}
	if first.Page.Items[0].ID != second.Page.Items[0].ID {
		t.Errorf("cached page differs: %q vs %q", first.Page.Items[0].ID, second.Page.Items[0].ID)
	}
}

func TestGetNotifications_Revalidate304(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockAPI(100)
	defer mock.Close()
	c := newTestClient(t, mock, redisClient)
	ctx := context.Background()

	if _, err := c.GetNotifications(ctx, 1, 10); err != nil {
		t.Fatalf("GetNotifications() error = %v", err)
	}

	// Age the cached page past its Expires; it stays for revalidation.
	key := cache.PageKey(notification.Path, 1, 10)
	if err := c.cache.UpdateTTL(ctx, key, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("UpdateTTL() error = %v", err)
	}

	resp, err := c.GetNotifications(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetNotifications() after expiry error = %v", err)
	}
	if resp.Page.Items[0].Title != "Notification 1" {
		t.Errorf("first title = %q, want Notification 1", resp.Page.Items[0].Title)
	}
	if got := mock.GetConditionalCount(); got != 1 {
		t.Errorf("conditional requests = %d, want 1", got)
	}

	// The 304 refreshed Expires, so the next read is a cache hit.
	if _, err := c.GetNotifications(ctx, 1, 10); err != nil {
		t.Fatalf("GetNotifications() after 304 error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestInvalidate(t *testing.T) {
	mock := testutil.NewMockAPI(100)
	defer mock.Close()

	if err := newTestClient(t, mock, nil).Invalidate(context.Background()); err != nil {
		t.Errorf("Invalidate() without cache error = %v", err)
	}

	redisClient := setupTestRedis(t)
	c := newTestClient(t, mock, redisClient)
	ctx := context.Background()

	if _, err := c.GetNotifications(ctx, 1, 10); err != nil {
		t.Fatalf("GetNotifications() error = %v", err)
	}
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := c.GetNotifications(ctx, 1, 10); err != nil {
		t.Fatalf("GetNotifications() error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2 after invalidation", got)
	}
}
