package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/notification-window/pkg/client"
	"github.com/Sternrassler/notification-window/pkg/notification"
	"github.com/redis/go-redis/v9"
)

func newTestServer(t *testing.T, redisClient *redis.Client) *httptest.Server {
	t.Helper()
	backend := notification.NewBackend(notification.BackendConfig{TotalItems: 95, NotViewedCount: 4})
	srv := httptest.NewServer(newMux(notification.NewHandler(backend, notification.DefaultHandlerConfig()), redisClient))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(nil)(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestHealthEndpoint_RedisDown(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer redisClient.Close()

	w := httptest.NewRecorder()
	healthHandler(redisClient)(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	// A client registers the notify_* metrics and its tracker sets the gauge.
	if _, err := client.New(client.DefaultConfig(srv.URL, "test/1.0")); err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "# HELP") || !strings.Contains(string(body), "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(string(body), "rowcache_pending_rows") {
		t.Error("Expected metrics output to contain rowcache_pending_rows")
	}
}

func TestNotificationsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantItems  int
		wantFirst  string
	}{
		{"first page", "?page=1&page_size=10", http.StatusOK, 10, "notif-1"},
		{"defaults", "", http.StatusOK, 10, "notif-1"},
		{"last partial page", "?page=10&page_size=10", http.StatusOK, 5, "notif-91"},
		{"past the end", "?page=11&page_size=10", http.StatusOK, 0, ""},
		{"bad page", "?page=0", http.StatusBadRequest, 0, ""},
		{"not a number", "?page_size=ten", http.StatusBadRequest, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + notification.Path + tt.query)
			if err != nil {
				t.Fatalf("GET error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var page notification.Response
			if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if len(page.Page.Items) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(page.Page.Items), tt.wantItems)
			}
			if page.Page.TotalItems != 95 || page.NotViewedCount != 4 {
				t.Errorf("totals = %d / %d, want 95 / 4", page.Page.TotalItems, page.NotViewedCount)
			}
			if tt.wantItems > 0 && page.Page.Items[0].ID != tt.wantFirst {
				t.Errorf("first id = %q, want %q", page.Page.Items[0].ID, tt.wantFirst)
			}
		})
	}
}

func TestNotificationsEndpoint_ThroughClient(t *testing.T) {
	srv := newTestServer(t, nil)

	c, err := client.New(client.DefaultConfig(srv.URL, "test/1.0"))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	page, err := c.FetchPage(ctx, 3, 20)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if len(page.Items) != 20 || page.Items[0].ID != "notif-41" {
		t.Errorf("page 3 = %d items starting at %v", len(page.Items), page.Items)
	}
	if page.TotalPages != 5 {
		t.Errorf("TotalPages = %d, want 5", page.TotalPages)
	}
}
