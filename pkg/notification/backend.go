package notification

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPage is returned for page or page size values below 1 and page
// sizes above MaxPageSize.
var ErrInvalidPage = errors.New("invalid page parameters")

// MaxPageSize is the largest page size served.
const MaxPageSize = 1000

// BackendConfig holds the in-memory backend configuration.
type BackendConfig struct {
	// TotalItems is the size of the generated notification list.
	TotalItems int

	// NotViewedCount is reported with every page.
	NotViewedCount int

	// Delay simulates backend latency for every page request.
	Delay time.Duration

	// Now is the clock used for item timestamps (default time.Now).
	Now func() time.Time
}

// DefaultBackendConfig returns the demo backend: 1000 notifications, 10
// unread, 2s latency.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		TotalItems:     1000,
		NotViewedCount: 10,
		Delay:          2 * time.Second,
		Now:            time.Now,
	}
}

// Backend generates pages of notifications. Item i (0-based) is
// "notif-{i+1}" titled "Notification {i+1}", one minute older than item i-1.
type Backend struct {
	config BackendConfig
}

// NewBackend creates a backend.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.TotalItems < 0 {
		cfg.TotalItems = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Backend{config: cfg}
}

// TotalItems returns the size of the list.
func (b *Backend) TotalItems() int {
	return b.config.TotalItems
}

// GetNotifications returns page (1-based) of size pageSize after the
// configured delay.
func (b *Backend) GetNotifications(ctx context.Context, page, pageSize int) (Response, error) {
	if page < 1 || pageSize < 1 || pageSize > MaxPageSize {
		return Response{}, fmt.Errorf("%w: page=%d page_size=%d", ErrInvalidPage, page, pageSize)
	}

	if b.config.Delay > 0 {
		timer := time.NewTimer(b.config.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-timer.C:
		}
	}

	total := b.config.TotalItems
	totalPages := (total + pageSize - 1) / pageSize
	// Pages past the end are empty; checking before multiplying keeps
	// (page-1)*pageSize from overflowing.
	start, end := total, total
	if page-1 < totalPages {
		start = (page - 1) * pageSize
		end = min(start+pageSize, total)
	}

	now := b.config.Now()
	items := make([]Item, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, At(i, now))
	}

	return Response{
		Page: PageData{
			Items:      items,
			TotalItems: total,
			TotalPages: totalPages,
		},
		NotViewedCount: b.config.NotViewedCount,
	}, nil
}

// At returns the generated item at 0-based index i relative to now.
func At(i int, now time.Time) Item {
	return Item{
		ID:        fmt.Sprintf("notif-%d", i+1),
		Timestamp: now.Add(-time.Duration(i) * time.Minute).UTC(),
		Title:     fmt.Sprintf("Notification %d", i+1),
	}
}
