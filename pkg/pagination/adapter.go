package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/notification-window/pkg/loader"
	"github.com/Sternrassler/notification-window/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds adapter configuration.
type Config struct {
	// Align slices the covering backend pages so Items[0] is row Start.
	// When false the loader's (Page, PageSize) is passed through unchanged.
	Align bool

	// MaxConcurrency is the maximum number of parallel page requests.
	MaxConcurrency int

	// Timeout per page fetch, 0 for none beyond the caller's context.
	Timeout time.Duration
}

// DefaultConfig returns the aligned configuration.
func DefaultConfig() Config {
	return Config{
		Align:          true,
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// PageFetcher fetches one page of a paginated collection.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, page, pageSize int) (loader.Page[T], error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc[T any] func(ctx context.Context, page, pageSize int) (loader.Page[T], error)

// FetchPage calls f(ctx, page, pageSize).
func (f PageFetcherFunc[T]) FetchPage(ctx context.Context, page, pageSize int) (loader.Page[T], error) {
	return f(ctx, page, pageSize)
}

// Adapter turns a PageFetcher into a loader.Fetcher.
//
// The loader still issues one Fetch per window. In aligned mode a window that
// does not start on a page boundary costs two backend calls, e.g. rows 5-14
// with page size 10 read pages 1 and 2.
type Adapter[T any] struct {
	fetcher PageFetcher[T]
	config  Config
	logger  zerolog.Logger
}

// NewAdapter creates an adapter over fetcher.
func NewAdapter[T any](fetcher PageFetcher[T], config Config) *Adapter[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout < 0 {
		config.Timeout = 0
	}
	return &Adapter[T]{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("pagination"),
	}
}

// Fetch implements loader.Fetcher.
func (a *Adapter[T]) Fetch(ctx context.Context, req loader.Request) (loader.Page[T], error) {
	if !a.config.Align {
		return a.fetchOne(ctx, req.Page, req.PageSize)
	}
	return a.fetchAligned(ctx, req)
}

// CoveringPages returns the 1-based pages of size pageSize that hold rows
// [start, start+pageSize).
func CoveringPages(start, pageSize int) []int {
	if pageSize < 1 || start < 0 {
		return nil
	}
	first := start/pageSize + 1
	last := (start+pageSize-1)/pageSize + 1
	pages := make([]int, 0, last-first+1)
	for p := first; p <= last; p++ {
		pages = append(pages, p)
	}
	return pages
}

func (a *Adapter[T]) fetchAligned(ctx context.Context, req loader.Request) (loader.Page[T], error) {
	pages := CoveringPages(req.Start, req.PageSize)
	if len(pages) == 0 {
		return loader.Page[T]{}, fmt.Errorf("invalid window start=%d page_size=%d", req.Start, req.PageSize)
	}
	if len(pages) == 1 {
		return a.fetchOne(ctx, pages[0], req.PageSize)
	}

	results, err := a.FetchPages(ctx, pages, req.PageSize)
	if err != nil {
		return loader.Page[T]{}, err
	}

	var out loader.Page[T]
	items := make([]T, 0, len(pages)*req.PageSize)
	for _, p := range pages {
		page := results[p]
		items = append(items, page.Items...)
		out.TotalItems = page.TotalItems
		out.TotalPages = page.TotalPages
		out.NotViewedCount = page.NotViewedCount
	}

	offset := req.Start - (pages[0]-1)*req.PageSize
	if offset > len(items) {
		offset = len(items)
	}
	end := min(offset+req.PageSize, len(items))
	out.Items = items[offset:end]

	a.logger.Debug().
		Int("start", req.Start).
		Int("page_size", req.PageSize).
		Ints("pages", pages).
		Int("items", len(out.Items)).
		Msg("Assembled aligned window")

	return out, nil
}

// FetchPages fetches pages concurrently, bounded by MaxConcurrency. The first
// failure cancels the remaining requests.
func (a *Adapter[T]) FetchPages(ctx context.Context, pages []int, pageSize int) (map[int]loader.Page[T], error) {
	results := make([]loader.Page[T], len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.MaxConcurrency)

	for i, p := range pages {
		g.Go(func() error {
			page, err := a.fetchOne(gctx, p, pageSize)
			if err != nil {
				return fmt.Errorf("page %d: %w", p, err)
			}
			results[i] = page
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.logger.Warn().Err(err).Ints("pages", pages).Msg("Page fetch failed")
		return nil, err
	}

	out := make(map[int]loader.Page[T], len(pages))
	for i, p := range pages {
		out[p] = results[i]
	}
	return out, nil
}

func (a *Adapter[T]) fetchOne(ctx context.Context, page, pageSize int) (loader.Page[T], error) {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}
	return a.fetcher.FetchPage(ctx, page, pageSize)
}
