package loader

import "context"

// Request describes one window handed to a Fetcher.
type Request struct {
	// Start and Stop bound the requested window (inclusive).
	Start int
	Stop  int

	// Page is the 1-based backend page derived as Start/PageSize + 1.
	Page int

	// PageSize is the snapped batch size, max(Stop-Start+1, MinimumBatchSize).
	PageSize int
}

// Size returns the number of rows in the requested window.
func (r Request) Size() int {
	return r.Stop - r.Start + 1
}

// Page is one backend response.
type Page[T any] struct {
	// Items are ordered; Items[0] belongs at Request.Start.
	Items []T

	TotalItems     int
	TotalPages     int
	NotViewedCount int
}

// Fetcher loads the items of a window. Implementations must honour ctx
// cancellation. Completion order relative to other calls is not guaranteed.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, req Request) (Page[T], error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc[T any] func(ctx context.Context, req Request) (Page[T], error)

// Fetch calls f(ctx, req).
func (f FetcherFunc[T]) Fetch(ctx context.Context, req Request) (Page[T], error) {
	return f(ctx, req)
}
