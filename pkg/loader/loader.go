package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/notification-window/pkg/logging"
	"github.com/Sternrassler/notification-window/pkg/rowstore"
	"github.com/rs/zerolog"
)

// Config holds the loader configuration.
type Config struct {
	// MinimumBatchSize is the smallest page size requested from the fetcher.
	MinimumBatchSize int

	// FetchTimeout bounds each fetch (0 = no timeout). A timed-out fetch
	// fails its window.
	FetchTimeout time.Duration

	// OnUpdate is called after every merge, failure or release, outside the
	// loader's lock. Optional.
	OnUpdate func(Update)
}

// DefaultConfig returns the batching used by the notification list.
func DefaultConfig() Config {
	return Config{
		MinimumBatchSize: 10,
	}
}

// Outcome describes how a window finished.
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeFailed   Outcome = "failed"
	OutcomeReleased Outcome = "cancelled"
)

// Update is delivered to Config.OnUpdate when a window finishes.
type Update struct {
	Request Request
	Outcome Outcome

	// Rows is the number of rows written, failed or released.
	Rows int

	// Total is the known total row count after the update (0 if unknown).
	Total int

	Err error
}

// Summary is the result of Prime.
type Summary struct {
	TotalItems     int
	NotViewedCount int
}

// Stats is a point-in-time view of the loader.
type Stats struct {
	Rows       int
	Resolved   int
	Pending    int
	InFlight   int
	Total      int
	TotalKnown bool
}

// Loader turns "ensure rows [start, stop] are loaded" requests into fetches
// and merges the results into a sparse row store.
//
// Pending rows count as loaded so a viewport pass never requests a window
// that is already in flight. The loader does not check new windows against
// in-flight ones; callers filter with IsRowLoaded first.
type Loader[T any] struct {
	fetcher Fetcher[T]
	config  Config
	logger  zerolog.Logger

	mu        sync.Mutex
	store     *rowstore.Store[T]
	inflight  map[uint64]*Handle
	nextID    uint64
	notViewed int
	closed    bool
	reported  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a loader backed by fetcher.
func New[T any](fetcher Fetcher[T], cfg Config) (*Loader[T], error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.MinimumBatchSize < 0 {
		return nil, fmt.Errorf("minimum_batch_size must be >= 0 (got %d)", cfg.MinimumBatchSize)
	}
	if cfg.MinimumBatchSize == 0 {
		cfg.MinimumBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Loader[T]{
		fetcher:  fetcher,
		config:   cfg,
		logger:   logging.NewLogger("row-loader"),
		store:    rowstore.New[T](),
		inflight: make(map[uint64]*Handle),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Plan computes the fetch parameters for [start, stop]: the batch size is
// max(window, MinimumBatchSize) and the page is start/batch + 1.
func (l *Loader[T]) Plan(start, stop int) Request {
	batch := stop - start + 1
	if batch < l.config.MinimumBatchSize {
		batch = l.config.MinimumBatchSize
	}
	return Request{
		Start:    start,
		Stop:     stop,
		Page:     start/batch + 1,
		PageSize: batch,
	}
}

// IsRowLoaded reports whether index is pending or resolved, i.e. whether a
// viewport pass must not request it again.
func (l *Loader[T]) IsRowLoaded(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.store.Get(index).State
	return state == rowstore.Pending || state == rowstore.Resolved
}

// EnsureLoaded marks [start, stop] pending and starts fetching it. It returns
// without waiting for the fetch.
func (l *Loader[T]) EnsureLoaded(start, stop int) (*Handle, error) {
	if start < 0 || stop < start {
		return nil, fmt.Errorf("%w: %d-%d", ErrInvalidRange, start, stop)
	}
	req := l.Plan(start, stop)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	l.nextID++
	id := l.nextID
	l.store.MarkPending(start, stop, id)
	delta := l.syncPending()

	var ctx context.Context
	var cancel context.CancelFunc
	if l.config.FetchTimeout > 0 {
		ctx, cancel = context.WithTimeout(l.ctx, l.config.FetchTimeout)
	} else {
		ctx, cancel = context.WithCancel(l.ctx)
	}
	h := newHandle(id, req, cancel)
	l.inflight[id] = h
	l.wg.Add(1)
	l.mu.Unlock()

	PendingRows.Add(float64(delta))

	l.logger.Debug().
		Uint64("request", id).
		Int("start", start).
		Int("stop", stop).
		Int("page", req.Page).
		Int("page_size", req.PageSize).
		Msg("Loading rows")

	go l.run(ctx, h)

	return h, nil
}

func (l *Loader[T]) run(ctx context.Context, h *Handle) {
	defer l.wg.Done()
	defer h.cancel()

	started := time.Now()
	page, err := l.fetcher.Fetch(ctx, h.req)
	FetchDuration.Observe(time.Since(started).Seconds())

	l.complete(h, page, err)
}

// complete records the outcome of h's fetch. The window and response are
// passed explicitly; nothing is read from the goroutine that issued it.
func (l *Loader[T]) complete(h *Handle, page Page[T], fetchErr error) {
	req := h.req
	update := Update{Request: req}
	var handleErr error

	l.mu.Lock()
	delete(l.inflight, h.id)

	switch {
	case l.closed || h.wasAborted():
		update.Outcome = OutcomeReleased
		update.Rows = l.store.Release(req.Start, req.Stop, h.id)
		handleErr = ErrCancelled

	case fetchErr != nil:
		fetchError := &FetchError{Start: req.Start, Stop: req.Stop, Err: fetchErr}
		update.Outcome = OutcomeFailed
		update.Rows = l.store.Fail(req.Start, req.Stop, h.id, fetchError)
		update.Err = fetchError
		handleErr = fetchError

	default:
		update.Outcome = OutcomeResolved
		update.Rows = l.merge(req, h.id, page)
	}
	update.Total, _ = l.store.Total()
	delta := l.syncPending()
	l.mu.Unlock()

	PendingRows.Add(float64(delta))
	FetchesTotal.WithLabelValues(string(update.Outcome)).Inc()

	switch update.Outcome {
	case OutcomeFailed:
		l.logger.Warn().
			Err(fetchErr).
			Uint64("request", h.id).
			Int("start", req.Start).
			Int("stop", req.Stop).
			Int("rows", update.Rows).
			Msg("Row fetch failed")
	case OutcomeReleased:
		l.logger.Debug().
			Uint64("request", h.id).
			Int("start", req.Start).
			Int("stop", req.Stop).
			Msg("Row fetch abandoned")
	default:
		l.logger.Debug().
			Uint64("request", h.id).
			Int("start", req.Start).
			Int("stop", req.Stop).
			Int("rows", update.Rows).
			Int("total", update.Total).
			Msg("Rows loaded")
	}

	if l.config.OnUpdate != nil {
		l.config.OnUpdate(update)
	}

	h.finish(handleErr)
}

// merge writes page into the store for the window req owned by request. Items
// inside [Start, Stop] overwrite, surplus items past Stop only fill rows
// nobody else is loading. Rows of the window the response did not cover are
// released. It returns the number of rows written. Callers hold l.mu.
func (l *Loader[T]) merge(req Request, request uint64, page Page[T]) int {
	l.applyTotals(page)

	items := page.Items
	var surplus []T
	if size := req.Size(); len(items) > size {
		items, surplus = items[:size], items[size:]
	}

	written := l.store.Resolve(req.Start, items)
	if len(surplus) > 0 {
		written += l.store.Fill(req.Stop+1, surplus)
	}
	RowsResolved.Add(float64(written))

	if released := l.store.Release(req.Start, req.Stop, request); released > 0 {
		l.logger.Debug().
			Uint64("request", request).
			Int("released", released).
			Msg("Response shorter than window")
	}

	return written
}

// applyTotals records the backend's total and unread count. Callers hold l.mu.
func (l *Loader[T]) applyTotals(page Page[T]) {
	l.notViewed = page.NotViewedCount

	before, known := l.store.Total()
	if !l.store.SetTotal(page.TotalItems) {
		return
	}

	l.logger.Info().
		Int("total", page.TotalItems).
		Int("previous", before).
		Bool("was_known", known).
		Msg("Row total updated")
}

// syncPending returns the change in pending rows since the last call so the
// shared gauge can be adjusted outside the lock. Callers hold l.mu.
func (l *Loader[T]) syncPending() int {
	pending := l.store.PendingCount()
	delta := pending - l.reported
	l.reported = pending
	return delta
}

// Prime fetches a single-row page to learn the total row count and the
// unread count before the first viewport pass.
func (l *Loader[T]) Prime(ctx context.Context) (Summary, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return Summary{}, ErrClosed
	}
	l.mu.Unlock()

	req := Request{Start: 0, Stop: 0, Page: 1, PageSize: 1}
	page, err := l.fetcher.Fetch(ctx, req)
	if err != nil {
		return Summary{}, &FetchError{Start: req.Start, Stop: req.Stop, Err: err}
	}

	l.mu.Lock()
	l.applyTotals(page)
	if len(page.Items) > 0 {
		l.store.Fill(0, page.Items[:1])
	}
	delta := l.syncPending()
	l.mu.Unlock()
	PendingRows.Add(float64(delta))

	return Summary{
		TotalItems:     page.TotalItems,
		NotViewedCount: page.NotViewedCount,
	}, nil
}

// Row returns the row at index.
func (l *Loader[T]) Row(index int) rowstore.Row[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Get(index)
}

// Rows returns a copy of rows [start, stop].
func (l *Loader[T]) Rows(start, stop int) []rowstore.Row[T] {
	if start < 0 || stop < start {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rows := make([]rowstore.Row[T], 0, stop-start+1)
	for index := start; index <= stop; index++ {
		rows = append(rows, l.store.Get(index))
	}
	return rows
}

// Total returns the known total row count.
func (l *Loader[T]) Total() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Total()
}

// NotViewedCount returns the unread count from the latest response.
func (l *Loader[T]) NotViewedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notViewed
}

// Stats returns a snapshot of the store and in-flight requests.
func (l *Loader[T]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	total, known := l.store.Total()
	return Stats{
		Rows:       l.store.Len(),
		Resolved:   l.store.ResolvedCount(),
		Pending:    l.store.PendingCount(),
		InFlight:   len(l.inflight),
		Total:      total,
		TotalKnown: known,
	}
}

// Reset abandons every in-flight request and drops all rows, for use when
// the backend list is re-queried from scratch.
func (l *Loader[T]) Reset() {
	l.mu.Lock()
	handles := make([]*Handle, 0, len(l.inflight))
	for _, h := range l.inflight {
		h.abort()
		handles = append(handles, h)
	}
	l.store.Reset()
	l.notViewed = 0
	delta := l.syncPending()
	l.mu.Unlock()

	PendingRows.Add(float64(delta))
	for _, h := range handles {
		h.Cancel()
	}

	l.logger.Info().
		Int("abandoned", len(handles)).
		Msg("Row store reset")
}

// Close abandons all in-flight requests and waits for their goroutines.
// Pending rows are released; later calls to EnsureLoaded fail with ErrClosed.
func (l *Loader[T]) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()

	l.logger.Debug().Msg("Row loader closed")
	return nil
}
