package loader

import (
	"context"
	"sync"
)

// Handle tracks one in-flight window. It is returned by EnsureLoaded before
// the fetch completes.
type Handle struct {
	id      uint64
	req     Request
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	err     error
	aborted bool
}

func newHandle(id uint64, req Request, cancel context.CancelFunc) *Handle {
	return &Handle{
		id:     id,
		req:    req,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the request ID that owns the window's pending rows.
func (h *Handle) ID() uint64 { return h.id }

// Request returns the window and page parameters of the fetch.
func (h *Handle) Request() Request { return h.req }

// Done is closed once the result has been merged, the failure recorded or
// the request abandoned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the outcome after Done is closed: nil, a *FetchError or
// ErrCancelled.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the handle completes or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel abandons the request. Rows still pending under it return to
// Unknown and a late response is discarded.
func (h *Handle) Cancel() {
	h.abort()
	h.cancel()
}

// abort marks the request abandoned without cancelling its context, so it
// can be called under the loader's lock.
func (h *Handle) abort() {
	h.mu.Lock()
	h.aborted = true
	h.mu.Unlock()
}

func (h *Handle) wasAborted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aborted
}

func (h *Handle) finish(err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}
