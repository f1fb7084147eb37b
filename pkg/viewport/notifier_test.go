package viewport

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/notification-window/pkg/loader"
)

// fakeLoader records requests and treats requested rows as loaded.
type fakeLoader struct {
	mu       sync.Mutex
	loaded   map[int]bool
	requests []Range
	err      error
}

func newFakeLoader(loaded ...int) *fakeLoader {
	f := &fakeLoader{loaded: make(map[int]bool)}
	for _, i := range loaded {
		f.loaded[i] = true
	}
	return f
}

func (f *fakeLoader) IsRowLoaded(index int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded[index]
}

func (f *fakeLoader) EnsureLoaded(start, stop int) (*loader.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, Range{Start: start, Stop: stop})
	for i := start; i <= stop; i++ {
		f.loaded[i] = true
	}
	return &loader.Handle{}, nil
}

func loadedRange(start, stop int) []int {
	var out []int
	for i := start; i <= stop; i++ {
		out = append(out, i)
	}
	return out
}

func TestScanUnloaded(t *testing.T) {
	tests := []struct {
		name         string
		loaded       []int
		cfg          Config
		visibleStart int
		visibleStop  int
		want         []Range
	}{
		{
			name:         "unknown row count loads nothing",
			cfg:          Config{Threshold: 1, MinimumBatchSize: 10, RowCount: 0},
			visibleStart: 0,
			visibleStop:  5,
			want:         nil,
		},
		{
			name:         "empty list extends to minimum batch",
			cfg:          Config{Threshold: 1, MinimumBatchSize: 10, RowCount: 1000},
			visibleStart: 0,
			visibleStop:  4,
			want:         []Range{{0, 9}},
		},
		{
			name:         "visible range larger than batch",
			cfg:          Config{Threshold: 1, MinimumBatchSize: 10, RowCount: 1000},
			visibleStart: 0,
			visibleStop:  14,
			want:         []Range{{0, 15}},
		},
		{
			name:         "everything loaded",
			loaded:       loadedRange(0, 20),
			cfg:          Config{Threshold: 1, MinimumBatchSize: 10, RowCount: 1000},
			visibleStart: 5,
			visibleStop:  9,
			want:         nil,
		},
		{
			name:         "threshold reaches next unloaded row",
			loaded:       loadedRange(0, 9),
			cfg:          Config{Threshold: 1, MinimumBatchSize: 10, RowCount: 1000},
			visibleStart: 4,
			visibleStop:  9,
			want:         []Range{{10, 19}},
		},
		{
			name:         "gap between loaded blocks",
			loaded:       append(loadedRange(0, 9), loadedRange(13, 30)...),
			cfg:          Config{Threshold: 1, MinimumBatchSize: 10, RowCount: 1000},
			visibleStart: 8,
			visibleStop:  16,
			want:         []Range{{10, 12}},
		},
		{
			name:         "extension stops at row count",
			cfg:          Config{Threshold: 1, MinimumBatchSize: 10, RowCount: 25},
			visibleStart: 20,
			visibleStop:  24,
			want:         []Range{{15, 24}},
		},
		{
			name:         "first range extends backwards",
			loaded:       loadedRange(0, 14),
			cfg:          Config{Threshold: 0, MinimumBatchSize: 10, RowCount: 22},
			visibleStart: 10,
			visibleStop:  21,
			want:         []Range{{15, 21}},
		},
		{
			name:         "two separate runs",
			loaded:       []int{12, 13},
			cfg:          Config{Threshold: 0, MinimumBatchSize: 4, RowCount: 100},
			visibleStart: 10,
			visibleStop:  16,
			want:         []Range{{8, 11}, {14, 17}},
		},
		{
			name:         "inverted visible range",
			cfg:          Config{Threshold: 1, MinimumBatchSize: 10, RowCount: 100},
			visibleStart: 9,
			visibleStop:  3,
			want:         nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeLoader(tt.loaded...)
			got := ScanUnloaded(f.IsRowLoaded, tt.cfg, tt.visibleStart, tt.visibleStop)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ScanUnloaded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotifier_OnRowsRendered(t *testing.T) {
	f := newFakeLoader()
	n := New(f, Config{Threshold: 1, MinimumBatchSize: 10})

	handles, err := n.OnRowsRendered(0, 5)
	if err != nil || len(handles) != 0 {
		t.Fatalf("OnRowsRendered() before row count = %d handles, %v", len(handles), err)
	}

	n.SetRowCount(1000)
	if n.RowCount() != 1000 {
		t.Fatalf("RowCount() = %d, want 1000", n.RowCount())
	}

	handles, err = n.OnRowsRendered(0, 5)
	if err != nil {
		t.Fatalf("OnRowsRendered() error = %v", err)
	}
	if len(handles) != 1 {
		t.Fatalf("handles = %d, want 1", len(handles))
	}

	// Scrolling within the loaded block triggers nothing.
	if handles, _ := n.OnRowsRendered(3, 8); len(handles) != 0 {
		t.Errorf("handles = %d, want 0", len(handles))
	}

	// Scrolling into the next block requests it.
	if _, err := n.OnRowsRendered(9, 14); err != nil {
		t.Fatalf("OnRowsRendered() error = %v", err)
	}

	want := []Range{{0, 9}, {10, 19}}
	if !reflect.DeepEqual(f.requests, want) {
		t.Errorf("requests = %v, want %v", f.requests, want)
	}
}

func TestNotifier_LoaderError(t *testing.T) {
	f := newFakeLoader()
	f.err = loader.ErrClosed
	n := New(f, Config{Threshold: 1, MinimumBatchSize: 10, RowCount: 100})

	_, err := n.OnRowsRendered(0, 5)
	if !errors.Is(err, loader.ErrClosed) {
		t.Errorf("OnRowsRendered() error = %v, want ErrClosed", err)
	}
}

func TestNotifier_WithLoader(t *testing.T) {
	calls := 0
	fetcher := loader.FetcherFunc[int](func(_ context.Context, req loader.Request) (loader.Page[int], error) {
		calls++
		items := make([]int, 0, req.PageSize)
		for i := req.Start; i < req.Start+req.PageSize; i++ {
			items = append(items, i)
		}
		return loader.Page[int]{Items: items, TotalItems: 100}, nil
	})

	ld, err := loader.New[int](fetcher, loader.Config{MinimumBatchSize: 10})
	if err != nil {
		t.Fatalf("loader.New() error = %v", err)
	}
	defer ld.Close()

	n := New(ld, Config{Threshold: 1, MinimumBatchSize: 10, RowCount: 100})

	handles, err := n.OnRowsRendered(0, 4)
	if err != nil || len(handles) != 1 {
		t.Fatalf("OnRowsRendered() = %d handles, %v", len(handles), err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := handles[0].Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if handles, _ := n.OnRowsRendered(2, 7); len(handles) != 0 {
		t.Errorf("second pass started %d requests, want 0", len(handles))
	}
	if calls != 1 {
		t.Errorf("fetches = %d, want 1", calls)
	}
}

// slowLoader widens the gap between reading a row's state and marking it.
type slowLoader struct {
	*fakeLoader
}

func (s slowLoader) IsRowLoaded(index int) bool {
	time.Sleep(time.Millisecond)
	return s.fakeLoader.IsRowLoaded(index)
}

func TestNotifier_ConcurrentPassesFetchOnce(t *testing.T) {
	fl := newFakeLoader()
	n := New(slowLoader{fl}, Config{Threshold: 1, MinimumBatchSize: 10, RowCount: 100})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := n.OnRowsRendered(0, 9); err != nil {
				t.Errorf("OnRowsRendered() error = %v", err)
			}
		}()
	}
	wg.Wait()

	fl.mu.Lock()
	defer fl.mu.Unlock()
	if len(fl.requests) != 1 {
		t.Errorf("requests = %v, want a single window", fl.requests)
	}
}
