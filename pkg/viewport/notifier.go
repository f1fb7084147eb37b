// Package viewport decides which row windows to load as a virtual list
// scrolls. It watches the rendered range, scans around it for rows that are
// neither loaded nor in flight and asks the loader for them.
package viewport

import (
	"errors"
	"sync"

	"github.com/Sternrassler/notification-window/pkg/loader"
	"github.com/Sternrassler/notification-window/pkg/logging"
	"github.com/rs/zerolog"
)

// RowLoader is the part of loader.Loader the notifier drives.
type RowLoader interface {
	IsRowLoaded(index int) bool
	EnsureLoaded(start, stop int) (*loader.Handle, error)
}

// Config holds the notifier configuration.
type Config struct {
	// Threshold is how many rows beyond the rendered range are scanned.
	Threshold int

	// MinimumBatchSize is the smallest range handed to the loader when
	// enough unloaded rows are adjacent.
	MinimumBatchSize int

	// RowCount is the total row count, 0 while unknown.
	RowCount int
}

// DefaultConfig returns the settings of the notification menu list.
func DefaultConfig() Config {
	return Config{
		Threshold:        1,
		MinimumBatchSize: 10,
	}
}

// Range is an inclusive window of row indices.
type Range struct {
	Start int
	Stop  int
}

// Size returns the number of rows in r.
func (r Range) Size() int {
	return r.Stop - r.Start + 1
}

// Notifier turns rendered ranges into loader requests.
type Notifier struct {
	loader RowLoader
	logger zerolog.Logger

	// render serialises passes so the scan and the EnsureLoaded calls that
	// mark its ranges pending are not interleaved with another pass.
	render sync.Mutex

	mu     sync.Mutex
	config Config
}

// New creates a notifier driving ld.
func New(ld RowLoader, cfg Config) *Notifier {
	if cfg.Threshold < 0 {
		cfg.Threshold = 0
	}
	if cfg.MinimumBatchSize < 1 {
		cfg.MinimumBatchSize = 1
	}
	return &Notifier{
		loader: ld,
		logger: logging.NewLogger("viewport"),
		config: cfg,
	}
}

// SetRowCount updates the total row count once it is known.
func (n *Notifier) SetRowCount(rowCount int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.config.RowCount = max(rowCount, 0)
}

// RowCount returns the configured total row count.
func (n *Notifier) RowCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.config.RowCount
}

// OnRowsRendered is called with the visible range after every scroll. It
// requests each distinct unloaded range once and returns the handles of the
// requests it started. Concurrent calls run one at a time.
func (n *Notifier) OnRowsRendered(visibleStart, visibleStop int) ([]*loader.Handle, error) {
	n.render.Lock()
	defer n.render.Unlock()

	n.mu.Lock()
	cfg := n.config
	n.mu.Unlock()

	ranges := ScanUnloaded(n.loader.IsRowLoaded, cfg, visibleStart, visibleStop)
	if len(ranges) == 0 {
		return nil, nil
	}

	handles := make([]*loader.Handle, 0, len(ranges))
	var errs []error
	for _, r := range ranges {
		h, err := n.loader.EnsureLoaded(r.Start, r.Stop)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		handles = append(handles, h)
	}

	n.logger.Debug().
		Int("visible_start", visibleStart).
		Int("visible_stop", visibleStop).
		Int("ranges", len(ranges)).
		Int("started", len(handles)).
		Msg("Requested unloaded rows")

	return handles, errors.Join(errs...)
}

// ScanUnloaded returns the unloaded ranges around [visibleStart, visibleStop].
//
// The scan covers Threshold extra rows on each side, clamped to RowCount.
// Maximal runs of unloaded rows become ranges. The last range is extended
// forward and the first backward over further unloaded rows until it holds
// MinimumBatchSize rows or reaches a loaded row or the list boundary.
func ScanUnloaded(isRowLoaded func(int) bool, cfg Config, visibleStart, visibleStop int) []Range {
	if cfg.RowCount <= 0 || visibleStop < visibleStart {
		return nil
	}
	batch := max(cfg.MinimumBatchSize, 1)

	start := max(visibleStart-cfg.Threshold, 0)
	stop := min(visibleStop+cfg.Threshold, cfg.RowCount-1)
	if start > stop {
		return nil
	}

	var ranges []Range
	runStart, runStop := -1, -1
	for index := start; index <= stop; index++ {
		if !isRowLoaded(index) {
			if runStart < 0 {
				runStart = index
			}
			runStop = index
			continue
		}
		if runStop >= 0 {
			ranges = append(ranges, Range{Start: runStart, Stop: runStop})
			runStart, runStop = -1, -1
		}
	}

	if runStop >= 0 {
		limit := min(max(runStop, runStart+batch-1), cfg.RowCount-1)
		for index := runStop + 1; index <= limit; index++ {
			if isRowLoaded(index) {
				break
			}
			runStop = index
		}
		ranges = append(ranges, Range{Start: runStart, Stop: runStop})
	}

	if len(ranges) > 0 {
		first := &ranges[0]
		for first.Size() < batch && first.Start > 0 {
			if isRowLoaded(first.Start - 1) {
				break
			}
			first.Start--
		}
	}

	return ranges
}
