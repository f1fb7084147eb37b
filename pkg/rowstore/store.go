// Package rowstore provides a sparse, index-addressed store of list rows.
//
// Rows are addressed by their position in the full, conceptually ordered item
// sequence. Only rows that were touched are materialized, so a list with a
// total in the thousands costs memory proportional to what was loaded.
//
// A Store is not safe for concurrent use. It is owned by a single
// loader.Loader which serializes every access.
package rowstore

import "fmt"

// State is the load state of a single row.
type State uint8

const (
	// Unknown means the row was never requested (or a request was abandoned).
	Unknown State = iota

	// Pending means a fetch covering the row is in flight.
	Pending

	// Resolved means the row's item is present.
	Resolved

	// Failed means the last fetch covering the row failed.
	Failed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Row is the state of one index together with its payload.
type Row[T any] struct {
	State State

	// Item is set when State is Resolved.
	Item T

	// Err is set when State is Failed.
	Err error

	// Request identifies the in-flight request owning a Pending row.
	Request uint64
}

// Store maps row indices to rows.
type Store[T any] struct {
	rows     map[int]Row[T]
	total    int
	hasTotal bool
	resolved int
}

// New creates an empty store with no known total.
func New[T any]() *Store[T] {
	return &Store[T]{
		rows: make(map[int]Row[T]),
	}
}

// Get returns the row at index. Untouched indices report Unknown.
func (s *Store[T]) Get(index int) Row[T] {
	return s.rows[index]
}

// Total returns the known total row count, if one has been learned.
func (s *Store[T]) Total() (int, bool) {
	return s.total, s.hasTotal
}

// SetTotal records the total row count reported by the backend and reports
// whether it changed. Rows at or beyond a shrunken total are dropped.
func (s *Store[T]) SetTotal(total int) bool {
	if total < 0 {
		total = 0
	}
	if s.hasTotal && s.total == total {
		return false
	}
	shrunk := s.hasTotal && total < s.total
	s.total = total
	s.hasTotal = true
	if shrunk {
		for index, row := range s.rows {
			if index >= total {
				s.remove(index, row)
			}
		}
	}
	return true
}

// MarkPending marks every row in [start, stop] as owned by request.
// Resolved rows are left untouched and rows already pending change owner.
// It returns the number of rows that were not pending before.
func (s *Store[T]) MarkPending(start, stop int, request uint64) int {
	marked := 0
	for index := start; index <= stop; index++ {
		row := s.rows[index]
		if row.State == Resolved {
			continue
		}
		if row.State != Pending {
			marked++
		}
		s.rows[index] = Row[T]{State: Pending, Request: request}
	}
	return marked
}

// PendingCount returns the number of rows currently pending.
func (s *Store[T]) PendingCount() int {
	pending := 0
	for _, row := range s.rows {
		if row.State == Pending {
			pending++
		}
	}
	return pending
}

// Resolve writes items[k] at start+k. Any previous state is overwritten,
// so the last write wins for rows resolved twice. Writing stops at the known
// total. It returns the number of rows written.
func (s *Store[T]) Resolve(start int, items []T) int {
	return s.write(start, items, true)
}

// Fill is like Resolve but only writes rows that are Unknown or Failed.
func (s *Store[T]) Fill(start int, items []T) int {
	return s.write(start, items, false)
}

func (s *Store[T]) write(start int, items []T, overwrite bool) int {
	written := 0
	for k, item := range items {
		index := start + k
		if index < 0 {
			continue
		}
		if s.hasTotal && index >= s.total {
			break
		}
		prev := s.rows[index]
		if !overwrite && (prev.State == Pending || prev.State == Resolved) {
			continue
		}
		if prev.State != Resolved {
			s.resolved++
		}
		s.rows[index] = Row[T]{State: Resolved, Item: item}
		written++
	}
	return written
}

// Fail moves rows in [start, stop] that are Pending under request to Failed.
func (s *Store[T]) Fail(start, stop int, request uint64, err error) int {
	failed := 0
	for index := start; index <= stop; index++ {
		row, ok := s.rows[index]
		if !ok || row.State != Pending || row.Request != request {
			continue
		}
		s.rows[index] = Row[T]{State: Failed, Err: err}
		failed++
	}
	return failed
}

// Release returns rows in [start, stop] that are Pending under request to
// Unknown, freeing their entries.
func (s *Store[T]) Release(start, stop int, request uint64) int {
	released := 0
	for index := start; index <= stop; index++ {
		row, ok := s.rows[index]
		if !ok || row.State != Pending || row.Request != request {
			continue
		}
		delete(s.rows, index)
		released++
	}
	return released
}

// Len returns the number of materialized rows.
func (s *Store[T]) Len() int {
	return len(s.rows)
}

// ResolvedCount returns the number of rows holding an item.
func (s *Store[T]) ResolvedCount() int {
	return s.resolved
}

// Reset drops every row and forgets the total.
func (s *Store[T]) Reset() {
	s.rows = make(map[int]Row[T])
	s.total = 0
	s.hasTotal = false
	s.resolved = 0
}

func (s *Store[T]) remove(index int, row Row[T]) {
	if row.State == Resolved {
		s.resolved--
	}
	delete(s.rows, index)
}
