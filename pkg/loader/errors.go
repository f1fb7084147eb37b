package loader

import (
	"errors"
	"fmt"
)

// Common errors returned by the loader.
var (
	// ErrInvalidRange is returned for negative or inverted windows.
	ErrInvalidRange = errors.New("invalid row range")

	// ErrClosed is returned once the loader has been closed.
	ErrClosed = errors.New("loader closed")

	// ErrCancelled is reported by handles whose request was abandoned.
	ErrCancelled = errors.New("request cancelled")
)

// FetchError is the failure of the fetch backing a window.
type FetchError struct {
	Start int
	Stop  int
	Err   error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch rows %d-%d: %v", e.Start, e.Stop, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}
