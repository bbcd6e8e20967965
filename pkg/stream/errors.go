package stream

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when sending without an open connection.
var ErrNotConnected = errors.New("stream: not connected")

// StreamError describes a failure on the outbound channel. Callers log it and
// keep processing locally.
type StreamError struct {
	URL string
	Op  string // "dial", "write", "close"
	Err error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("stream [%s]: %s: %v", e.URL, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}
