package frame

import (
	"errors"
	"fmt"
)

// Sentinel errors for the frame source.
var (
	// ErrDeviceUnavailable is returned when no capture device can be opened.
	ErrDeviceUnavailable = errors.New("frame: capture device unavailable")

	// ErrPermissionDenied is returned when the user or OS refused capture.
	ErrPermissionDenied = errors.New("frame: capture permission denied")

	// ErrNotInitialized is returned when capturing before Initialize.
	ErrNotInitialized = errors.New("frame: source not initialized")

	// ErrUnknownQuality is returned for an unrecognized quality level.
	ErrUnknownQuality = errors.New("frame: unknown quality level")

	// ErrClosed is returned when reading from a closed capturer.
	ErrClosed = errors.New("frame: capturer closed")
)

// CaptureError describes a failure to open or read the capture device.
// It is fatal to Initialize but recoverable by calling Initialize again.
type CaptureError struct {
	Device string
	Op     string // "open" or "read"
	Err    error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("frame [%s]: %s: %v", e.Device, e.Op, e.Err)
	}
	return fmt.Sprintf("frame: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CaptureError) Unwrap() error {
	return e.Err
}

// IsPermission reports whether the failure was a permission refusal.
func (e *CaptureError) IsPermission() bool {
	return errors.Is(e.Err, ErrPermissionDenied)
}
