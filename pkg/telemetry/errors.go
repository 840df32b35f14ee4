package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrCallbackFailed matches any nonzero status from a host callback
	ErrCallbackFailed = errors.New("telemetry callback failed")
	// ErrNoCallback is returned by a Callback source built around a nil func
	ErrNoCallback = errors.New("telemetry callback not set")
	// ErrUnterminated means the callee did not terminate the network text within capacity
	ErrUnterminated = errors.New("network type not terminated within buffer capacity")
	// ErrCallbackPanic means the source panicked; the reading is discarded
	ErrCallbackPanic = errors.New("telemetry source panicked")
	// ErrThrottled means the source was not invoked because it was called too often
	ErrThrottled = errors.New("telemetry source throttled")
	// ErrNotConfigured means the source has nothing to report
	ErrNotConfigured = errors.New("telemetry source not configured")
	// ErrTimeout means the source did not return within the caller's deadline
	ErrTimeout = errors.New("telemetry source timed out")
)

// CallbackError carries the raw status returned by a host callback
type CallbackError struct {
	Status int32
}

// Error implements error interface
func (e *CallbackError) Error() string {
	return fmt.Sprintf("telemetry callback returned status %d", e.Status)
}

// Is lets errors.Is match ErrCallbackFailed
func (e *CallbackError) Is(target error) bool {
	return target == ErrCallbackFailed
}
