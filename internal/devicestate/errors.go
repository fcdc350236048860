package devicestate

import (
	"errors"
	"fmt"
)

// ReconcileError reports a device payload that could not be applied.
type ReconcileError struct {
	DeviceID int    // Device id, 0 when it could not be read
	Message  string // Human-readable error message
	Payload  string // Offending payload, truncated for logging
	Err      error  // Underlying error (if any)
}

const maxErrorPayload = 128

func newReconcileError(deviceID int, payload []byte, err error, format string, args ...interface{}) *ReconcileError {
	p := string(payload)
	if len(p) > maxErrorPayload {
		p = p[:maxErrorPayload] + "..."
	}
	return &ReconcileError{
		DeviceID: deviceID,
		Message:  fmt.Sprintf(format, args...),
		Payload:  p,
		Err:      err,
	}
}

// Error implements the error interface
func (e *ReconcileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reconcile device %d: %s (caused by: %v)", e.DeviceID, e.Message, e.Err)
	}
	return fmt.Sprintf("reconcile device %d: %s", e.DeviceID, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// IsReconcileError checks if an error is a reconcile error
func IsReconcileError(err error) bool {
	var recErr *ReconcileError
	return errors.As(err, &recErr)
}
