package protocol

import (
	"errors"
	"fmt"
)

// Layer names the framing layer a DecodeError came from.
type Layer string

const (
	LayerEnvelope Layer = "envelope"
	LayerFrame    Layer = "frame"
)

// DecodeError reports a malformed envelope or inner frame.
type DecodeError struct {
	Layer   Layer  // Framing layer that failed
	Message string // Human-readable reason
	Input   string // Offending input, truncated for logging
	Err     error  // Underlying error (if any)
}

// maxErrorInput bounds the input excerpt kept on a DecodeError.
const maxErrorInput = 64

func newDecodeError(layer Layer, input string, err error, format string, args ...interface{}) *DecodeError {
	if len(input) > maxErrorInput {
		input = input[:maxErrorInput] + "..."
	}
	return &DecodeError{
		Layer:   layer,
		Message: fmt.Sprintf(format, args...),
		Input:   input,
		Err:     err,
	}
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s (caused by: %v)", e.Layer, e.Message, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Layer, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError checks if an error is a decode error
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}
