package signal

import (
	"errors"
	"fmt"
)

// UnknownModeError reports a mode code that is not in the mode table.
// It is informational: callers keep the Unknown descriptor and continue.
type UnknownModeError struct {
	Code int
}

func (e *UnknownModeError) Error() string {
	return fmt.Sprintf("unknown mode code %d", e.Code)
}

// IsUnknownModeError reports whether err is or wraps an UnknownModeError.
func IsUnknownModeError(err error) bool {
	var modeErr *UnknownModeError
	return errors.As(err, &modeErr)
}
