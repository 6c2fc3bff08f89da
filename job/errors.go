package job

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown or already evicted job ids
	ErrNotFound = errors.New("conversion not found")

	// ErrInvalidTransition is returned when an update would break the job state machine
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSetup is the parent of failures detected before the engine is invoked
	ErrSetup = errors.New("setup error")

	ErrSourceNotFound = fmt.Errorf("%w: uploaded playlist could not be found", ErrSetup)
	ErrStorage        = fmt.Errorf("%w: server storage is not writable, retry later", ErrSetup)
)

// userMessage returns the text stored on the record for a setup error
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrSourceNotFound):
		return "uploaded playlist could not be found"
	case errors.Is(err, ErrStorage):
		return "server storage is not writable, retry later"
	default:
		return scrubPaths(err.Error())
	}
}
