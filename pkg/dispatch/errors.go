package dispatch

import (
	"errors"
	"fmt"

	"nimbus-chat/relay/pkg/providers"
)

// ErrNoActiveCredentials is returned when no credential entry is eligible
// for selection. Retrying cannot improve it, so the engine surfaces it
// immediately.
var ErrNoActiveCredentials = errors.New("dispatch: no active credentials")

// ErrCallInProgress is returned when a generation call is invoked while
// another is already in flight on the same engine instance. This is a
// caller contract violation, not a recoverable condition.
var ErrCallInProgress = errors.New("dispatch: a generation call is already in progress")

// ExhaustedError is returned when the retry budget ran out (or every
// credential was deactivated mid-loop) without a successful generation.
// It carries the last classified failure observed.
type ExhaustedError struct {
	// Last is the failure from the final attempt
	Last *providers.ClassifiedError

	// Attempts is the number of attempts made
	Attempts int
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("dispatch: all credentials exhausted after %d attempts: %v", e.Attempts, e.Last)
	}
	return fmt.Sprintf("dispatch: all credentials exhausted after %d attempts", e.Attempts)
}

// Unwrap returns the last classified failure for error chain support.
func (e *ExhaustedError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}
