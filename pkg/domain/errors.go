package domain

import (
	"errors"
	"fmt"
)

// ErrReentrantDispatch is returned when a listener dispatches from within its own notification.
var ErrReentrantDispatch = errors.New("reentrant dispatch")

// ErrSnapshotNotFound is returned when no persisted snapshot exists for a key.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrCancelTimeout is returned when an effect task did not terminate within the cancel timeout.
var ErrCancelTimeout = errors.New("effect task did not stop in time")

// ErrVersionMismatch is returned when a persisted snapshot has a different schema version.
var ErrVersionMismatch = errors.New("persisted version mismatch")

// TransitionError reports a reducer failure. It is fatal to the dispatch call.
type TransitionError struct {
	Key        string
	ActionType string
	Err        error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("reducer %q failed on %q: %v", e.Key, e.ActionType, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
