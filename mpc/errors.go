package mpc

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotStarted is returned when computing before Start completed.
	ErrNotStarted = errors.New("mpc: runtime not started")
	// ErrClosed is returned when computing after Shutdown, or when
	// starting a runtime that was shut down.
	ErrClosed = errors.New("mpc: runtime closed")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("mpc: runtime already started")
	// ErrPoisoned is wrapped by every ComputationError returned after an
	// earlier failure.
	ErrPoisoned = errors.New("mpc: runtime poisoned by an earlier failure")
	// ErrKindMismatch is returned when combining values of different kinds
	// where that is not allowed.
	ErrKindMismatch = errors.New("mpc: secret kinds do not match")
	// ErrForeignValue is returned when a value from another runtime is used.
	ErrForeignValue = errors.New("mpc: value belongs to another runtime")
	// ErrFreed is returned when a freed value is used.
	ErrFreed = errors.New("mpc: value has been freed")
	// ErrTaskDone is returned when a Task is used after its function returned.
	ErrTaskDone = errors.New("mpc: task already finished")
	// ErrNestedRun is returned when Run is called with a task's context.
	ErrNestedRun = errors.New("mpc: Run called from inside a task")
)

// ComputationError reports a failure during secret arithmetic. The runtime
// that returned it is poisoned.
type ComputationError struct {
	// Op is the operation that failed.
	Op string
	// Party is the party that reported the failure, or -1 when the failure
	// was not party-specific.
	Party int
	// Err is the underlying cause.
	Err error
}

func (e *ComputationError) Error() string {
	if e.Party < 0 {
		return fmt.Sprintf("mpc: secure computation failed in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mpc: secure computation failed in %s (party %d): %v", e.Op, e.Party, e.Err)
}

// Unwrap returns the cause.
func (e *ComputationError) Unwrap() error {
	return e.Err
}

// IsComputationError reports whether err is or wraps a ComputationError.
func IsComputationError(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}
