package rewind

import (
	"errors"
	"fmt"
)

// Common errors for history operations.
var (
	// ErrNothingToUndo is returned by Undo when the past list is empty.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrNothingToRedo is returned by Redo when the future list is empty.
	ErrNothingToRedo = errors.New("nothing to redo")
	// ErrBusy is returned when an operation re-enters the stack from inside
	// a running do or undo function.
	ErrBusy = errors.New("history stack busy")
)

// ExecError wraps a failure from an action's do or undo function. It
// propagates to the caller of Push, Undo, or Redo.
type ExecError struct {
	Op    string
	Label string
	Err   error
}

func (e *ExecError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Label, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
