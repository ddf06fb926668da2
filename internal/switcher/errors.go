package switcher

import (
	"errors"
	"fmt"

	"github.com/exeteres/wg-relay/internal/executor"
)

var (
	// ErrNoSelection means no relay was selected. It is a precondition
	// failure; the workflow stays idle.
	ErrNoSelection = errors.New("no server selected")

	// ErrBusy rejects a run while another is in progress or a failure has not
	// been acknowledged.
	ErrBusy = errors.New("switch already in progress")
)

// SelectionFormatError reports a selection value that cannot be turned into a
// switch request.
type SelectionFormatError struct {
	Value string
	Err   error
}

func (e *SelectionFormatError) Error() string {
	return fmt.Sprintf("invalid server selection: %v", e.Err)
}

func (e *SelectionFormatError) Unwrap() error { return e.Err }

func AsSelectionFormatError(err error) (*SelectionFormatError, bool) {
	var e *SelectionFormatError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StageError is the terminal error of a failed run.
type StageError struct {
	RunID string
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("switch failed while %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Detail is what the operator is shown: the action's stderr, a generic
// message for a silent action, or the error text.
func (e *StageError) Detail() string {
	if ie, ok := executor.AsInvocationError(e.Err); ok {
		return ie.Detail()
	}
	if e.Err == nil {
		return "Unknown error"
	}
	return e.Err.Error()
}

func AsStageError(err error) (*StageError, bool) {
	var e *StageError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
