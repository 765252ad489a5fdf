package engine

import (
	"errors"
	"fmt"
)

// StepError wraps the failure that stopped a run with the state it happened in.
type StepError struct {
	// State is the step that failed.
	State State

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedState returns the state a run failed in, or "" when err is not a *StepError.
func FailedState(err error) State {
	var e *StepError
	if errors.As(err, &e) {
		return e.State
	}
	return ""
}
