// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRunNotFound indicates no run exists for the given workflow and event ids.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRun indicates a run without the ids needed to store it.
	ErrInvalidRun = errors.New("invalid run")
)

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op         string // Operation being performed (e.g., "RunByID", "SaveRun")
	WorkflowID string
	EventID    string
	Err        error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s/%s: %v", e.Op, e.WorkflowID, e.EventID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for run errors.
func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, workflowID, eventID string, err error) *RunError {
	return &RunError{
		Op:         op,
		WorkflowID: workflowID,
		EventID:    eventID,
		Err:        err,
	}
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// ValidateRunIDs rejects ids that cannot address a run.
func ValidateRunIDs(op, workflowID, eventID string) error {
	if workflowID == "" || eventID == "" {
		return NewRunError(op, workflowID, eventID, fmt.Errorf("%w: workflow and event ids are required", ErrInvalidRun))
	}

	return nil
}
