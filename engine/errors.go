/*
errors.go - Centralized error types for the scheduling engine

PURPOSE:
  All error types in one place. Callers branch with errors.Is against
  the sentinels; the structured types carry enough context for API
  layers to build useful messages.

ERROR CATEGORIES:
  1. Validation errors - malformed recurrence rules
  2. Store errors      - completion write contract violations
  3. Operation errors  - rollover requested where it is not defined

NOTE:
  Evaluation itself never fails. An unrecognized recurrence kind is
  treated as "never scheduled" plus a diagnostic log, because one bad
  record must not break rendering of every other task.
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRecurrence is returned when a recurrence rule is
	// malformed (e.g. weekly with no days). Rejected at validation
	// time, never silently coerced.
	ErrInvalidRecurrence = errors.New("invalid recurrence")

	// ErrDuplicateCompletion is returned by Create when a record
	// already exists for the (task, day) key. Callers wanting
	// create-or-update semantics should use an upsert helper.
	ErrDuplicateCompletion = errors.New("completion already exists for task and day")

	// ErrCompletionNotFound is returned by Update when no record
	// exists for the (task, day) key.
	ErrCompletionNotFound = errors.New("completion not found")

	// ErrTaskNotFound is returned when an operation references a task
	// that is not in the set.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidOperation is returned when an operation is requested
	// outside its domain, e.g. rolling over a day the task is not
	// scheduled on.
	ErrInvalidOperation = errors.New("invalid operation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRecurrenceError describes why a recurrence rule was rejected.
type InvalidRecurrenceError struct {
	Kind   Kind
	Reason string
}

func (e *InvalidRecurrenceError) Error() string {
	return fmt.Sprintf("invalid %s recurrence: %s", e.Kind, e.Reason)
}

func (e *InvalidRecurrenceError) Unwrap() error { return ErrInvalidRecurrence }

// DuplicateCompletionError identifies the conflicting key.
type DuplicateCompletionError struct {
	TaskID TaskID
	Day    Day
}

func (e *DuplicateCompletionError) Error() string {
	return fmt.Sprintf("completion already exists: task %s on %s", e.TaskID, e.Day)
}

func (e *DuplicateCompletionError) Unwrap() error { return ErrDuplicateCompletion }

// InvalidOperationError explains a rejected operation.
type InvalidOperationError struct {
	Op     string
	TaskID TaskID
	Day    Day
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("%s rejected for task %s on %s: %s", e.Op, e.TaskID, e.Day, e.Reason)
}

func (e *InvalidOperationError) Unwrap() error { return ErrInvalidOperation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCompletionNotFound) || errors.Is(err, ErrTaskNotFound)
}

// IsClientError reports whether the error is due to invalid input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRecurrence) ||
		errors.Is(err, ErrDuplicateCompletion) ||
		errors.Is(err, ErrInvalidOperation)
}
