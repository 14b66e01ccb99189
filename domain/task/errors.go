package task

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for task operations.
var (
	// ErrNotFound is returned when the referenced task does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a status change or deletion breaks a workflow rule.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStoreUnavailable is returned when the persistent store cannot be reached in time.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError aggregates every rule a request violated.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, ", ")
}

// TransitionError describes a rejected status change or deletion.
type TransitionError struct {
	Op   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	switch e.Op {
	case "delete":
		return "Cannot delete task that is in progress"
	case "update":
		if e.From.Terminal() {
			return "Cannot change status of completed task"
		}
	}
	return fmt.Sprintf("cannot %s task from %s to %s", e.Op, e.From, e.To)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// CheckTransition returns a *TransitionError if current may not move to next.
func CheckTransition(current, next Status) error {
	if current.CanTransitionTo(next) {
		return nil
	}
	return &TransitionError{Op: "update", From: current, To: next}
}

// CheckDeletable returns a *TransitionError if a task in status may not be deleted.
func CheckDeletable(status Status) error {
	if status.Deletable() {
		return nil
	}
	return &TransitionError{Op: "delete", From: status}
}
