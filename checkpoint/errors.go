package checkpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shivam-kaushik/co-investigator/session"
)

// Common checkpoint errors.
var (
	// ErrNotFound is returned when a checkpoint does not exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrAlreadyResolved is returned when resolving an already-resolved
	// checkpoint with a different option. Re-resolving with the same
	// option is an idempotent no-op, not an error.
	ErrAlreadyResolved = errors.New("checkpoint already resolved")

	// ErrUnknownOption is returned when the option ID is not one of the
	// checkpoint's options.
	ErrUnknownOption = errors.New("unknown checkpoint option")

	// ErrSessionMismatch is returned when the checkpoint belongs to a
	// different session.
	ErrSessionMismatch = errors.New("checkpoint belongs to a different session")
)

// TaskDrift describes one task whose status changed since the
// checkpoint snapshot.
type TaskDrift struct {
	TaskID   string
	Expected session.TaskStatus
	Actual   session.TaskStatus
}

// StaleError means the plan moved on under a pending checkpoint: a
// task status the chosen option touches no longer matches the
// snapshot. The decision must be re-taken against current state.
type StaleError struct {
	CheckpointID string
	Drifted      []TaskDrift
}

func (e *StaleError) Error() string {
	parts := make([]string, 0, len(e.Drifted))
	for _, d := range e.Drifted {
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", d.TaskID, d.Expected, d.Actual))
	}
	return fmt.Sprintf("checkpoint %s is stale (%s)", e.CheckpointID, strings.Join(parts, ", "))
}

// IsStale returns true if the error indicates a stale checkpoint.
func IsStale(err error) bool {
	var stale *StaleError
	return errors.As(err, &stale)
}
