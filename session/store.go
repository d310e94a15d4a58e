package session

import (
	"context"
	"errors"
)

// Common store errors.
var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyExists is returned when creating a session with a
	// duplicate ID.
	ErrAlreadyExists = errors.New("session already exists")

	// ErrRevisionMismatch is returned by Update when the stored
	// revision no longer matches the caller's.
	ErrRevisionMismatch = errors.New("session revision mismatch")
)

// Store persists sessions. Get returns the revision alongside the
// record; Update writes only when the revision still matches, giving
// callers compare-and-swap semantics over concurrent turns.
type Store interface {
	// Create stores a new session. Returns ErrAlreadyExists on duplicate ID.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session and its current revision.
	// Returns ErrNotFound when the session does not exist.
	Get(ctx context.Context, id string) (*Session, uint64, error)

	// Put writes a session unconditionally.
	Put(ctx context.Context, s *Session) error

	// Update writes a session only if the stored revision matches.
	// Returns ErrRevisionMismatch when another writer got there first.
	Update(ctx context.Context, s *Session, revision uint64) error

	// Keys lists all session IDs.
	Keys(ctx context.Context) ([]string, error)
}
