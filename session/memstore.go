package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store with the same revision semantics as
// the KV-backed store. Used in tests and for single-process dev runs.
type MemStore struct {
	mu       sync.RWMutex
	records  map[string][]byte
	revision map[string]uint64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		records:  make(map[string][]byte),
		revision: make(map[string]uint64),
	}
}

// Create stores a new session.
func (s *MemStore) Create(_ context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[sess.ID]; ok {
		return ErrAlreadyExists
	}
	s.records[sess.ID] = data
	s.revision[sess.ID] = 1
	return nil
}

// Get retrieves a session and its revision.
func (s *MemStore) Get(_ context.Context, id string) (*Session, uint64, error) {
	s.mu.RLock()
	data, ok := s.records[id]
	rev := s.revision[id]
	s.mu.RUnlock()

	if !ok {
		return nil, 0, ErrNotFound
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, 0, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, rev, nil
}

// Put writes a session unconditionally.
func (s *MemStore) Put(_ context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[sess.ID] = data
	s.revision[sess.ID]++
	return nil
}

// Update writes a session only if the revision still matches.
func (s *MemStore) Update(_ context.Context, sess *Session, revision uint64) error {
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[sess.ID]; !ok {
		return ErrNotFound
	}
	if s.revision[sess.ID] != revision {
		return ErrRevisionMismatch
	}
	s.records[sess.ID] = data
	s.revision[sess.ID]++
	return nil
}

// Keys lists all session IDs.
func (s *MemStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.records))
	for id := range s.records {
		keys = append(keys, id)
	}
	return keys, nil
}
