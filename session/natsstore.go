package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// SessionsBucket is the KV bucket name for session records.
const SessionsBucket = "CO_INVESTIGATOR_SESSIONS"

// sessionTTL is how long inactive sessions are retained.
const sessionTTL = 30 * 24 * time.Hour

// NATSStore persists sessions in a JetStream KV bucket. Revisions come
// from the bucket itself, so compare-and-swap survives restarts.
type NATSStore struct {
	bucket jetstream.KeyValue
}

// NewNATSStore creates the sessions bucket if needed and returns a store.
func NewNATSStore(ctx context.Context, js jetstream.JetStream) (*NATSStore, error) {
	// CreateOrUpdateKeyValue is idempotent and handles race conditions
	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      SessionsBucket,
		Description: "Co-investigator session records",
		History:     5,
		TTL:         sessionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update sessions bucket: %w", err)
	}

	return &NATSStore{bucket: bucket}, nil
}

// Create stores a new session.
func (s *NATSStore) Create(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if _, err := s.bucket.Create(ctx, sess.ID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Get retrieves a session and its KV revision.
func (s *NATSStore) Get(ctx context.Context, id string) (*Session, uint64, error) {
	entry, err := s.bucket.Get(ctx, id)
	if err != nil {
		if isKeyNotFound(err) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(entry.Value(), &sess); err != nil {
		return nil, 0, fmt.Errorf("unmarshal session: %w", err)
	}

	return &sess, entry.Revision(), nil
}

// Put writes a session unconditionally.
func (s *NATSStore) Put(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if _, err := s.bucket.Put(ctx, sess.ID, data); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// Update writes a session only if the stored revision still matches.
func (s *NATSStore) Update(ctx context.Context, sess *Session, revision uint64) error {
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if _, err := s.bucket.Update(ctx, sess.ID, data, revision); err != nil {
		if isWrongRevision(err) {
			return ErrRevisionMismatch
		}
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Keys lists all session IDs.
func (s *NATSStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		// Empty bucket returns ErrNoKeysFound - this is not an error
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list session keys: %w", err)
	}
	return keys, nil
}

// isKeyNotFound checks if an error indicates a missing key.
func isKeyNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) ||
		(err != nil && strings.Contains(err.Error(), "key not found"))
}

// isWrongRevision checks if an error indicates a CAS conflict.
func isWrongRevision(err error) bool {
	return err != nil && strings.Contains(err.Error(), "wrong last sequence")
}
