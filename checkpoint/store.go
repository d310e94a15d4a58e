package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// CheckpointsBucket is the KV bucket name for checkpoint records.
const CheckpointsBucket = "CO_INVESTIGATOR_CHECKPOINTS"

// checkpointTTL is how long resolved and abandoned checkpoints are kept.
const checkpointTTL = 30 * 24 * time.Hour

// Store persists checkpoints.
type Store interface {
	// Put writes a checkpoint.
	Put(ctx context.Context, cp *Checkpoint) error

	// Get retrieves a checkpoint by ID. Returns ErrNotFound when missing.
	Get(ctx context.Context, id string) (*Checkpoint, error)

	// ListBySession returns all checkpoints for a session.
	ListBySession(ctx context.Context, sessionID string) ([]*Checkpoint, error)
}

// NATSStore persists checkpoints in a JetStream KV bucket.
type NATSStore struct {
	bucket jetstream.KeyValue
}

// NewNATSStore creates the checkpoints bucket if needed and returns a store.
func NewNATSStore(ctx context.Context, js jetstream.JetStream) (*NATSStore, error) {
	// CreateOrUpdateKeyValue is idempotent and handles race conditions
	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      CheckpointsBucket,
		Description: "Co-investigator decision checkpoints",
		TTL:         checkpointTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update checkpoints bucket: %w", err)
	}

	return &NATSStore{bucket: bucket}, nil
}

// Bucket exposes the underlying KV bucket for SSE watchers.
func (s *NATSStore) Bucket() jetstream.KeyValue {
	return s.bucket
}

// Put writes a checkpoint.
func (s *NATSStore) Put(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if _, err := s.bucket.Put(ctx, cp.ID, data); err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}

// Get retrieves a checkpoint by ID.
func (s *NATSStore) Get(ctx context.Context, id string) (*Checkpoint, error) {
	entry, err := s.bucket.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || strings.Contains(err.Error(), "key not found") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(entry.Value(), &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// ListBySession returns all checkpoints for a session.
func (s *NATSStore) ListBySession(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		// Empty bucket returns ErrNoKeysFound - this is not an error
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoint keys: %w", err)
	}

	var out []*Checkpoint
	for _, key := range keys {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			continue // Skip errors for individual keys
		}

		var cp Checkpoint
		if err := json.Unmarshal(entry.Value(), &cp); err != nil {
			continue
		}
		if cp.SessionID == sessionID {
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MemStore is an in-memory checkpoint store for tests.
type MemStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string][]byte)}
}

// Put writes a checkpoint.
func (s *MemStore) Put(_ context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[cp.ID] = data
	return nil
}

// Get retrieves a checkpoint by ID.
func (s *MemStore) Get(_ context.Context, id string) (*Checkpoint, error) {
	s.mu.RLock()
	data, ok := s.records[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// ListBySession returns all checkpoints for a session.
func (s *MemStore) ListBySession(_ context.Context, sessionID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Checkpoint
	for _, data := range s.records {
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		if cp.SessionID == sessionID {
			out = append(out, &cp)
		}
	}
	return out, nil
}
