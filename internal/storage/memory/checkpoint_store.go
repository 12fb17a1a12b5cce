package memory

import (
	"context"
	"sync"
	"time"

	"solana-leader-lab/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[string]storage.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{data: make(map[string]storage.Checkpoint)}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Load returns the last saved checkpoint for stream.
func (s *CheckpointStore) Load(_ context.Context, stream string) (*storage.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[stream]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

// Save upserts the checkpoint. A lower slot than the stored one is ignored.
func (s *CheckpointStore) Save(_ context.Context, c *storage.Checkpoint) error {
	if c == nil || c.Stream == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.data[c.Stream]; ok && prev.Slot > c.Slot {
		return nil
	}
	saved := *c
	saved.UpdatedAt = time.Now().UTC()
	s.data[c.Stream] = saved
	return nil
}
