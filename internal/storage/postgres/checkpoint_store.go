package postgres

import (
	"context"
	"fmt"

	"solana-leader-lab/internal/storage"
)

// CheckpointStore is a PostgreSQL implementation of storage.CheckpointStore.
// One row per stream in stream_checkpoints.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new PostgreSQL checkpoint store.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Load returns the last saved checkpoint for stream.
func (s *CheckpointStore) Load(ctx context.Context, stream string) (*storage.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT stream, slot, signature, updated_at
		FROM stream_checkpoints
		WHERE stream = $1
	`, stream)

	var c storage.Checkpoint
	if err := row.Scan(&c.Stream, &c.Slot, &c.Signature, &c.UpdatedAt); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint %s: %w", stream, err)
	}
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

// Save upserts the checkpoint. A lower slot than the stored one is ignored.
func (s *CheckpointStore) Save(ctx context.Context, c *storage.Checkpoint) error {
	if c == nil || c.Stream == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO stream_checkpoints (stream, slot, signature, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (stream) DO UPDATE
		SET slot = EXCLUDED.slot,
		    signature = EXCLUDED.signature,
		    updated_at = EXCLUDED.updated_at
		WHERE stream_checkpoints.slot <= EXCLUDED.slot
	`, c.Stream, c.Slot, c.Signature)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", c.Stream, err)
	}
	return nil
}
