package storage

import (
	"context"
	"slices"
	"time"

	"solana-leader-lab/internal/domain"
)

// TradeFilter selects historical trades. Zero Until means "up to now"; empty
// Sides or Markets match everything.
type TradeFilter struct {
	Since   time.Time
	Until   time.Time
	Sides   []domain.Side
	Markets []domain.Market
}

// Match reports whether e passes the filter.
func (f TradeFilter) Match(e domain.TradeEvent) bool {
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	if len(f.Sides) > 0 && !slices.Contains(f.Sides, e.Side) {
		return false
	}
	if len(f.Markets) > 0 && !slices.Contains(f.Markets, e.Market) {
		return false
	}
	return true
}

// Validate checks the time range.
func (f TradeFilter) Validate() error {
	if !f.Until.IsZero() && !f.Until.After(f.Since) {
		return ErrInvalidInput
	}
	return nil
}

// TradeQuery reads historical trades for the batch strategies.
type TradeQuery interface {
	// FetchTrades returns trades matching f, ordered by timestamp ASC.
	FetchTrades(ctx context.Context, f TradeFilter) ([]domain.TradeEvent, error)
}

// AlertStore persists emitted alerts.
type AlertStore interface {
	// Insert adds an alert. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, a *domain.Alert) error

	// GetByID returns ErrNotFound if the alert does not exist.
	GetByID(ctx context.Context, id string) (*domain.Alert, error)

	// ListByTimeRange returns alerts with Timestamp in [start, end), oldest first.
	ListByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.Alert, error)

	// ListByWallet returns every alert naming wallet, oldest first.
	ListByWallet(ctx context.Context, wallet string) ([]*domain.Alert, error)
}

// Checkpoint is the last transaction a stream processed.
type Checkpoint struct {
	Stream    string
	Slot      int64
	Signature string
	UpdatedAt time.Time
}

// CheckpointStore records stream progress so a restarted watcher can report
// how many slots it missed.
type CheckpointStore interface {
	// Load returns ErrNotFound if nothing has been saved for stream.
	Load(ctx context.Context, stream string) (*Checkpoint, error)

	// Save upserts the checkpoint. Older slots never overwrite newer ones.
	Save(ctx context.Context, c *Checkpoint) error
}
