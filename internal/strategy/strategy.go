package strategy

import (
	"context"
	"time"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/storage"
)

// Streaming is a heuristic fed one event at a time. Implementations are
// not safe for concurrent use; Engine serializes calls.
type Streaming interface {
	// Name returns the strategy name used in alerts and metrics.
	Name() string

	// Process consumes e and returns an alert when a leader is promoted.
	Process(ctx context.Context, e domain.TradeEvent) (*domain.Alert, error)

	// State reports sizes for the engine gauges.
	State() State
}

// Sweeper is implemented by streaming strategies that can drop expired
// cooldown or group state.
type Sweeper interface {
	Sweep(now time.Time) int
}

// State is a point-in-time view of a streaming strategy's memory.
type State struct {
	BufferLen int
	// BufferSpan is newest minus oldest buffered event time.
	BufferSpan time.Duration
	Groups     int
	Cooldowns  int
}

// Batch is a heuristic run once over a bounded history.
type Batch interface {
	// Name returns the strategy name used in alerts and metrics.
	Name() string

	// Filter returns the rows the strategy needs for a run ending at now.
	Filter(now time.Time) storage.TradeFilter

	// Run analyzes trades, which are sorted by timestamp, and returns the
	// alerts it promotes.
	Run(ctx context.Context, trades []domain.TradeEvent, now time.Time) ([]*domain.Alert, error)
}
