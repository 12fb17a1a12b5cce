// Package ingestion turns the Solana log stream, or a stored history, into a
// channel of normalized trade events.
package ingestion

import (
	"context"

	"solana-leader-lab/internal/domain"
)

// Source produces trade events until ctx is done or the session fails.
// Run never closes out; the caller owns it.
type Source interface {
	Run(ctx context.Context, out chan<- domain.TradeEvent) error
}
