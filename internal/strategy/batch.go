package strategy

import (
	"context"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/window"
)

// DefaultLookback is the history a batch run reads by default.
const DefaultLookback = 24 * time.Hour

// partition splits trades by key. Each partition is time-sorted.
func partition(trades []domain.TradeEvent, key func(domain.TradeEvent) string) ([]string, map[string][]domain.TradeEvent) {
	parts := window.GroupBy(trades, key)
	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, parts
}

// fanOut runs fn over every partition with at most workers goroutines.
// Results come back in key order. Partitions share no mutable state.
func fanOut[R any](ctx context.Context, workers int, keys []string, parts map[string][]domain.TradeEvent,
	fn func(key string, events []domain.TradeEvent) R) ([]R, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]R, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, k := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = fn(k, parts[k])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func byMint(e domain.TradeEvent) string   { return e.Mint }
func byWallet(e domain.TradeEvent) string { return e.Wallet }
