package memory

import (
	"context"
	"sync"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/storage"
	"solana-leader-lab/internal/window"
)

// TradeStore is an in-memory storage.TradeQuery. It backs tests and replays
// of captured streams.
type TradeStore struct {
	mu     sync.RWMutex
	trades []domain.TradeEvent
}

// NewTradeStore creates a store seeded with trades.
func NewTradeStore(trades ...domain.TradeEvent) *TradeStore {
	s := &TradeStore{}
	s.Append(trades...)
	return s
}

// Compile-time interface check.
var _ storage.TradeQuery = (*TradeStore)(nil)

// Append adds trades, keeping the store ordered by timestamp.
func (s *TradeStore) Append(trades ...domain.TradeEvent) {
	if len(trades) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
	if !window.IsSorted(s.trades) {
		window.SortByTime(s.trades)
	}
}

// FetchTrades returns trades matching f, ordered by timestamp ASC.
func (s *TradeStore) FetchTrades(_ context.Context, f storage.TradeFilter) ([]domain.TradeEvent, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.TradeEvent
	for _, e := range s.trades {
		if f.Match(e) {
			result = append(result, e)
		}
	}
	return result, nil
}

// Len returns the number of stored trades.
func (s *TradeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}
