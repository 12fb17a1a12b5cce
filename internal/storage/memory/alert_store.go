package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/storage"
)

// AlertStore is an in-memory implementation of storage.AlertStore.
type AlertStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Alert
}

// NewAlertStore creates a new in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{
		data: make(map[string]*domain.Alert),
	}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

// Insert adds an alert. Returns ErrDuplicateKey if the ID exists.
func (s *AlertStore) Insert(_ context.Context, a *domain.Alert) error {
	if a == nil || a.ID == "" || a.Wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[a.ID] = cloneAlert(a)
	return nil
}

// GetByID returns ErrNotFound if the alert does not exist.
func (s *AlertStore) GetByID(_ context.Context, id string) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneAlert(a), nil
}

// ListByTimeRange returns alerts with Timestamp in [start, end), oldest first.
func (s *AlertStore) ListByTimeRange(_ context.Context, start, end time.Time) ([]*domain.Alert, error) {
	return s.filter(func(a *domain.Alert) bool {
		return !a.Timestamp.Before(start) && a.Timestamp.Before(end)
	}), nil
}

// ListByWallet returns every alert naming wallet, oldest first.
func (s *AlertStore) ListByWallet(_ context.Context, wallet string) ([]*domain.Alert, error) {
	return s.filter(func(a *domain.Alert) bool {
		return a.Wallet == wallet
	}), nil
}

// Len returns the number of stored alerts.
func (s *AlertStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *AlertStore) filter(keep func(*domain.Alert) bool) []*domain.Alert {
	s.mu.RLock()
	var result []*domain.Alert
	for _, a := range s.data {
		if keep(a) {
			result = append(result, cloneAlert(a))
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// cloneAlert copies the evidence slices so callers cannot mutate stored state.
func cloneAlert(a *domain.Alert) *domain.Alert {
	c := *a
	c.Evidence.Members = slices.Clone(a.Evidence.Members)
	c.Evidence.Mints = slices.Clone(a.Evidence.Mints)
	c.Evidence.Sequences = make([]domain.SequenceEvidence, len(a.Evidence.Sequences))
	for i, seq := range a.Evidence.Sequences {
		c.Evidence.Sequences[i] = domain.SequenceEvidence{Mint: seq.Mint, Wallets: slices.Clone(seq.Wallets)}
	}
	if a.Evidence.Sequences == nil {
		c.Evidence.Sequences = nil
	}
	return &c
}
