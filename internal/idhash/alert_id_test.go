package idhash

import (
	"testing"
	"time"

	"solana-leader-lab/internal/domain"
)

func TestComputeAlertID(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		wallet   string
		votes    int
		total    int
		mints    []string
		members  []string
	}{
		{"kill-follow", domain.StrategyKillFollow, "WalletX", 2, 3, []string{"M1", "M2"}, nil},
		{"sequence", domain.StrategySequence, "WalletA", 2, 3, []string{"M1"}, []string{"A", "B", "C"}},
		{"empty evidence", domain.StrategySequence, "WalletA", 1, 1, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAlertID(tt.strategy, tt.wallet, tt.votes, tt.total, tt.mints, tt.members)
			if len(got) != 64 {
				t.Errorf("ComputeAlertID() length = %d, want 64", len(got))
			}

			got2 := ComputeAlertID(tt.strategy, tt.wallet, tt.votes, tt.total, tt.mints, tt.members)
			if got != got2 {
				t.Errorf("ComputeAlertID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeAlertID_OrderIgnored(t *testing.T) {
	mints := []string{"M2", "M1"}
	a := ComputeAlertID("s", "w", 1, 1, mints, []string{"B", "A"})
	b := ComputeAlertID("s", "w", 1, 1, []string{"M1", "M2"}, []string{"A", "B"})
	if a != b {
		t.Error("element order should not change the hash")
	}
	if mints[0] != "M2" {
		t.Error("input slice must not be reordered")
	}
}

func TestComputeAlertID_DifferentInputs(t *testing.T) {
	mints := []string{"M1"}
	base := ComputeAlertID("s", "w", 2, 3, mints, nil)

	if base == ComputeAlertID("other", "w", 2, 3, mints, nil) {
		t.Error("Different strategy should produce different hash")
	}
	if base == ComputeAlertID("s", "w2", 2, 3, mints, nil) {
		t.Error("Different wallet should produce different hash")
	}
	if base == ComputeAlertID("s", "w", 3, 3, mints, nil) {
		t.Error("Different votes should produce different hash")
	}
	if base == ComputeAlertID("s", "w", 2, 3, []string{"M1", "M2"}, nil) {
		t.Error("Different mints should produce different hash")
	}
	// mints and members must not be interchangeable
	if ComputeAlertID("s", "w", 2, 3, []string{"A"}, nil) == ComputeAlertID("s", "w", 2, 3, nil, []string{"A"}) {
		t.Error("Mints and members should hash to different IDs")
	}
}

func TestAssignAlertID(t *testing.T) {
	ev := domain.Evidence{Mints: []string{"M1", "M2"}}
	a := domain.NewAlert(domain.StrategyKillFollow, "X", 2, 3, ev, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	b := domain.NewAlert(domain.StrategyKillFollow, "X", 2, 3, ev, time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC))
	if a.ID == b.ID {
		t.Fatal("fresh alerts should have random IDs")
	}

	AssignAlertID(a)
	AssignAlertID(b)
	if a.ID != b.ID {
		t.Errorf("expected equal content IDs across runs, got %s and %s", a.ID, b.ID)
	}
}
