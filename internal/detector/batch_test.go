package detector

import (
	"fmt"
	"testing"
	"time"

	"solana-leader-lab/internal/domain"
)

func TestSequenceDetector_AnchoredWindowAndAmountRule(t *testing.T) {
	d, err := NewSequenceDetector(DefaultSequenceConfig())
	if err != nil {
		t.Fatalf("NewSequenceDetector failed: %v", err)
	}

	events := []domain.TradeEvent{
		buy(0, "A", "M1", 100),
		buy(2, "B", "M1", 100), // same amount as seed A, skipped for A's cluster
		buy(4, "C", "M1", 200),
		buy(9, "D", "M1", 300),
		buy(11, "E", "M1", 400), // outside A's anchored window
	}

	clusters := d.Clusters("M1", events)
	if len(clusters) == 0 {
		t.Fatal("Expected clusters")
	}
	first := clusters[0]
	got := first.Order()
	want := []string{"A", "C", "D"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}
}

func TestSequenceDetector_DistinctWalletsAndMinSize(t *testing.T) {
	d, _ := NewSequenceDetector(DefaultSequenceConfig())

	events := []domain.TradeEvent{
		buy(0, "A", "M1", 1),
		buy(1, "B", "M1", 2),
		buy(2, "B", "M1", 3),
	}
	if clusters := d.Clusters("M1", events); len(clusters) != 0 {
		t.Fatalf("Expected no cluster with 2 distinct wallets, got %+v", clusters)
	}
}

func TestSequenceDetector_DifferentOrdersYieldCandidate(t *testing.T) {
	d, _ := NewSequenceDetector(DefaultSequenceConfig())

	byMint := map[string][]domain.TradeEvent{
		"M1": {buy(0, "L", "M1", 1), buy(1, "F1", "M1", 2), buy(2, "F2", "M1", 3)},
		"M2": {buy(100, "L", "M2", 1), buy(101, "F2", "M2", 2), buy(102, "F1", "M2", 3)},
	}

	candidates := d.Detect(byMint)
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.Leader != "L" {
		t.Errorf("Expected leader L, got %s", c.Leader)
	}
	if c.Votes != 2 || c.TotalVotes != 2 {
		t.Errorf("Expected 2/2 votes, got %d/%d", c.Votes, c.TotalVotes)
	}
	if len(c.Participants) != 3 || c.Participants[0] != "F1" {
		t.Errorf("Expected sorted participants, got %v", c.Participants)
	}
	if len(c.Sequences) != 2 || c.Sequences[0].Mint != "M1" {
		t.Errorf("Unexpected evidence: %+v", c.Sequences)
	}
}

func TestSequenceDetector_IdenticalOrdersIgnored(t *testing.T) {
	d, _ := NewSequenceDetector(DefaultSequenceConfig())

	byMint := map[string][]domain.TradeEvent{
		"M1": {buy(0, "L", "M1", 1), buy(1, "F1", "M1", 2), buy(2, "F2", "M1", 3)},
		"M2": {buy(100, "L", "M2", 1), buy(101, "F1", "M2", 2), buy(102, "F2", "M2", 3)},
	}
	if candidates := d.Detect(byMint); len(candidates) != 0 {
		t.Fatalf("Expected no candidate for identical sequences, got %+v", candidates)
	}
}

func TestSequenceDetector_SingleClusterIgnored(t *testing.T) {
	d, _ := NewSequenceDetector(DefaultSequenceConfig())

	byMint := map[string][]domain.TradeEvent{
		"M1": {buy(0, "L", "M1", 1), buy(1, "F1", "M1", 2), buy(2, "F2", "M1", 3)},
	}
	if candidates := d.Detect(byMint); len(candidates) != 0 {
		t.Fatalf("Expected no candidate from one cluster, got %+v", candidates)
	}
}

func TestSequenceDetector_UnsortedInput(t *testing.T) {
	d, _ := NewSequenceDetector(DefaultSequenceConfig())

	events := []domain.TradeEvent{
		buy(2, "C", "M1", 3),
		buy(0, "A", "M1", 1),
		buy(1, "B", "M1", 2),
	}
	clusters := d.Clusters("M1", events)
	if len(clusters) != 1 || clusters[0].Order()[0] != "A" {
		t.Fatalf("Expected one cluster seeded by A, got %+v", clusters)
	}
	if events[0].Wallet != "C" {
		t.Error("Expected input slice not to be reordered")
	}
}

func TestRoundTrip_ScenarioSingleTokenNotReported(t *testing.T) {
	d, err := NewRoundTripDetector(DefaultRoundTripConfig())
	if err != nil {
		t.Fatalf("NewRoundTripDetector failed: %v", err)
	}

	events := []domain.TradeEvent{buy(0, "X", "MintY", 5), sell(20, "X", "MintY")}

	trips := d.Match(events)
	if len(trips) != 1 || trips[0].Mint != "MintY" {
		t.Fatalf("Expected MintY flagged, got %+v", trips)
	}
	if trips[0].Hold() != 20*time.Second {
		t.Errorf("Expected 20s hold, got %v", trips[0].Hold())
	}
	if _, ok := d.DetectWallet("X", events); ok {
		t.Error("Expected wallet not reported with a single token")
	}
}

func TestRoundTrip_HoldBoundaries(t *testing.T) {
	d, _ := NewRoundTripDetector(DefaultRoundTripConfig())

	cases := []struct {
		name string
		k    int
		want bool
	}{
		{"zero", 0, false},
		{"inside", 1, true},
		{"ceiling", 30, true},
		{"past ceiling", 31, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trips := d.Match([]domain.TradeEvent{buy(0, "X", "M", 1), sell(tc.k, "X", "M")})
			if got := len(trips) == 1; got != tc.want {
				t.Errorf("k=%d: expected flagged=%v, got %v", tc.k, tc.want, got)
			}
		})
	}
}

func TestRoundTrip_FirstSellOnlyPerBuy(t *testing.T) {
	d, _ := NewRoundTripDetector(DefaultRoundTripConfig())

	trips := d.Match([]domain.TradeEvent{
		buy(0, "X", "M", 1),
		sell(5, "X", "M"),
		sell(10, "X", "M"),
	})
	if len(trips) != 1 {
		t.Fatalf("Expected one trip per buy, got %d", len(trips))
	}
	if trips[0].Sell != t0.Add(5*time.Second) {
		t.Errorf("Expected first sell matched, got %v", trips[0].Sell)
	}
}

func TestRoundTrip_DetectReportsTwoTokens(t *testing.T) {
	d, _ := NewRoundTripDetector(DefaultRoundTripConfig())

	events := []domain.TradeEvent{
		buy(0, "X", "M1", 1), sell(10, "X", "M1"),
		buy(100, "X", "M2", 1), sell(125, "X", "M2"),
		buy(0, "Y", "M1", 1), sell(60, "Y", "M1"),
		buy(0, "Y", "M2", 1), sell(5, "Y", "M2"),
	}

	reports := d.Detect(events)
	if len(reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.Wallet != "X" || len(r.Mints) != 2 {
		t.Errorf("Expected X on 2 mints, got %+v", r)
	}
	if r.FastestHold() != 10*time.Second {
		t.Errorf("Expected fastest hold 10s, got %v", r.FastestHold())
	}
}

func TestFastSell_FirstMatchingBuy(t *testing.T) {
	d, err := NewFastSellDetector(DefaultFastSellConfig())
	if err != nil {
		t.Fatalf("NewFastSellDetector failed: %v", err)
	}

	if _, ok := d.Observe(buy(0, "X", "M", 1)); ok {
		t.Fatal("Expected no match on a buy")
	}
	d.Observe(buy(10, "X", "M", 1))
	d.Observe(buy(12, "X", "Other", 1))

	fs, ok := d.Observe(sell(25, "X", "M"))
	if !ok {
		t.Fatal("Expected fast sell")
	}
	if fs.Buy != t0 || fs.Hold() != 25*time.Second {
		t.Errorf("Expected match with the first buy, got %+v", fs)
	}
	if d.HistoryLen("X") != 4 {
		t.Errorf("Expected 4 events in history, got %d", d.HistoryLen("X"))
	}
}

func TestFastSell_OutsideWindowOrOtherWallet(t *testing.T) {
	d, _ := NewFastSellDetector(DefaultFastSellConfig())

	d.Observe(buy(0, "X", "M", 1))
	if _, ok := d.Observe(sell(31, "X", "M")); ok {
		t.Error("Expected no match past the window")
	}
	if _, ok := d.Observe(sell(5, "Y", "M")); ok {
		t.Error("Expected no match for another wallet")
	}
	if d.Wallets() != 2 {
		t.Errorf("Expected 2 wallets, got %d", d.Wallets())
	}
}

func TestFastSell_RetentionBoundsHistory(t *testing.T) {
	d, _ := NewFastSellDetector(FastSellConfig{Window: 30 * time.Second, Retention: time.Minute})

	d.Observe(buy(0, "X", "M", 1))
	d.Observe(buy(120, "X", "M", 1))
	if d.HistoryLen("X") != 1 {
		t.Errorf("Expected history pruned to 1, got %d", d.HistoryLen("X"))
	}
}

func TestFastSell_PruneDropsIdleWallets(t *testing.T) {
	d, _ := NewFastSellDetector(FastSellConfig{Window: 30 * time.Second, Retention: time.Minute})

	for i := 0; i < 1000; i++ {
		d.Observe(buy(0, fmt.Sprintf("W%d", i), "M", 1))
	}
	d.Observe(buy(86400, "Active", "M", 1))
	if d.Wallets() != 1001 {
		t.Fatalf("Expected 1001 wallets before prune, got %d", d.Wallets())
	}

	if removed := d.Prune(t0.Add(24 * time.Hour)); removed != 1000 {
		t.Errorf("Expected 1000 events removed, got %d", removed)
	}
	if d.Wallets() != 1 || d.HistoryLen("Active") != 1 {
		t.Errorf("Expected only the active wallet kept, got %d wallets", d.Wallets())
	}
}

func TestFastSell_PruneWithoutRetentionKeepsHistory(t *testing.T) {
	d, _ := NewFastSellDetector(FastSellConfig{Window: 30 * time.Second})
	d.Observe(buy(0, "X", "M", 1))
	if removed := d.Prune(t0.Add(24 * time.Hour)); removed != 0 || d.Wallets() != 1 {
		t.Errorf("Expected full history kept, removed %d, wallets %d", removed, d.Wallets())
	}
}
