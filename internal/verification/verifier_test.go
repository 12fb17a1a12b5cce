package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/storage/memory"
	"solana-leader-lab/internal/strategy"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func buy(sec int, wallet, mint string) domain.TradeEvent {
	return domain.TradeEvent{
		Timestamp: t0.Add(time.Duration(sec) * time.Second),
		Wallet:    wallet,
		Mint:      mint,
		Amount:    uint64(sec + 1),
		Side:      domain.SideBuy,
		Market:    domain.MarketPumpFun,
	}
}

// groupTrades has A, B and C buying four mints together, A first each time,
// plus noise from wallets outside the group.
func groupTrades() []domain.TradeEvent {
	var trades []domain.TradeEvent
	for i, mint := range []string{"Mint1", "Mint2", "Mint3", "Mint4"} {
		start := i * 100
		trades = append(trades,
			buy(start, "A", mint),
			buy(start+1, "B", mint),
			buy(start+2, "C", mint),
		)
	}
	trades = append(trades, buy(50, "D", "Mint9"), buy(410, "E", "Mint4"))

	sell := buy(411, "A", "Mint4")
	sell.Side = domain.SideSell
	return append(trades, sell)
}

func TestVerifyTrades_Match(t *testing.T) {
	trades := groupTrades()
	// arrival order must not matter
	trades[0], trades[len(trades)-2] = trades[len(trades)-2], trades[0]

	report, err := VerifyTrades(context.Background(), trades, strategy.DefaultGroupReplayConfig(), t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("VerifyTrades failed: %v", err)
	}
	if !report.Match {
		t.Fatalf("expected both paths to agree, got %+v", report.Divergences)
	}
	if report.Streamed == 0 || report.Streamed != report.Replayed {
		t.Errorf("expected equal non-zero alert counts, got %d/%d", report.Streamed, report.Replayed)
	}
	if report.Trades != len(trades) {
		t.Errorf("expected %d trades, got %d", len(trades), report.Trades)
	}
	if trades[0].Wallet != "E" {
		t.Error("input slice must not be reordered")
	}
}

func TestVerifier_Verify(t *testing.T) {
	store := memory.NewTradeStore(groupTrades()...)
	v := NewVerifier(store, strategy.DefaultGroupReplayConfig(), nil).
		WithClock(func() time.Time { return t0.Add(time.Hour) })

	report, err := v.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !report.Match || report.Replayed == 0 {
		t.Errorf("expected matching non-empty replay, got %+v", report)
	}
	// the sell is outside the replay filter
	if report.Trades != len(groupTrades())-1 {
		t.Errorf("expected buys only, got %d trades", report.Trades)
	}
}

func TestVerifyTrades_InvalidConfig(t *testing.T) {
	cfg := strategy.DefaultGroupReplayConfig()
	cfg.Lookback = 0
	if _, err := VerifyTrades(context.Background(), groupTrades(), cfg, t0); !errors.Is(err, strategy.ErrInvalidLookback) {
		t.Errorf("expected ErrInvalidLookback, got %v", err)
	}
}

func TestVerifyTrades_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := VerifyTrades(ctx, groupTrades(), strategy.DefaultGroupReplayConfig(), t0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCompareAlerts_ExactMatch(t *testing.T) {
	ev := domain.Evidence{Members: []string{"A", "B", "C"}, Mints: []string{"M1", "M2"}}
	streamed := []*domain.Alert{domain.NewAlert(domain.StrategyCoOccurrence, "A", 2, 2, ev, t0)}
	replayed := []*domain.Alert{domain.NewAlert(domain.StrategyGroupReplay, "A", 2, 2, ev, t0)}

	if d := CompareAlerts(streamed, replayed); len(d) != 0 {
		t.Errorf("expected no divergences (IDs and strategy ignored), got %+v", d)
	}
}

func TestCompareAlerts_Divergences(t *testing.T) {
	ev := domain.Evidence{Members: []string{"A", "B", "C"}, Mints: []string{"M1", "M2"}}
	streamed := []*domain.Alert{
		domain.NewAlert(domain.StrategyCoOccurrence, "A", 2, 2, ev, t0),
		domain.NewAlert(domain.StrategyCoOccurrence, "C", 2, 3, ev, t0),
	}
	replayed := []*domain.Alert{
		domain.NewAlert(domain.StrategyGroupReplay, "A", 2, 3, domain.Evidence{Members: ev.Members, Mints: []string{"M1"}}, t0.Add(time.Second)),
	}

	d := CompareAlerts(streamed, replayed)
	fields := make(map[string]FieldDivergence)
	for _, div := range d {
		fields[div.Field] = div
	}

	if c, ok := fields["Count"]; !ok || c.Index != -1 || c.Expected != 2 || c.Actual != 1 {
		t.Errorf("expected count divergence 2 vs 1, got %+v", c)
	}
	for _, f := range []string{"TotalVotes", "Confidence", "Timestamp", "Mints"} {
		if div, ok := fields[f]; !ok || div.Index != 0 {
			t.Errorf("expected %s divergence at index 0, got %+v", f, div)
		}
	}
	if _, ok := fields["Wallet"]; ok {
		t.Error("wallet matched and should not diverge")
	}
}
