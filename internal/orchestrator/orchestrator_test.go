package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"solana-leader-lab/internal/alerts"
	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/storage"
	"solana-leader-lab/internal/storage/memory"
	"solana-leader-lab/internal/strategy"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func trade(sec int, wallet, mint string, side domain.Side) domain.TradeEvent {
	return domain.TradeEvent{
		Timestamp: t0.Add(time.Duration(sec) * time.Second),
		Wallet:    wallet,
		Mint:      mint,
		Amount:    uint64(sec + 1),
		Side:      side,
		Market:    domain.MarketPumpFun,
	}
}

func killFollowTrades() []domain.TradeEvent {
	return []domain.TradeEvent{
		trade(0, "X", "Mint1", domain.SideBuy), trade(10, "X", "Mint1", domain.SideSell),
		trade(100, "X", "Mint2", domain.SideBuy), trade(115, "X", "Mint2", domain.SideSell),
	}
}

func TestOrchestrator_Run_NoStrategies(t *testing.T) {
	orch := New(Options{TradeQuery: memory.NewTradeStore(), Sink: alerts.NewLogSink(nil)})
	if _, err := orch.Run(context.Background()); !errors.Is(err, ErrNoStrategies) {
		t.Errorf("expected ErrNoStrategies, got %v", err)
	}
}

func TestOrchestrator_Run_StoresAlerts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAlertStore()
	kf, err := strategy.FromConfig("KillFollowStrategy", nil)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	orch := New(Options{
		TradeQuery: memory.NewTradeStore(killFollowTrades()...),
		Sink:       alerts.NewMultiSink(nil, alerts.NewLogSink(nil), alerts.NewStoreSink(store)),
		Strategies: []strategy.Batch{kf},
		Now:        func() time.Time { return t0.Add(time.Hour) },
	})

	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.TradesLoaded != 4 {
		t.Errorf("expected 4 trades, got %d", result.TradesLoaded)
	}
	if result.AlertsEmitted != 1 || len(result.Errors) != 0 {
		t.Fatalf("expected 1 alert and no errors, got %+v", result)
	}

	stored, err := store.ListByWallet(ctx, "X")
	if err != nil {
		t.Fatalf("ListByWallet failed: %v", err)
	}
	if len(stored) != 1 || stored[0].Strategy != domain.StrategyKillFollow {
		t.Errorf("expected stored kill-follow alert, got %+v", stored)
	}
}

func TestOrchestrator_Run_LookbackBoundsRows(t *testing.T) {
	kf, _ := strategy.FromConfig("kill-follow", strategy.Params{strategy.ParamLookbackHours: 1})
	orch := New(Options{
		TradeQuery: memory.NewTradeStore(killFollowTrades()...),
		Sink:       alerts.NewLogSink(nil),
		Strategies: []strategy.Batch{kf},
		Now:        func() time.Time { return t0.Add(3 * time.Hour) },
	})

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.TradesLoaded != 0 || result.AlertsEmitted != 0 {
		t.Errorf("expected trades outside the lookback to be skipped, got %+v", result)
	}
}

type failingQuery struct{}

func (failingQuery) FetchTrades(context.Context, storage.TradeFilter) ([]domain.TradeEvent, error) {
	return nil, errors.New("clickhouse down")
}

func TestOrchestrator_Run_StrategyErrorDoesNotStopOthers(t *testing.T) {
	seq, _ := strategy.FromConfig("SequenceStrategy", nil)
	kf, _ := strategy.FromConfig("KillFollowStrategy", nil)

	orch := New(Options{
		TradeQuery: failingQuery{},
		Sink:       alerts.NewLogSink(nil),
		Strategies: []strategy.Batch{seq, kf},
	})

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("expected errors to be collected, got: %v", err)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "clickhouse down") {
		t.Errorf("expected wrapped cause, got %s", result.Errors[0])
	}
}

func TestOrchestrator_Run_DeliveryFailureCounted(t *testing.T) {
	kf, _ := strategy.FromConfig("KillFollowStrategy", nil)
	var mu sync.Mutex
	attempts := 0
	sink := alerts.Func(func(context.Context, *domain.Alert) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("broker unavailable")
	})

	orch := New(Options{
		TradeQuery: memory.NewTradeStore(killFollowTrades()...),
		Sink:       sink,
		Strategies: []strategy.Batch{kf},
		Now:        func() time.Time { return t0.Add(time.Hour) },
	})

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if attempts != 1 || result.Strategies[0].Delivered != 0 || len(result.Errors) != 1 {
		t.Errorf("expected one failed delivery, got attempts=%d result=%+v", attempts, result)
	}
}

func TestOrchestrator_Run_Cancelled(t *testing.T) {
	kf, _ := strategy.FromConfig("KillFollowStrategy", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := New(Options{
		TradeQuery: memory.NewTradeStore(killFollowTrades()...),
		Sink:       alerts.NewLogSink(nil),
		Strategies: []strategy.Batch{kf},
	})
	if _, err := orch.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOrchestrator_Run_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAlertStore()
	kf, _ := strategy.FromConfig("KillFollowStrategy", nil)

	for i := range 2 {
		orch := New(Options{
			TradeQuery: memory.NewTradeStore(killFollowTrades()...),
			Sink:       alerts.NewStoreSink(store),
			Strategies: []strategy.Batch{kf},
			Now:        func() time.Time { return t0.Add(time.Duration(i+1) * time.Hour) },
		})
		result, err := orch.Run(ctx)
		if err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
		if result.Strategies[0].Delivered != 1 {
			t.Fatalf("run %d: expected 1 delivered alert, got %+v", i, result.Strategies[0])
		}
	}

	stored, err := store.ListByWallet(ctx, "X")
	if err != nil {
		t.Fatalf("ListByWallet failed: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("expected the second run to map onto the stored alert, got %d rows", len(stored))
	}
}
