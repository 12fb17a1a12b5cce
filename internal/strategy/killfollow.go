package strategy

import (
	"context"
	"time"

	"solana-leader-lab/internal/detector"
	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/observability"
	"solana-leader-lab/internal/storage"
)

// KillFollowConfig configures the kill-follow strategy.
type KillFollowConfig struct {
	Detector detector.RoundTripConfig
	Lookback time.Duration
	Workers  int // zero uses GOMAXPROCS
}

// DefaultKillFollowConfig returns the production thresholds.
func DefaultKillFollowConfig() KillFollowConfig {
	return KillFollowConfig{
		Detector: detector.DefaultRoundTripConfig(),
		Lookback: DefaultLookback,
	}
}

// Validate checks thresholds.
func (c KillFollowConfig) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if c.Lookback <= 0 {
		return ErrInvalidLookback
	}
	return nil
}

// KillFollow flags wallets that repeatedly buy a PumpFun token and dump it
// within seconds.
type KillFollow struct {
	cfg      KillFollowConfig
	detector *detector.RoundTripDetector
}

var _ Batch = (*KillFollow)(nil)

// NewKillFollow creates the strategy.
func NewKillFollow(cfg KillFollowConfig) (*KillFollow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := detector.NewRoundTripDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}
	return &KillFollow{cfg: cfg, detector: d}, nil
}

// Name implements Batch.
func (s *KillFollow) Name() string { return domain.StrategyKillFollow }

// Config returns the strategy configuration.
func (s *KillFollow) Config() KillFollowConfig { return s.cfg }

// Filter implements Batch: buys and sells from the PumpFun view.
func (s *KillFollow) Filter(now time.Time) storage.TradeFilter {
	return storage.TradeFilter{
		Since:   now.Add(-s.cfg.Lookback),
		Until:   now,
		Markets: []domain.Market{domain.MarketPumpFun},
	}
}

type walletResult struct {
	report  detector.RoundTripReport
	flagged bool
	bought  int // distinct mints bought
}

// Run implements Batch. Wallets are analysed in parallel. An alert's votes
// are the mints round-tripped out of the mints the wallet bought.
func (s *KillFollow) Run(ctx context.Context, trades []domain.TradeEvent, now time.Time) ([]*domain.Alert, error) {
	wallets, parts := partition(trades, byWallet)

	results, err := fanOut(ctx, s.cfg.Workers, wallets, parts, func(w string, events []domain.TradeEvent) walletResult {
		r, ok := s.detector.DetectWallet(w, events)
		return walletResult{report: r, flagged: ok, bought: distinctBuys(events)}
	})
	if err != nil {
		return nil, err
	}

	var out []*domain.Alert
	for _, res := range results {
		if !res.flagged {
			continue
		}
		observability.RecordMatch(s.Name())
		r := res.report
		out = append(out, domain.NewAlert(s.Name(), r.Wallet, len(r.Mints), max(res.bought, len(r.Mints)), domain.Evidence{
			Mints:       r.Mints,
			HoldSeconds: r.FastestHold().Seconds(),
		}, now))
	}
	return out, nil
}

func distinctBuys(events []domain.TradeEvent) int {
	seen := make(map[string]struct{})
	for _, e := range events {
		if e.IsBuy() {
			seen[e.Mint] = struct{}{}
		}
	}
	return len(seen)
}
