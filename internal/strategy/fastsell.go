package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"solana-leader-lab/internal/attribution"
	"solana-leader-lab/internal/detector"
	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/marketcap"
	"solana-leader-lab/internal/observability"
)

// MarketCaps looks up a token's market cap. *marketcap.Cache implements it.
type MarketCaps interface {
	Lookup(ctx context.Context, mint string) marketcap.Value
}

// Suppression reason used when the market cap filter rejects a match.
const reasonMarketCap = "market_cap"

// FastSellConfig configures the fast-sell strategy.
type FastSellConfig struct {
	Detector detector.FastSellConfig
	Ceiling  decimal.Decimal // USD; matches above it are dropped
	Cooldown time.Duration
}

// DefaultFastSellConfig returns the production thresholds.
func DefaultFastSellConfig() FastSellConfig {
	return FastSellConfig{
		Detector: detector.DefaultFastSellConfig(),
		Ceiling:  decimal.NewFromInt(500_000),
		Cooldown: 5 * time.Minute,
	}
}

// Validate checks thresholds.
func (c FastSellConfig) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if c.Ceiling.IsNegative() {
		return ErrNegativeCeiling
	}
	if c.Cooldown < 0 {
		return ErrNegativeDuration
	}
	return nil
}

// FastSell flags wallets that sell a low-cap token shortly after buying it.
type FastSell struct {
	cfg        FastSellConfig
	detector   *detector.FastSellDetector
	caps       MarketCaps
	attributor *attribution.Attributor
}

var _ Streaming = (*FastSell)(nil)
var _ Sweeper = (*FastSell)(nil)

// NewFastSell creates the strategy.
func NewFastSell(cfg FastSellConfig, caps MarketCaps) (*FastSell, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if caps == nil {
		return nil, ErrMissingMarketCaps
	}
	d, err := detector.NewFastSellDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}
	return &FastSell{
		cfg:        cfg,
		detector:   d,
		caps:       caps,
		attributor: attribution.NewAttributor(attribution.PolicyMajority, attribution.NewCooldownGate(cfg.Cooldown)),
	}, nil
}

// Name implements Streaming.
func (s *FastSell) Name() string { return domain.StrategyFastSell }

// Process implements Streaming. A match whose market cap is unknown or above
// the ceiling produces no alert.
func (s *FastSell) Process(ctx context.Context, e domain.TradeEvent) (*domain.Alert, error) {
	match, ok := s.detector.Observe(e)
	if !ok {
		return nil, nil
	}
	observability.RecordMatch(s.Name())

	mc := s.caps.Lookup(ctx, match.Mint)
	if !mc.AtOrBelow(s.cfg.Ceiling) {
		observability.RecordSuppressed(s.Name(), reasonMarketCap)
		return nil, nil
	}

	v := s.attributor.Promote(attribution.Candidate{Address: match.Wallet, Votes: 1, TotalVotes: 1}, e.Timestamp)
	if !v.Promoted {
		observability.RecordSuppressed(s.Name(), string(v.Reason))
		return nil, nil
	}

	return domain.NewAlert(s.Name(), match.Wallet, 1, 1, domain.Evidence{
		Mints:        []string{match.Mint},
		HoldSeconds:  match.Hold().Seconds(),
		MarketCapUSD: mc.String(),
	}, e.Timestamp), nil
}

// State implements Streaming.
func (s *FastSell) State() State {
	return State{
		BufferLen: s.detector.Wallets(),
		Cooldowns: s.attributor.Gate().Len(),
	}
}

// Sweep implements Sweeper. It drops expired cooldowns and wallet history
// past the retention horizon.
func (s *FastSell) Sweep(now time.Time) int {
	return s.attributor.Gate().Sweep(now) + s.detector.Prune(now)
}
