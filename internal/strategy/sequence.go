package strategy

import (
	"context"
	"slices"
	"time"

	"solana-leader-lab/internal/attribution"
	"solana-leader-lab/internal/detector"
	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/observability"
	"solana-leader-lab/internal/storage"
)

// SequenceConfig configures the sequence strategy.
type SequenceConfig struct {
	Detector detector.SequenceConfig
	Lookback time.Duration
	Workers  int // zero uses GOMAXPROCS
}

// DefaultSequenceConfig returns the production thresholds.
func DefaultSequenceConfig() SequenceConfig {
	return SequenceConfig{
		Detector: detector.DefaultSequenceConfig(),
		Lookback: DefaultLookback,
	}
}

// Validate checks thresholds.
func (c SequenceConfig) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if c.Lookback <= 0 {
		return ErrInvalidLookback
	}
	return nil
}

// Sequence finds participant sets that keep entering tokens together and
// names the wallet that most often goes first.
type Sequence struct {
	cfg      SequenceConfig
	detector *detector.SequenceDetector
}

var _ Batch = (*Sequence)(nil)

// NewSequence creates the strategy.
func NewSequence(cfg SequenceConfig) (*Sequence, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := detector.NewSequenceDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}
	return &Sequence{cfg: cfg, detector: d}, nil
}

// Name implements Batch.
func (s *Sequence) Name() string { return domain.StrategySequence }

// Config returns the strategy configuration.
func (s *Sequence) Config() SequenceConfig { return s.cfg }

// Filter implements Batch: buys from both markets.
func (s *Sequence) Filter(now time.Time) storage.TradeFilter {
	return storage.TradeFilter{
		Since:   now.Add(-s.cfg.Lookback),
		Until:   now,
		Sides:   []domain.Side{domain.SideBuy},
		Markets: []domain.Market{domain.MarketPumpFun, domain.MarketRaydium},
	}
}

// Run implements Batch. Clusters are built per mint in parallel and
// compared once all partitions are done.
func (s *Sequence) Run(ctx context.Context, trades []domain.TradeEvent, now time.Time) ([]*domain.Alert, error) {
	buys := slices.DeleteFunc(slices.Clone(trades), func(e domain.TradeEvent) bool { return !e.IsBuy() })
	mints, parts := partition(buys, byMint)

	perMint, err := fanOut(ctx, s.cfg.Workers, mints, parts, s.detector.Clusters)
	if err != nil {
		return nil, err
	}
	var clusters []detector.Cluster
	for _, c := range perMint {
		clusters = append(clusters, c...)
	}

	attr := attribution.NewAttributor(attribution.PolicyPlurality, nil)
	var out []*domain.Alert
	for _, c := range s.detector.Compare(clusters) {
		observability.RecordMatch(s.Name())
		v := attr.Promote(attribution.Candidate{Address: c.Leader, Votes: c.Votes, TotalVotes: c.TotalVotes}, now)
		if !v.Promoted {
			observability.RecordSuppressed(s.Name(), string(v.Reason))
			continue
		}
		out = append(out, domain.NewAlert(s.Name(), c.Leader, c.Votes, c.TotalVotes, domain.Evidence{
			Members:   c.Participants,
			Mints:     sequenceMints(c.Sequences),
			Sequences: c.Sequences,
		}, now))
	}
	return out, nil
}

func sequenceMints(seqs []domain.SequenceEvidence) []string {
	mints := make([]string, 0, len(seqs))
	for _, s := range seqs {
		mints = append(mints, s.Mint)
	}
	slices.Sort(mints)
	return slices.Compact(mints)
}
