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
	"solana-leader-lab/internal/window"
)

// GroupReplayConfig configures the group replay strategy.
type GroupReplayConfig struct {
	CoOccurrence CoOccurrenceConfig
	Lookback     time.Duration
}

// DefaultGroupReplayConfig returns the production thresholds.
func DefaultGroupReplayConfig() GroupReplayConfig {
	return GroupReplayConfig{
		CoOccurrence: DefaultCoOccurrenceConfig(),
		Lookback:     DefaultLookback,
	}
}

// Validate checks thresholds.
func (c GroupReplayConfig) Validate() error {
	if err := c.CoOccurrence.Validate(); err != nil {
		return err
	}
	if c.Lookback <= 0 {
		return ErrInvalidLookback
	}
	return nil
}

// GroupReplay runs the co-occurrence heuristic over stored history. The
// two-pointer scan sees exactly what the streaming buffer would have held at
// each event, so results match a live run over the same trades.
type GroupReplay struct {
	cfg GroupReplayConfig
}

var _ Batch = (*GroupReplay)(nil)

// NewGroupReplay creates the strategy.
func NewGroupReplay(cfg GroupReplayConfig) (*GroupReplay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GroupReplay{cfg: cfg}, nil
}

// Name implements Batch.
func (s *GroupReplay) Name() string { return domain.StrategyGroupReplay }

// Filter implements Batch: buys from both markets.
func (s *GroupReplay) Filter(now time.Time) storage.TradeFilter {
	return storage.TradeFilter{
		Since: now.Add(-s.cfg.Lookback),
		Until: now,
		Sides: []domain.Side{domain.SideBuy},
	}
}

// Run implements Batch. Groups depend on arrival order across mints, so the
// scan is sequential. Alerts carry the time of the event that promoted them.
func (s *GroupReplay) Run(ctx context.Context, trades []domain.TradeEvent, _ time.Time) ([]*domain.Alert, error) {
	buys := slices.DeleteFunc(slices.Clone(trades), func(e domain.TradeEvent) bool { return !e.IsBuy() })
	window.SortByTime(buys)

	cfg := s.cfg.CoOccurrence
	groups, err := detector.NewGroupDetector(cfg.Group)
	if err != nil {
		return nil, err
	}
	attr := attribution.NewAttributor(attribution.PolicyMajority, attribution.NewCooldownGate(cfg.Cooldown))

	var out []*domain.Alert
	for i, view := range window.Replay(buys, cfg.Horizon) {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		e := buys[i]
		g, ready := groups.Observe(e, window.Backward(view, e.Timestamp, cfg.Group.Window))
		if g == nil || !ready {
			continue
		}
		observability.RecordMatch(s.Name())

		v := attr.Decide(g.FirstBuyerVotes, e.Timestamp)
		if !v.Promoted {
			observability.RecordSuppressed(s.Name(), string(v.Reason))
			continue
		}
		out = append(out, domain.NewAlert(s.Name(), v.Candidate.Address, v.Candidate.Votes, v.Candidate.TotalVotes,
			domain.Evidence{
				Members: slices.Clone(g.Members),
				Mints:   g.DistinctMints(),
			}, e.Timestamp))
	}
	return out, nil
}
