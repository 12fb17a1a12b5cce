package strategy

import (
	"context"
	"time"

	"solana-leader-lab/internal/attribution"
	"solana-leader-lab/internal/detector"
	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/observability"
	"solana-leader-lab/internal/window"
)

// CoOccurrenceConfig configures the co-occurrence strategy.
type CoOccurrenceConfig struct {
	Group    detector.GroupConfig
	Horizon  time.Duration // buffer history
	Cooldown time.Duration
	// GroupRetention drops groups not seen for this long. Zero keeps them
	// for the life of the process.
	GroupRetention time.Duration
}

// DefaultCoOccurrenceConfig returns the production thresholds.
func DefaultCoOccurrenceConfig() CoOccurrenceConfig {
	return CoOccurrenceConfig{
		Group:    detector.DefaultGroupConfig(),
		Horizon:  10 * time.Minute,
		Cooldown: 5 * time.Minute,
	}
}

// Validate checks thresholds.
func (c CoOccurrenceConfig) Validate() error {
	if err := c.Group.Validate(); err != nil {
		return err
	}
	if c.Horizon < c.Group.Window {
		return ErrHorizonTooShort
	}
	if c.Cooldown < 0 || c.GroupRetention < 0 {
		return ErrNegativeDuration
	}
	return nil
}

// CoOccurrence flags the wallet that most often completes a recurring
// buyer group. Groups are re-attributed on every sighting once they have
// been seen on enough distinct mints; promotion needs a strict majority.
type CoOccurrence struct {
	cfg        CoOccurrenceConfig
	buffer     *window.Buffer[domain.TradeEvent]
	groups     *detector.GroupDetector
	attributor *attribution.Attributor
	late       int
}

var _ Streaming = (*CoOccurrence)(nil)
var _ Sweeper = (*CoOccurrence)(nil)

// NewCoOccurrence creates the strategy.
func NewCoOccurrence(cfg CoOccurrenceConfig) (*CoOccurrence, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	groups, err := detector.NewGroupDetector(cfg.Group)
	if err != nil {
		return nil, err
	}
	return &CoOccurrence{
		cfg:        cfg,
		buffer:     window.NewBuffer[domain.TradeEvent](cfg.Horizon),
		groups:     groups,
		attributor: attribution.NewAttributor(attribution.PolicyMajority, attribution.NewCooldownGate(cfg.Cooldown)),
	}, nil
}

// Name implements Streaming.
func (s *CoOccurrence) Name() string { return domain.StrategyCoOccurrence }

// Process implements Streaming. Sells are ignored. Event time is the clock
// for pruning and cooldowns, so a replayed stream behaves like a live one.
func (s *CoOccurrence) Process(_ context.Context, e domain.TradeEvent) (*domain.Alert, error) {
	if !e.IsBuy() {
		return nil, nil
	}

	s.buffer.PushAndPrune(e, e.Timestamp)
	if n := s.buffer.OutOfOrder(); n > s.late {
		for ; s.late < n; s.late++ {
			observability.RecordOutOfOrder()
		}
	}

	g, ready := s.groups.Observe(e, s.buffer.Recent(e.Timestamp, s.cfg.Group.Window))
	if g == nil {
		return nil, nil
	}
	observability.RecordMatch(s.Name())
	if !ready {
		return nil, nil
	}

	v := s.attributor.Decide(g.FirstBuyerVotes, e.Timestamp)
	if !v.Promoted {
		observability.RecordSuppressed(s.Name(), string(v.Reason))
		return nil, nil
	}

	return domain.NewAlert(s.Name(), v.Candidate.Address, v.Candidate.Votes, v.Candidate.TotalVotes,
		domain.Evidence{
			Members: g.Members,
			Mints:   g.DistinctMints(),
		}, e.Timestamp), nil
}

// State implements Streaming.
func (s *CoOccurrence) State() State {
	return State{
		BufferLen:  s.buffer.Len(),
		BufferSpan: s.buffer.Span(),
		Groups:     s.groups.Len(),
		Cooldowns:  s.attributor.Gate().Len(),
	}
}

// Sweep implements Sweeper.
func (s *CoOccurrence) Sweep(now time.Time) int {
	n := s.attributor.Gate().Sweep(now)
	if s.cfg.GroupRetention > 0 {
		n += s.groups.Forget(now.Add(-s.cfg.GroupRetention))
	}
	return n
}
