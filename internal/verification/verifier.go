package verification

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/storage"
	"solana-leader-lab/internal/strategy"
	"solana-leader-lab/internal/window"
)

// Report contains the outcome of one verification.
type Report struct {
	Trades      int
	Streamed    int
	Replayed    int
	Match       bool
	Divergences []FieldDivergence
}

// Verifier replays stored trades through both detection paths.
type Verifier struct {
	query storage.TradeQuery
	cfg   strategy.GroupReplayConfig
	now   func() time.Time
	log   logrus.FieldLogger
}

// NewVerifier creates a verifier. A nil logger uses the standard logger.
func NewVerifier(query storage.TradeQuery, cfg strategy.GroupReplayConfig, log logrus.FieldLogger) *Verifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Verifier{
		query: query,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.WithField("component", "verifier"),
	}
}

// WithClock sets the end of the lookback window.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify loads the replay window and compares both paths over it.
func (v *Verifier) Verify(ctx context.Context) (*Report, error) {
	replay, err := strategy.NewGroupReplay(v.cfg)
	if err != nil {
		return nil, err
	}
	now := v.now()

	trades, err := v.query.FetchTrades(ctx, replay.Filter(now))
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	report, err := VerifyTrades(ctx, trades, v.cfg, now)
	if err != nil {
		return nil, err
	}
	v.log.WithFields(logrus.Fields{
		"trades":      report.Trades,
		"streamed":    report.Streamed,
		"replayed":    report.Replayed,
		"divergences": len(report.Divergences),
	}).Info("verification completed")
	return report, nil
}

// VerifyTrades runs trades through a fresh streaming co-occurrence strategy
// and through the group replay, and compares the alerts. trades is not
// modified.
func VerifyTrades(ctx context.Context, trades []domain.TradeEvent, cfg strategy.GroupReplayConfig, now time.Time) (*Report, error) {
	sorted := slices.Clone(trades)
	window.SortByTime(sorted)

	stream, err := strategy.NewCoOccurrence(cfg.CoOccurrence)
	if err != nil {
		return nil, err
	}
	var streamed []*domain.Alert
	for i, e := range sorted {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		a, err := stream.Process(ctx, e)
		if err != nil {
			return nil, err
		}
		if a != nil {
			streamed = append(streamed, a)
		}
	}

	replay, err := strategy.NewGroupReplay(cfg)
	if err != nil {
		return nil, err
	}
	replayed, err := replay.Run(ctx, sorted, now)
	if err != nil {
		return nil, err
	}

	divergences := CompareAlerts(streamed, replayed)
	return &Report{
		Trades:      len(sorted),
		Streamed:    len(streamed),
		Replayed:    len(replayed),
		Match:       len(divergences) == 0,
		Divergences: divergences,
	}, nil
}
