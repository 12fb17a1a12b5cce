// Package orchestrator runs batch strategies end to end.
// It coordinates: load trades → detect → deliver alerts
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"solana-leader-lab/internal/alerts"
	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/idhash"
	"solana-leader-lab/internal/observability"
	"solana-leader-lab/internal/storage"
	"solana-leader-lab/internal/strategy"
)

// ErrNoStrategies is returned when Run has nothing to do.
var ErrNoStrategies = errors.New("no batch strategies configured")

// Orchestrator runs batch strategies against one trade source.
// Flow per strategy: fetch → run → deliver
type Orchestrator struct {
	query      storage.TradeQuery
	sink       alerts.Sink
	strategies []strategy.Batch
	now        func() time.Time
	log        logrus.FieldLogger
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	TradeQuery storage.TradeQuery
	Sink       alerts.Sink
	Strategies []strategy.Batch

	// Optional
	Now    func() time.Time // end of the lookback; defaults to time.Now
	Logger logrus.FieldLogger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		query:      opts.TradeQuery,
		sink:       opts.Sink,
		strategies: opts.Strategies,
		now:        opts.Now,
		log:        opts.Logger,
	}
	if o.now == nil {
		o.now = func() time.Time { return time.Now().UTC() }
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	o.log = o.log.WithField("component", "orchestrator")
	return o
}

// StrategyResult summarizes one strategy run.
type StrategyResult struct {
	Strategy  string
	Rows      int
	Alerts    []*domain.Alert
	Delivered int
	Duration  time.Duration
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	Strategies    []StrategyResult
	TradesLoaded  int
	AlertsEmitted int
	Errors        []string
}

// Run executes every strategy in order. A failing strategy is recorded and
// the next one still runs; delivery failures are counted per alert.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	if len(o.strategies) == 0 {
		return nil, ErrNoStrategies
	}

	result := &RunResult{}
	now := o.now()

	for _, s := range o.strategies {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sr, err := o.runOne(ctx, s, now)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		result.Strategies = append(result.Strategies, sr)
		result.TradesLoaded += sr.Rows
		result.AlertsEmitted += len(sr.Alerts)
		if failed := len(sr.Alerts) - sr.Delivered; failed > 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %d alerts not fully delivered", s.Name(), failed))
		}
	}

	o.log.WithFields(logrus.Fields{
		"strategies": len(result.Strategies),
		"trades":     result.TradesLoaded,
		"alerts":     result.AlertsEmitted,
		"errors":     len(result.Errors),
	}).Info("batch run completed")

	return result, nil
}

// runOne loads the strategy's rows, runs it and delivers its alerts.
func (o *Orchestrator) runOne(ctx context.Context, s strategy.Batch, now time.Time) (StrategyResult, error) {
	start := time.Now()
	sr := StrategyResult{Strategy: s.Name()}
	log := o.log.WithField("strategy", s.Name())

	filter := s.Filter(now)
	log.WithFields(logrus.Fields{"since": filter.Since, "until": filter.Until}).Info("loading trades")

	trades, err := o.query.FetchTrades(ctx, filter)
	if err != nil {
		observability.RecordBatchRun(s.Name(), "error", time.Since(start).Seconds(), 0)
		return sr, fmt.Errorf("load trades: %w", err)
	}
	sr.Rows = len(trades)

	found, err := s.Run(ctx, trades, now)
	if err != nil {
		observability.RecordBatchRun(s.Name(), "error", time.Since(start).Seconds(), sr.Rows)
		return sr, fmt.Errorf("detect: %w", err)
	}
	sr.Alerts = found

	for _, a := range found {
		// content IDs keep re-runs from duplicating stored alerts
		idhash.AssignAlertID(a)
		observability.RecordAlert(a.Strategy)
		if err := o.sink.Send(ctx, a); err != nil {
			log.WithError(err).WithField("alert_id", a.ID).Warn("alert delivery incomplete")
			continue
		}
		sr.Delivered++
	}

	sr.Duration = time.Since(start)
	observability.RecordBatchRun(s.Name(), "ok", sr.Duration.Seconds(), sr.Rows)
	log.WithFields(logrus.Fields{
		"rows":     sr.Rows,
		"alerts":   len(sr.Alerts),
		"duration": sr.Duration.Round(time.Millisecond).String(),
	}).Info("strategy finished")

	return sr, nil
}
