package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/storage"
)

// ReplaySource feeds a stored history through the streaming path without any
// RPC dependency.
type ReplaySource struct {
	query  storage.TradeQuery
	filter storage.TradeFilter
	speed  float64
	log    logrus.FieldLogger
}

var _ Source = (*ReplaySource)(nil)

// NewReplaySource creates a replay. speed 0 emits as fast as the consumer
// reads; speed 1 preserves the recorded gaps; 10 plays ten times faster.
func NewReplaySource(query storage.TradeQuery, filter storage.TradeFilter, speed float64, log logrus.FieldLogger) *ReplaySource {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReplaySource{query: query, filter: filter, speed: speed, log: log.WithField("component", "replay")}
}

// Run emits every matching trade in deterministic order and returns nil once
// the history is exhausted.
func (r *ReplaySource) Run(ctx context.Context, out chan<- domain.TradeEvent) error {
	start := time.Now()

	events, err := r.query.FetchTrades(ctx, r.filter)
	if err != nil {
		return fmt.Errorf("load replay history: %w", err)
	}
	SortEvents(events)
	r.log.WithField("events", len(events)).Info("replay loaded")

	for i, e := range events {
		if r.speed > 0 && i > 0 {
			gap := time.Duration(float64(e.Timestamp.Sub(events[i-1].Timestamp)) / r.speed)
			if gap > 0 {
				timer := time.NewTimer(gap)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil
				case <-timer.C:
				}
			}
		}
		select {
		case out <- e:
		case <-ctx.Done():
			return nil
		}
	}

	r.log.WithFields(logrus.Fields{
		"events":   len(events),
		"duration": time.Since(start).String(),
	}).Info("replay complete")
	return nil
}
