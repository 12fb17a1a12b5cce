// Package alerts delivers leader alerts to logs, the alert store and Kafka.
package alerts

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/observability"
	"solana-leader-lab/internal/storage"
)

// Sink receives accepted alerts. Send must be safe for concurrent use.
type Sink interface {
	Name() string
	Send(ctx context.Context, a *domain.Alert) error
}

// LogSink writes one structured line per alert.
type LogSink struct {
	log logrus.FieldLogger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a LogSink. A nil logger uses the standard logger.
func NewLogSink(log logrus.FieldLogger) *LogSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogSink{log: log.WithField("component", "alerts")}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Send implements Sink.
func (s *LogSink) Send(_ context.Context, a *domain.Alert) error {
	fields := logrus.Fields{
		"alert_id":   a.ID,
		"strategy":   a.Strategy,
		"wallet":     a.Wallet,
		"votes":      a.Votes,
		"total":      a.TotalVotes,
		"confidence": fmt.Sprintf("%.2f", a.Confidence),
	}
	if len(a.Evidence.Members) > 0 {
		fields["members"] = a.Evidence.Members
	}
	if len(a.Evidence.Mints) > 0 {
		fields["mints"] = a.Evidence.Mints
	}
	if a.Evidence.HoldSeconds > 0 {
		fields["hold_seconds"] = a.Evidence.HoldSeconds
	}
	if a.Evidence.MarketCapUSD != "" {
		fields["market_cap_usd"] = a.Evidence.MarketCapUSD
	}
	s.log.WithFields(fields).Warn("potential leader")
	return nil
}

// StoreSink persists alerts. Re-delivering an alert is not an error.
type StoreSink struct {
	store storage.AlertStore
}

var _ Sink = (*StoreSink)(nil)

// NewStoreSink creates a StoreSink.
func NewStoreSink(store storage.AlertStore) *StoreSink {
	return &StoreSink{store: store}
}

// Name implements Sink.
func (s *StoreSink) Name() string { return "store" }

// Send implements Sink.
func (s *StoreSink) Send(ctx context.Context, a *domain.Alert) error {
	if err := s.store.Insert(ctx, a); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("store alert %s: %w", a.ID, err)
	}
	return nil
}

// MultiSink fans an alert out to every sink. A failing sink does not stop
// the others; failures are counted and joined.
type MultiSink struct {
	sinks []Sink
	log   logrus.FieldLogger
}

var _ Sink = (*MultiSink)(nil)

// NewMultiSink combines sinks in order.
func NewMultiSink(log logrus.FieldLogger, sinks ...Sink) *MultiSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MultiSink{sinks: sinks, log: log.WithField("component", "alerts")}
}

// Name implements Sink.
func (m *MultiSink) Name() string { return "multi" }

// Send implements Sink.
func (m *MultiSink) Send(ctx context.Context, a *domain.Alert) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(ctx, a); err != nil {
			observability.RecordSinkFailure(s.Name())
			m.log.WithError(err).WithFields(logrus.Fields{
				"sink":     s.Name(),
				"alert_id": a.ID,
			}).Error("alert delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

// Func adapts a function to Sink. Tests and the batch runner use it to
// collect alerts.
type Func func(ctx context.Context, a *domain.Alert) error

// Name implements Sink.
func (f Func) Name() string { return "func" }

// Send implements Sink.
func (f Func) Send(ctx context.Context, a *domain.Alert) error { return f(ctx, a) }
