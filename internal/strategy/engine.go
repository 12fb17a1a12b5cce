package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-leader-lab/internal/alerts"
	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/observability"
)

// Engine drives a streaming strategy. Every event is fully processed before
// the next one; the mutex lets several producers share one engine.
type Engine struct {
	strategy Streaming
	sink     alerts.Sink
	log      logrus.FieldLogger
	sweep    time.Duration

	mu     sync.Mutex
	latest time.Time
	events int64
	alerts int64
}

// EngineOption configures Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(l logrus.FieldLogger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithSweepInterval enables periodic cooldown sweeps in Run.
func WithSweepInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.sweep = d
	}
}

// NewEngine creates an engine delivering alerts to sink.
func NewEngine(s Streaming, sink alerts.Sink, opts ...EngineOption) *Engine {
	e := &Engine{
		strategy: s,
		sink:     sink,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithFields(logrus.Fields{"component": "engine", "strategy": s.Name()})
	return e
}

// Run consumes in until it is closed or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, in <-chan domain.TradeEvent) error {
	var tick <-chan time.Time
	if e.sweep > 0 {
		t := time.NewTicker(e.sweep)
		defer t.Stop()
		tick = t.C
	}

	e.log.Info("engine started")
	defer func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.log.WithFields(logrus.Fields{"events": e.events, "alerts": e.alerts}).Info("engine stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			e.Sweep()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			if err := e.Handle(ctx, ev); err != nil {
				e.log.WithError(err).Error("process event failed")
			}
		}
	}
}

// Handle processes one event and delivers any resulting alert. Delivery
// failures are logged and counted; they never stop the engine.
func (e *Engine) Handle(ctx context.Context, ev domain.TradeEvent) error {
	e.mu.Lock()
	alert, err := e.strategy.Process(ctx, ev)
	e.events++
	if ev.Timestamp.After(e.latest) {
		e.latest = ev.Timestamp
	}
	st := e.strategy.State()
	if alert != nil {
		e.alerts++
	}
	e.mu.Unlock()

	observability.UpdateEngineState(e.strategy.Name(), st.BufferLen, st.BufferSpan.Seconds(), st.Groups, st.Cooldowns)
	if err != nil {
		return err
	}
	if alert == nil {
		return nil
	}

	observability.RecordAlert(alert.Strategy)
	if err := e.sink.Send(ctx, alert); err != nil {
		e.log.WithError(err).WithField("alert_id", alert.ID).Warn("alert delivery incomplete")
	}
	return nil
}

// Sweep drops expired cooldowns as of the newest event time seen.
func (e *Engine) Sweep() int {
	sw, ok := e.strategy.(Sweeper)
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest.IsZero() {
		return 0
	}
	n := sw.Sweep(e.latest)
	if n > 0 {
		e.log.WithField("dropped", n).Debug("swept expired state")
	}
	return n
}

// Stats returns the number of events processed and alerts emitted.
func (e *Engine) Stats() (events, emitted int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events, e.alerts
}
