package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/observability"
)

// ErrTooManyFailures is returned when MaxFailures consecutive sessions fail.
var ErrTooManyFailures = errors.New("too many consecutive stream failures")

// SupervisorConfig configures reconnection.
type SupervisorConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// A session that lasted at least HealthyAfter resets the backoff.
	HealthyAfter time.Duration
	// MaxFailures of 0 retries forever.
	MaxFailures int
}

// DefaultSupervisorConfig returns production defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		InitialInterval:     time.Second,
		MaxInterval:         30 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
		HealthyAfter:        time.Minute,
	}
}

// Supervisor restarts a Source with exponential backoff until ctx is done.
// Detector state lives outside the source, so it survives reconnects.
type Supervisor struct {
	source Source
	cfg    SupervisorConfig
	log    logrus.FieldLogger
}

// NewSupervisor creates a supervisor. A nil logger uses the standard logger.
func NewSupervisor(source Source, cfg SupervisorConfig, log logrus.FieldLogger) *Supervisor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{source: source, cfg: cfg, log: log.WithField("component", "supervisor")}
}

func (s *Supervisor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval
	b.Multiplier = s.cfg.Multiplier
	b.RandomizationFactor = s.cfg.RandomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run blocks until ctx is cancelled (returning nil) or MaxFailures is hit.
func (s *Supervisor) Run(ctx context.Context, out chan<- domain.TradeEvent) error {
	b := s.newBackOff()
	failures := 0

	for {
		started := time.Now()
		err := s.source.Run(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("source stopped")
		}

		if time.Since(started) >= s.cfg.HealthyAfter {
			b.Reset()
			failures = 0
		}
		failures++
		if s.cfg.MaxFailures > 0 && failures >= s.cfg.MaxFailures {
			return fmt.Errorf("%w: %d in a row, last: %v", ErrTooManyFailures, failures, err)
		}

		wait := b.NextBackOff()
		observability.RecordReconnect()
		s.log.WithError(err).WithFields(logrus.Fields{
			"failures": failures,
			"retry_in": wait.String(),
		}).Warn("stream session ended, reconnecting")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
