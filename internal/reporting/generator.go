// Package reporting renders batch results and alert history as Markdown
// or CSV.
package reporting

import (
	"context"
	"slices"
	"strings"
	"time"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/metrics"
	"solana-leader-lab/internal/orchestrator"
	"solana-leader-lab/internal/storage"
)

// Generator produces reports.
type Generator struct {
	alerts storage.AlertStore
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a generator. store may be nil when only FromRun is used.
func NewGenerator(store storage.AlertStore) *Generator {
	return &Generator{
		alerts: store,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// FromRun builds a report from a batch run.
func (g *Generator) FromRun(result *orchestrator.RunResult) *Report {
	r := &Report{
		Title:       "Batch Leader Report",
		GeneratedAt: g.now(),
		Errors:      slices.Clone(result.Errors),
	}

	var all []*domain.Alert
	for _, s := range result.Strategies {
		r.Runs = append(r.Runs, RunRow{
			Strategy:  s.Strategy,
			Rows:      s.Rows,
			Alerts:    len(s.Alerts),
			Delivered: s.Delivered,
			Duration:  s.Duration,
		})
		all = append(all, s.Alerts...)
	}
	g.fill(r, all)
	return r
}

// FromStore builds a report from alerts stored in [start, end).
func (g *Generator) FromStore(ctx context.Context, start, end time.Time) (*Report, error) {
	list, err := g.alerts.ListByTimeRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	r := &Report{
		Title:       "Alert History",
		GeneratedAt: g.now(),
		WindowStart: start,
		WindowEnd:   end,
	}
	g.fill(r, list)
	return r, nil
}

func (g *Generator) fill(r *Report, alerts []*domain.Alert) {
	sorted := slices.Clone(alerts)
	slices.SortFunc(sorted, func(a, b *domain.Alert) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	r.Alerts = sorted
	r.Aggregates = metrics.AggregateByStrategy(sorted)
	r.Leaders = metrics.SummarizeLeaders(sorted)

	if r.WindowStart.IsZero() && len(sorted) > 0 {
		r.WindowStart = sorted[0].Timestamp
		r.WindowEnd = sorted[len(sorted)-1].Timestamp
	}
}
