package reporting

import (
	"time"

	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/metrics"
)

// Report is the rendered outcome of a batch run or an alert history query.
type Report struct {
	// Metadata
	Title       string
	GeneratedAt time.Time
	WindowStart time.Time // zero when unknown
	WindowEnd   time.Time

	// Per-strategy execution (batch runs only)
	Runs []RunRow

	// Aggregates sorted by strategy name
	Aggregates []metrics.StrategyAggregate

	// Leaders ranked by cross-strategy agreement
	Leaders []metrics.LeaderSummary

	// Alerts sorted by timestamp, then ID
	Alerts []*domain.Alert

	Errors []string
}

// RunRow describes one strategy execution.
type RunRow struct {
	Strategy  string
	Rows      int
	Alerts    int
	Delivered int
	Duration  time.Duration
}
