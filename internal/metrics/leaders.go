// Package metrics aggregates alerts into per-strategy and per-wallet
// summaries for reports.
package metrics

import (
	"slices"
	"strings"
	"time"

	"solana-leader-lab/internal/domain"
)

// StrategyAggregate summarizes the alerts of one strategy.
type StrategyAggregate struct {
	Strategy         string
	Alerts           int
	Wallets          int
	ConfidenceMean   float64
	ConfidenceMedian float64
	ConfidenceP10    float64
	ConfidenceP90    float64
}

// LeaderSummary collects every alert naming one wallet. Wallets flagged by
// several heuristics rank first.
type LeaderSummary struct {
	Wallet        string
	Alerts        int
	Strategies    []string // sorted
	Mints         int      // distinct mints across evidence
	MaxConfidence float64
	FirstSeen     time.Time
	LastSeen      time.Time
}

// AggregateByStrategy computes one aggregate per strategy, sorted by name.
func AggregateByStrategy(alerts []*domain.Alert) []StrategyAggregate {
	confidences := make(map[string][]float64)
	wallets := make(map[string]map[string]struct{})
	for _, a := range alerts {
		confidences[a.Strategy] = append(confidences[a.Strategy], a.Confidence)
		if wallets[a.Strategy] == nil {
			wallets[a.Strategy] = make(map[string]struct{})
		}
		wallets[a.Strategy][a.Wallet] = struct{}{}
	}

	out := make([]StrategyAggregate, 0, len(confidences))
	for name, values := range confidences {
		d := summarize(values)
		out = append(out, StrategyAggregate{
			Strategy:         name,
			Alerts:           len(values),
			Wallets:          len(wallets[name]),
			ConfidenceMean:   d.mean,
			ConfidenceMedian: d.median,
			ConfidenceP10:    d.p10,
			ConfidenceP90:    d.p90,
		})
	}
	slices.SortFunc(out, func(a, b StrategyAggregate) int {
		return strings.Compare(a.Strategy, b.Strategy)
	})
	return out
}

// SummarizeLeaders groups alerts by wallet. Order: number of distinct
// strategies desc, alert count desc, max confidence desc, wallet asc.
func SummarizeLeaders(alerts []*domain.Alert) []LeaderSummary {
	type acc struct {
		summary    LeaderSummary
		strategies map[string]struct{}
		mints      map[string]struct{}
	}
	byWallet := make(map[string]*acc)

	for _, a := range alerts {
		w := byWallet[a.Wallet]
		if w == nil {
			w = &acc{
				summary:    LeaderSummary{Wallet: a.Wallet, FirstSeen: a.Timestamp, LastSeen: a.Timestamp},
				strategies: make(map[string]struct{}),
				mints:      make(map[string]struct{}),
			}
			byWallet[a.Wallet] = w
		}
		w.summary.Alerts++
		w.summary.MaxConfidence = max(w.summary.MaxConfidence, a.Confidence)
		if a.Timestamp.Before(w.summary.FirstSeen) {
			w.summary.FirstSeen = a.Timestamp
		}
		if a.Timestamp.After(w.summary.LastSeen) {
			w.summary.LastSeen = a.Timestamp
		}
		w.strategies[a.Strategy] = struct{}{}
		for _, m := range a.Evidence.Mints {
			w.mints[m] = struct{}{}
		}
	}

	out := make([]LeaderSummary, 0, len(byWallet))
	for _, w := range byWallet {
		s := w.summary
		for name := range w.strategies {
			s.Strategies = append(s.Strategies, name)
		}
		slices.Sort(s.Strategies)
		s.Mints = len(w.mints)
		out = append(out, s)
	}

	slices.SortFunc(out, func(a, b LeaderSummary) int {
		if c := len(b.Strategies) - len(a.Strategies); c != 0 {
			return c
		}
		if c := b.Alerts - a.Alerts; c != 0 {
			return c
		}
		if a.MaxConfidence != b.MaxConfidence {
			if a.MaxConfidence > b.MaxConfidence {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Wallet, b.Wallet)
	})
	return out
}
