package domain

import (
	"time"

	"github.com/google/uuid"
)

// Strategy names. The batch aliases match the names accepted in YAML configs.
const (
	StrategyCoOccurrence = "co_occurrence"
	StrategyFastSell     = "fast_sell"
	StrategySequence     = "sequence"
	StrategyKillFollow   = "kill_follow"
	StrategyGroupReplay  = "group_replay"
)

// Alert is the only observable output of the detection core: one record
// per accepted leader attribution.
type Alert struct {
	ID         string
	Strategy   string
	Wallet     string
	Votes      int
	TotalVotes int
	Confidence float64 // Votes / TotalVotes
	Evidence   Evidence
	Timestamp  time.Time
}

// Evidence carries whatever supported the attribution. Fields are populated
// per strategy; unused ones stay empty.
type Evidence struct {
	Members      []string           `json:"members,omitempty"`
	Mints        []string           `json:"mints,omitempty"`
	Sequences    []SequenceEvidence `json:"sequences,omitempty"`
	HoldSeconds  float64            `json:"hold_seconds,omitempty"`
	MarketCapUSD string             `json:"market_cap_usd,omitempty"`
}

// SequenceEvidence is the order in which a participant set entered one token.
type SequenceEvidence struct {
	Mint    string   `json:"mint"`
	Wallets []string `json:"wallets"`
}

// NewAlert builds an alert with a fresh ID and a confidence derived from the vote counts.
func NewAlert(strategy, wallet string, votes, totalVotes int, evidence Evidence, ts time.Time) *Alert {
	var confidence float64
	if totalVotes > 0 {
		confidence = float64(votes) / float64(totalVotes)
	}
	return &Alert{
		ID:         uuid.NewString(),
		Strategy:   strategy,
		Wallet:     wallet,
		Votes:      votes,
		TotalVotes: totalVotes,
		Confidence: confidence,
		Evidence:   evidence,
		Timestamp:  ts.UTC(),
	}
}
