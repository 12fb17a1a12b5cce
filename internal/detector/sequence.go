package detector

import (
	"slices"
	"strings"
	"time"

	"solana-leader-lab/internal/attribution"
	"solana-leader-lab/internal/domain"
	"solana-leader-lab/internal/window"
)

// SequenceConfig configures the sequence cluster detector.
type SequenceConfig struct {
	Window         time.Duration // anchored at the seed event
	MinClusterSize int
	MinClusters    int // clusters per participant set before comparing order
}

// DefaultSequenceConfig returns the production thresholds.
func DefaultSequenceConfig() SequenceConfig {
	return SequenceConfig{
		Window:         10 * time.Second,
		MinClusterSize: 3,
		MinClusters:    2,
	}
}

// Validate checks thresholds.
func (c SequenceConfig) Validate() error {
	if c.Window <= 0 {
		return ErrInvalidWindow
	}
	if c.MinClusterSize < 2 || c.MinClusters < 1 {
		return ErrInvalidCluster
	}
	return nil
}

// ClusterEntry is one participant of a sequence cluster.
type ClusterEntry struct {
	Timestamp time.Time
	Wallet    string
	Amount    uint64
}

// Cluster is an ordered run of distinct-wallet buys on one mint inside a
// window anchored at the first entry. Every later entry's amount differs
// from the seed amount.
type Cluster struct {
	Mint    string
	Entries []ClusterEntry
}

// Order returns wallets in order of first appearance.
func (c Cluster) Order() []string {
	out := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = e.Wallet
	}
	return out
}

// Key returns the order-independent participant key.
func (c Cluster) Key() string {
	return GroupKey(c.Order())
}

// SequenceCandidate is a leader proposed for one participant set.
type SequenceCandidate struct {
	Leader       string
	Participants []string // sorted
	Votes        int      // clusters where Leader came first
	TotalVotes   int
	Sequences    []domain.SequenceEvidence
}

// SequenceDetector forms clusters per mint and compares participation
// order across mints.
type SequenceDetector struct {
	cfg SequenceConfig
}

// NewSequenceDetector creates a detector.
func NewSequenceDetector(cfg SequenceConfig) (*SequenceDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SequenceDetector{cfg: cfg}, nil
}

// Clusters builds the clusters for one mint. events must be buys on that
// mint; they are sorted here if needed.
func (d *SequenceDetector) Clusters(mint string, events []domain.TradeEvent) []Cluster {
	if !window.IsSorted(events) {
		events = slices.Clone(events)
		window.SortByTime(events)
	}

	var out []Cluster
	for i := range events {
		seed := events[i]
		end := window.AnchoredEnd(events, i, d.cfg.Window)

		entries := []ClusterEntry{{Timestamp: seed.Timestamp, Wallet: seed.Wallet, Amount: seed.Amount}}
		seen := map[string]struct{}{seed.Wallet: {}}
		for j := i + 1; j < end; j++ {
			ev := events[j]
			if ev.Amount == seed.Amount {
				continue
			}
			if _, dup := seen[ev.Wallet]; dup {
				continue
			}
			seen[ev.Wallet] = struct{}{}
			entries = append(entries, ClusterEntry{Timestamp: ev.Timestamp, Wallet: ev.Wallet, Amount: ev.Amount})
		}

		if len(entries) >= d.cfg.MinClusterSize {
			out = append(out, Cluster{Mint: mint, Entries: entries})
		}
	}
	return out
}

// Compare groups clusters by participant key and proposes a leader for
// every key whose participation order is not the same everywhere. The
// leader is the most common first wallet, ties to the smallest address.
// Results are ordered by participant key.
func (d *SequenceDetector) Compare(clusters []Cluster) []SequenceCandidate {
	byKey := make(map[string][]Cluster)
	for _, c := range clusters {
		k := c.Key()
		byKey[k] = append(byKey[k], c)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out []SequenceCandidate
	for _, k := range keys {
		group := byKey[k]
		if len(group) < d.cfg.MinClusters {
			continue
		}

		orders := make([][]string, len(group))
		for i, c := range group {
			orders[i] = c.Order()
		}
		if allEqual(orders) {
			continue
		}

		firsts := make([]string, len(orders))
		evidence := make([]domain.SequenceEvidence, len(group))
		for i, c := range group {
			firsts[i] = orders[i][0]
			evidence[i] = domain.SequenceEvidence{Mint: c.Mint, Wallets: orders[i]}
		}

		winner, _ := attribution.Tally(firsts)
		out = append(out, SequenceCandidate{
			Leader:       winner.Address,
			Participants: strings.Split(k, ","),
			Votes:        winner.Votes,
			TotalVotes:   winner.TotalVotes,
			Sequences:    evidence,
		})
	}
	return out
}

// Detect runs Clusters over every mint partition and then Compare.
// Partitions are visited in mint order so output is deterministic.
func (d *SequenceDetector) Detect(byMint map[string][]domain.TradeEvent) []SequenceCandidate {
	mints := make([]string, 0, len(byMint))
	for m := range byMint {
		mints = append(mints, m)
	}
	slices.Sort(mints)

	var clusters []Cluster
	for _, m := range mints {
		clusters = append(clusters, d.Clusters(m, byMint[m])...)
	}
	return d.Compare(clusters)
}

func allEqual(orders [][]string) bool {
	for i := 1; i < len(orders); i++ {
		if !slices.Equal(orders[0], orders[i]) {
			return false
		}
	}
	return true
}
