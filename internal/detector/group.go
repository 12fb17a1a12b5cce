// Package detector implements the pattern detectors that feed leader
// attribution: co-occurrence groups, sequence clusters, round trips and
// fast sells.
package detector

import (
	"errors"
	"iter"
	"slices"
	"strings"
	"time"

	"solana-leader-lab/internal/domain"
)

// Errors returned by detector constructors.
var (
	ErrInvalidWindow    = errors.New("window must be positive")
	ErrInvalidGroupSize = errors.New("min group size must be at least 2")
	ErrInvalidSightings = errors.New("min group sightings must be at least 1")
	ErrInvalidCluster   = errors.New("min cluster size must be at least 2")
)

// GroupConfig configures the co-occurrence detector.
type GroupConfig struct {
	Window       time.Duration // co-occurrence window
	MinGroupSize int           // members including the triggering wallet
	MinSightings int           // distinct mints before a group is evaluated
}

// DefaultGroupConfig returns the production thresholds.
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		Window:       30 * time.Second,
		MinGroupSize: 3,
		MinSightings: 2,
	}
}

// Validate checks thresholds.
func (c GroupConfig) Validate() error {
	if c.Window <= 0 {
		return ErrInvalidWindow
	}
	if c.MinGroupSize < 2 {
		return ErrInvalidGroupSize
	}
	if c.MinSightings < 1 {
		return ErrInvalidSightings
	}
	return nil
}

// Group is a set of wallets seen buying the same mint inside one window.
// Identity is the sorted member set, so insertion order never matters.
type Group struct {
	Key     string
	Members []string // sorted

	// Sightings holds one mint per time the group formed, in order.
	Sightings []string
	// FirstBuyerVotes holds the triggering wallet of each sighting.
	FirstBuyerVotes []string

	FirstSeen time.Time
	LastSeen  time.Time
}

// DistinctMints returns the distinct mints in the sighting history, in
// first-seen order.
func (g *Group) DistinctMints() []string {
	seen := make(map[string]struct{}, len(g.Sightings))
	var out []string
	for _, m := range g.Sightings {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// GroupKey builds the order-independent key for a wallet set.
func GroupKey(members []string) string {
	sorted := slices.Clone(members)
	slices.Sort(sorted)
	return strings.Join(slices.Compact(sorted), ",")
}

// GroupDetector finds co-occurring buyer sets and accumulates their
// sightings. It owns all group histories. Not safe for concurrent use.
type GroupDetector struct {
	cfg    GroupConfig
	groups map[string]*Group
}

// NewGroupDetector creates a detector.
func NewGroupDetector(cfg GroupConfig) (*GroupDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GroupDetector{
		cfg:    cfg,
		groups: make(map[string]*Group),
	}, nil
}

// Config returns the detector configuration.
func (d *GroupDetector) Config() GroupConfig {
	return d.cfg
}

// Observe processes one buy. recent must yield the retained buys newest
// first (it may include e itself). Scanning stops at the first event
// older than the window.
//
// When enough distinct wallets bought e.Mint inside the window, the group
// {matched} ∪ {e.Wallet} records a sighting with e.Wallet as its vote. The
// returned bool reports whether the group has reached the distinct-mint
// threshold and should be attributed.
func (d *GroupDetector) Observe(e domain.TradeEvent, recent iter.Seq[domain.TradeEvent]) (*Group, bool) {
	if !e.IsBuy() {
		return nil, false
	}

	windowStart := e.Timestamp.Add(-d.cfg.Window)
	matched := make(map[string]struct{})
	for ev := range recent {
		if ev.Timestamp.Before(windowStart) {
			break
		}
		if !ev.IsBuy() || ev.Mint != e.Mint || ev.Wallet == e.Wallet {
			continue
		}
		matched[ev.Wallet] = struct{}{}
	}

	if len(matched) < d.cfg.MinGroupSize-1 {
		return nil, false
	}

	members := make([]string, 0, len(matched)+1)
	for w := range matched {
		members = append(members, w)
	}
	members = append(members, e.Wallet)
	slices.Sort(members)
	key := strings.Join(members, ",")

	g, ok := d.groups[key]
	if !ok {
		g = &Group{
			Key:       key,
			Members:   members,
			FirstSeen: e.Timestamp,
		}
		d.groups[key] = g
	}
	g.Sightings = append(g.Sightings, e.Mint)
	g.FirstBuyerVotes = append(g.FirstBuyerVotes, e.Wallet)
	g.LastSeen = e.Timestamp

	return g, len(g.DistinctMints()) >= d.cfg.MinSightings
}

// Group returns a tracked group by key.
func (d *GroupDetector) Group(key string) (*Group, bool) {
	g, ok := d.groups[key]
	return g, ok
}

// Len returns the number of tracked groups.
func (d *GroupDetector) Len() int {
	return len(d.groups)
}

// Forget drops groups not seen since cutoff and returns how many.
func (d *GroupDetector) Forget(cutoff time.Time) int {
	n := 0
	for k, g := range d.groups {
		if g.LastSeen.Before(cutoff) {
			delete(d.groups, k)
			n++
		}
	}
	return n
}
