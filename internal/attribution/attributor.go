package attribution

import (
	"time"
)

// Policy selects the promotion rule.
type Policy int

const (
	// PolicyMajority promotes only a strict majority winner.
	PolicyMajority Policy = iota
	// PolicyPlurality promotes the most common address regardless of share.
	// The sequence heuristic uses it for its most-common-first-mover rule.
	PolicyPlurality
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyMajority:
		return "majority"
	case PolicyPlurality:
		return "plurality"
	default:
		return "unknown"
	}
}

// Reason explains a verdict.
type Reason string

const (
	ReasonPromoted   Reason = "promoted"
	ReasonNoVotes    Reason = "no_votes"
	ReasonNoMajority Reason = "no_majority"
	ReasonCooldown   Reason = "cooldown"
)

// Verdict is the result of an attribution attempt.
type Verdict struct {
	Candidate Candidate
	Promoted  bool
	Reason    Reason
	At        time.Time
}

// Attributor applies a vote policy and a shared cooldown gate.
type Attributor struct {
	policy Policy
	gate   *CooldownGate
	now    func() time.Time
}

// Option configures an Attributor.
type Option func(*Attributor)

// WithClock overrides the wall clock used when no event time is given.
func WithClock(now func() time.Time) Option {
	return func(a *Attributor) {
		a.now = now
	}
}

// NewAttributor creates an attributor. A nil gate disables suppression.
func NewAttributor(policy Policy, gate *CooldownGate, opts ...Option) *Attributor {
	a := &Attributor{
		policy: policy,
		gate:   gate,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Gate returns the cooldown gate.
func (a *Attributor) Gate() *CooldownGate {
	return a.gate
}

// Decide tallies votes and, if the winner qualifies and is not cooling
// down, stamps the gate at now. A zero now uses the attributor clock.
func (a *Attributor) Decide(votes []string, now time.Time) Verdict {
	if now.IsZero() {
		now = a.now()
	}
	c, ok := Tally(votes)
	if !ok {
		return Verdict{Reason: ReasonNoVotes, At: now}
	}
	return a.Promote(c, now)
}

// Promote applies policy and cooldown to an already tallied candidate.
func (a *Attributor) Promote(c Candidate, now time.Time) Verdict {
	if now.IsZero() {
		now = a.now()
	}
	v := Verdict{Candidate: c, At: now}

	if a.policy == PolicyMajority && !c.Majority() {
		v.Reason = ReasonNoMajority
		return v
	}
	if a.gate != nil && !a.gate.TryAcquire(c.Address, now) {
		v.Reason = ReasonCooldown
		return v
	}

	v.Promoted = true
	v.Reason = ReasonPromoted
	return v
}
