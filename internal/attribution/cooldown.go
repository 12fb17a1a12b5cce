package attribution

import (
	"sync"
	"time"
)

// CooldownGate remembers the last alert time per wallet and suppresses
// re-alerts inside the cooldown period. Safe for concurrent use.
type CooldownGate struct {
	mu     sync.Mutex
	period time.Duration
	last   map[string]time.Time
}

// NewCooldownGate creates a gate with the given period.
func NewCooldownGate(period time.Duration) *CooldownGate {
	return &CooldownGate{
		period: period,
		last:   make(map[string]time.Time),
	}
}

// Period returns the cooldown period.
func (g *CooldownGate) Period() time.Duration {
	return g.period
}

// Allow reports whether wallet may alert at now.
// An alert is allowed once now - last >= period.
func (g *CooldownGate) Allow(wallet string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allowLocked(wallet, now)
}

func (g *CooldownGate) allowLocked(wallet string, now time.Time) bool {
	last, ok := g.last[wallet]
	if !ok {
		return true
	}
	return now.Sub(last) >= g.period
}

// Stamp records an alert for wallet at now.
func (g *CooldownGate) Stamp(wallet string, now time.Time) {
	g.mu.Lock()
	g.last[wallet] = now
	g.mu.Unlock()
}

// TryAcquire checks and stamps atomically. It returns false when suppressed.
func (g *CooldownGate) TryAcquire(wallet string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.allowLocked(wallet, now) {
		return false
	}
	g.last[wallet] = now
	return true
}

// Last returns the last alert time for wallet.
func (g *CooldownGate) Last(wallet string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts, ok := g.last[wallet]
	return ts, ok
}

// Sweep drops entries whose cooldown has elapsed and returns how many.
// Dropping them does not change any Allow outcome.
func (g *CooldownGate) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for w, ts := range g.last {
		if now.Sub(ts) >= g.period {
			delete(g.last, w)
			n++
		}
	}
	return n
}

// Len returns the number of tracked wallets.
func (g *CooldownGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}
