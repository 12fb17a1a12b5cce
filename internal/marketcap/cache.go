package marketcap

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"solana-leader-lab/internal/observability"
)

// Value is a cached market cap. Known is false when the lookup failed or
// returned zero; unknown values never pass a ceiling filter.
type Value struct {
	USD   decimal.Decimal
	Known bool
}

// Unknown is the zero-information value.
var Unknown = Value{}

// AtOrBelow reports whether the value is known and <= ceiling.
func (v Value) AtOrBelow(ceiling decimal.Decimal) bool {
	return v.Known && v.USD.LessThanOrEqual(ceiling)
}

// String returns the USD amount or "unknown".
func (v Value) String() string {
	if !v.Known {
		return "unknown"
	}
	return v.USD.StringFixed(2)
}

// Lookup results, used as metric labels.
const (
	ResultHit     = "hit"
	ResultL2Hit   = "l2_hit"
	ResultFetched = "fetched"
	ResultUnknown = "unknown"
)

// SharedStore is an optional second-level cache shared between processes.
type SharedStore interface {
	Get(ctx context.Context, mint string) (Value, bool, error)
	Set(ctx context.Context, mint string, v Value, ttl time.Duration) error
}

// CacheConfig configures Cache.
type CacheConfig struct {
	TTL         time.Duration // known values
	NegativeTTL time.Duration // unknown values
	Timeout     time.Duration // per external fetch
}

// DefaultCacheConfig returns production defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:         10 * time.Minute,
		NegativeTTL: 30 * time.Second,
		Timeout:     5 * time.Second,
	}
}

type entry struct {
	value   Value
	expires time.Time
}

// Cache is a get-or-fetch market cap cache safe for concurrent use.
// Concurrent lookups for one mint share a single in-flight fetch.
type Cache struct {
	fetcher Fetcher
	shared  SharedStore
	cfg     CacheConfig
	log     logrus.FieldLogger
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

// CacheOption configures Cache.
type CacheOption func(*Cache)

// WithSharedStore adds a second-level cache.
func WithSharedStore(s SharedStore) CacheOption {
	return func(c *Cache) {
		c.shared = s
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) CacheOption {
	return func(c *Cache) {
		c.log = l
	}
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a cache in front of fetcher.
func NewCache(fetcher Fetcher, cfg CacheConfig, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher: fetcher,
		cfg:     cfg,
		log:     logrus.StandardLogger(),
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.Timeout <= 0 {
		c.cfg.Timeout = DefaultCacheConfig().Timeout
	}
	c.log = c.log.WithField("component", "marketcap")
	return c
}

// Lookup returns the market cap for mint. It never returns an error: every
// failure degrades to Unknown. ctx bounds only the caller's wait; an
// in-flight fetch keeps its own timeout so other waiters still benefit.
func (c *Cache) Lookup(ctx context.Context, mint string) Value {
	if v, ok := c.local(mint); ok {
		observability.RecordMarketCapLookup(ResultHit)
		return v
	}

	ch := c.group.DoChan(mint, func() (interface{}, error) {
		if v, ok := c.local(mint); ok {
			return v, nil
		}
		return c.load(mint), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Value)
	case <-ctx.Done():
		observability.RecordMarketCapLookup(ResultUnknown)
		return Unknown
	}
}

func (c *Cache) local(mint string) (Value, bool) {
	c.mu.RLock()
	e, ok := c.entries[mint]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return Value{}, false
	}
	return e.value, true
}

func (c *Cache) store(mint string, v Value) {
	ttl := c.cfg.TTL
	if !v.Known {
		ttl = c.cfg.NegativeTTL
	}
	c.mu.Lock()
	c.entries[mint] = entry{value: v, expires: c.now().Add(ttl)}
	c.mu.Unlock()
}

// load runs once per mint at a time.
func (c *Cache) load(mint string) Value {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	if c.shared != nil {
		v, ok, err := c.shared.Get(ctx, mint)
		if err != nil {
			c.log.WithError(err).WithField("mint", mint).Warn("shared cache read failed")
		} else if ok {
			observability.RecordMarketCapLookup(ResultL2Hit)
			c.store(mint, v)
			return v
		}
	}

	start := time.Now()
	usd, err := c.fetcher.FetchMarketCap(ctx, mint)
	observability.RecordMarketCapFetch(time.Since(start).Seconds())

	v := Value{USD: usd, Known: err == nil && usd.IsPositive()}
	if err != nil {
		c.log.WithError(err).WithField("mint", mint).Warn("market cap lookup failed")
	}
	if v.Known {
		observability.RecordMarketCapLookup(ResultFetched)
	} else {
		v = Unknown
		observability.RecordMarketCapLookup(ResultUnknown)
	}

	c.store(mint, v)
	if c.shared != nil {
		ttl := c.cfg.TTL
		if !v.Known {
			ttl = c.cfg.NegativeTTL
		}
		if err := c.shared.Set(ctx, mint, v, ttl); err != nil {
			c.log.WithError(err).WithField("mint", mint).Warn("shared cache write failed")
		}
	}
	return v
}

// Purge drops expired local entries and returns how many.
func (c *Cache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of local entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
