package marketcap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDexScreener_FirstPairFDV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/latest/dex/tokens/MintA") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"pairs":[{"fdv":123456.78},{"fdv":999}]}`))
	}))
	defer server.Close()

	v, err := NewDexScreener(server.URL, time.Second).FetchMarketCap(context.Background(), "MintA")
	if err != nil {
		t.Fatalf("FetchMarketCap failed: %v", err)
	}
	if !v.Equal(decimal.RequireFromString("123456.78")) {
		t.Errorf("expected 123456.78, got %s", v)
	}
}

func TestDexScreener_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"http error", http.StatusBadGateway, ``, ErrUnavailable},
		{"no pairs", http.StatusOK, `{"pairs":null}`, ErrNoPairs},
		{"no fdv", http.StatusOK, `{"pairs":[{"priceUsd":"1"}]}`, ErrNoFDV},
		{"bad json", http.StatusOK, `{"pairs":`, ErrUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewDexScreener(server.URL, time.Second).FetchMarketCap(context.Background(), "M")
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

type countingFetcher struct {
	calls   atomic.Int32
	value   decimal.Decimal
	err     error
	release chan struct{}
}

func (f *countingFetcher) FetchMarketCap(ctx context.Context, mint string) (decimal.Decimal, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	return f.value, f.err
}

func TestCache_ConcurrentLookupsCollapse(t *testing.T) {
	f := &countingFetcher{value: decimal.NewFromInt(250_000), release: make(chan struct{})}
	c := NewCache(f, DefaultCacheConfig())

	var wg sync.WaitGroup
	results := make([]Value, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Lookup(context.Background(), "MintA")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(f.release)
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
	for i, v := range results {
		if !v.Known || !v.USD.Equal(decimal.NewFromInt(250_000)) {
			t.Errorf("result %d: unexpected value %+v", i, v)
		}
	}

	c.Lookup(context.Background(), "MintA")
	if n := f.calls.Load(); n != 1 {
		t.Errorf("expected cached value on second lookup, got %d fetches", n)
	}
}

func TestCache_FailureIsUnknownAndNegativelyCached(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &countingFetcher{err: ErrNoPairs}
	c := NewCache(f, CacheConfig{TTL: time.Hour, NegativeTTL: 30 * time.Second, Timeout: time.Second},
		WithClock(func() time.Time { return now }))

	v := c.Lookup(context.Background(), "M")
	if v.Known {
		t.Fatal("expected unknown value")
	}
	if v.AtOrBelow(decimal.NewFromInt(500_000)) {
		t.Error("unknown must fail the ceiling filter")
	}

	c.Lookup(context.Background(), "M")
	if f.calls.Load() != 1 {
		t.Errorf("expected negative cache hit, got %d fetches", f.calls.Load())
	}

	now = now.Add(31 * time.Second)
	c.Lookup(context.Background(), "M")
	if f.calls.Load() != 2 {
		t.Errorf("expected refetch after negative TTL, got %d fetches", f.calls.Load())
	}
}

func TestCache_ZeroIsUnknown(t *testing.T) {
	c := NewCache(&countingFetcher{value: decimal.Zero}, DefaultCacheConfig())
	if v := c.Lookup(context.Background(), "M"); v.Known {
		t.Errorf("expected zero market cap to be unknown, got %+v", v)
	}
}

func TestCache_TimeoutDegradesToUnknown(t *testing.T) {
	f := &countingFetcher{value: decimal.NewFromInt(1), release: make(chan struct{})}
	defer close(f.release)
	c := NewCache(f, CacheConfig{TTL: time.Minute, NegativeTTL: time.Second, Timeout: 20 * time.Millisecond})

	start := time.Now()
	v := c.Lookup(context.Background(), "M")
	if v.Known {
		t.Error("expected unknown after fetch timeout")
	}
	if time.Since(start) > time.Second {
		t.Error("lookup blocked past the fetch timeout")
	}
}

func TestCache_CallerCancellation(t *testing.T) {
	f := &countingFetcher{value: decimal.NewFromInt(1), release: make(chan struct{})}
	defer close(f.release)
	c := NewCache(f, DefaultCacheConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if v := c.Lookup(ctx, "M"); v.Known {
		t.Error("expected unknown when the caller gives up")
	}
}

type mapStore struct {
	mu   sync.Mutex
	data map[string]Value
	ttls map[string]time.Duration
}

func (m *mapStore) Get(ctx context.Context, mint string) (Value, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[mint]
	return v, ok, nil
}

func (m *mapStore) Set(ctx context.Context, mint string, v Value, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[mint] = v
	m.ttls[mint] = ttl
	return nil
}

func TestCache_SharedStore(t *testing.T) {
	store := &mapStore{data: map[string]Value{
		"Cached": {USD: decimal.NewFromInt(42), Known: true},
	}, ttls: map[string]time.Duration{}}
	f := &countingFetcher{err: ErrUnavailable}
	c := NewCache(f, DefaultCacheConfig(), WithSharedStore(store))

	if v := c.Lookup(context.Background(), "Cached"); !v.Known || !v.USD.Equal(decimal.NewFromInt(42)) {
		t.Errorf("expected shared value, got %+v", v)
	}
	if f.calls.Load() != 0 {
		t.Errorf("expected no fetch on shared hit, got %d", f.calls.Load())
	}

	c.Lookup(context.Background(), "Missing")
	if _, ok := store.data["Missing"]; !ok {
		t.Error("expected unknown written back to shared store")
	}
	if store.ttls["Missing"] != DefaultCacheConfig().NegativeTTL {
		t.Errorf("expected negative TTL, got %v", store.ttls["Missing"])
	}
}

func TestCache_Purge(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(&countingFetcher{value: decimal.NewFromInt(5)},
		CacheConfig{TTL: time.Minute, NegativeTTL: time.Second, Timeout: time.Second},
		WithClock(func() time.Time { return now }))

	c.Lookup(context.Background(), "A")
	now = now.Add(2 * time.Minute)
	if n := c.Purge(); n != 1 || c.Len() != 0 {
		t.Errorf("expected 1 purged and empty cache, got %d/%d", n, c.Len())
	}
}

func TestValue_AtOrBelow(t *testing.T) {
	ceiling := decimal.NewFromInt(500_000)
	if !(Value{USD: ceiling, Known: true}).AtOrBelow(ceiling) {
		t.Error("expected value equal to ceiling to pass")
	}
	if (Value{USD: ceiling.Add(decimal.NewFromInt(1)), Known: true}).AtOrBelow(ceiling) {
		t.Error("expected value above ceiling to fail")
	}
}
