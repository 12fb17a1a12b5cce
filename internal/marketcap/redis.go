package marketcap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const unknownMarker = "unknown"

// RedisStore shares market caps between watcher processes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ SharedStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. Keys are prefix + mint.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mcap:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get implements SharedStore.
func (s *RedisStore) Get(ctx context.Context, mint string) (Value, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+mint).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Value{}, false, nil
		}
		return Value{}, false, fmt.Errorf("redis GET %s: %w", mint, err)
	}
	if raw == unknownMarker {
		return Unknown, true, nil
	}
	usd, err := decimal.NewFromString(raw)
	if err != nil {
		return Value{}, false, fmt.Errorf("parse cached value %q: %w", raw, err)
	}
	return Value{USD: usd, Known: true}, true, nil
}

// Set implements SharedStore.
func (s *RedisStore) Set(ctx context.Context, mint string, v Value, ttl time.Duration) error {
	raw := unknownMarker
	if v.Known {
		raw = v.USD.String()
	}
	if err := s.client.Set(ctx, s.prefix+mint, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", mint, err)
	}
	return nil
}
