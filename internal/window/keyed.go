package window

import (
	"cmp"
	"time"
)

// Keyed is a set of buffers partitioned by key (wallet, token mint) that
// share one horizon. Empty partitions are dropped on prune.
type Keyed[K cmp.Ordered, T Timestamped] struct {
	horizon time.Duration
	parts   map[K]*Buffer[T]
}

// NewKeyed creates a keyed buffer with retention horizon h.
func NewKeyed[K cmp.Ordered, T Timestamped](h time.Duration) *Keyed[K, T] {
	return &Keyed[K, T]{
		horizon: h,
		parts:   make(map[K]*Buffer[T]),
	}
}

// Push appends item to the partition for key.
func (k *Keyed[K, T]) Push(key K, item T) {
	b, ok := k.parts[key]
	if !ok {
		b = NewBuffer[T](k.horizon)
		k.parts[key] = b
	}
	b.Push(item)
}

// Get returns the partition for key, or nil.
func (k *Keyed[K, T]) Get(key K) *Buffer[T] {
	return k.parts[key]
}

// Prune prunes every partition and returns the total removed.
func (k *Keyed[K, T]) Prune(now time.Time) int {
	removed := 0
	for key, b := range k.parts {
		removed += b.Prune(now)
		if b.Len() == 0 {
			delete(k.parts, key)
		}
	}
	return removed
}

// Len returns the number of non-empty partitions.
func (k *Keyed[K, T]) Len() int {
	return len(k.parts)
}

// GroupBy partitions items by key and sorts each partition by timestamp
// (stable, so equal timestamps keep input order). This is the batch shape:
// load once, group, sort.
func GroupBy[K comparable, T Timestamped](items []T, key func(T) K) map[K][]T {
	out := make(map[K][]T)
	for _, item := range items {
		k := key(item)
		out[k] = append(out[k], item)
	}
	for k := range out {
		SortByTime(out[k])
	}
	return out
}

// PushAndPrune appends item to the partition for key and prunes only that
// partition relative to now.
func (k *Keyed[K, T]) PushAndPrune(key K, item T, now time.Time) int {
	k.Push(key, item)
	return k.parts[key].Prune(now)
}
