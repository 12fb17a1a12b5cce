// Package window provides time-bounded event buffers shared by the detectors.
package window

import (
	"iter"
	"sort"
	"time"
)

// Timestamped is anything that can live in a window buffer.
type Timestamped interface {
	Time() time.Time
}

// compactThreshold is the minimum number of dead slots before the backing
// slice is compacted.
const compactThreshold = 1024

// Buffer is an append-only, time-ordered store that retains items no older
// than its horizon relative to the last Prune.
//
// Items are kept sorted by timestamp. A push older than the current tail is
// inserted at its ordered position (after any equal timestamps) so the
// newest-to-oldest early exit in Recent stays valid. Existing items are never
// reordered and removal only happens at the oldest end.
//
// Buffer is not safe for concurrent use.
type Buffer[T Timestamped] struct {
	items      []T
	head       int // index of the oldest retained item
	horizon    time.Duration
	outOfOrder int // pushes that had to be inserted behind the tail
}

// NewBuffer creates a buffer with retention horizon h. A non-positive horizon
// keeps everything until an explicit Prune with a later cutoff.
func NewBuffer[T Timestamped](h time.Duration) *Buffer[T] {
	return &Buffer[T]{horizon: h}
}

// Horizon returns the retention horizon.
func (b *Buffer[T]) Horizon() time.Duration {
	return b.horizon
}

// Len returns the number of retained items.
func (b *Buffer[T]) Len() int {
	return len(b.items) - b.head
}

// OutOfOrder returns how many pushes arrived behind the tail.
func (b *Buffer[T]) OutOfOrder() int {
	return b.outOfOrder
}

// Push appends an item in arrival order.
func (b *Buffer[T]) Push(item T) {
	n := len(b.items)
	if n == b.head || !item.Time().Before(b.items[n-1].Time()) {
		b.items = append(b.items, item)
		return
	}

	// Late arrival: find the first retained item strictly newer than item.
	b.outOfOrder++
	live := b.items[b.head:]
	idx := sort.Search(len(live), func(i int) bool {
		return live[i].Time().After(item.Time())
	})
	pos := b.head + idx

	var zero T
	b.items = append(b.items, zero)
	copy(b.items[pos+1:], b.items[pos:n])
	b.items[pos] = item
}

// PushAndPrune appends an item and prunes relative to now, the way the
// streaming detectors call it on every event.
func (b *Buffer[T]) PushAndPrune(item T, now time.Time) int {
	b.Push(item)
	return b.Prune(now)
}

// Prune removes from the front every item with timestamp < now - horizon and
// returns how many were removed.
func (b *Buffer[T]) Prune(now time.Time) int {
	if b.horizon <= 0 {
		return 0
	}
	return b.PruneBefore(now.Add(-b.horizon))
}

// PruneBefore removes from the front every item with timestamp < cutoff.
func (b *Buffer[T]) PruneBefore(cutoff time.Time) int {
	removed := 0
	var zero T
	for b.head < len(b.items) && b.items[b.head].Time().Before(cutoff) {
		b.items[b.head] = zero
		b.head++
		removed++
	}
	b.compact()
	return removed
}

func (b *Buffer[T]) compact() {
	if b.head == len(b.items) {
		b.items = b.items[:0]
		b.head = 0
		return
	}
	if b.head >= compactThreshold && b.head*2 >= len(b.items) {
		n := copy(b.items, b.items[b.head:])
		var zero T
		for i := n; i < len(b.items); i++ {
			b.items[i] = zero
		}
		b.items = b.items[:n]
		b.head = 0
	}
}

// Recent yields retained items from newest to oldest whose timestamp falls in
// [now - window, now]. Iteration stops at the first item older than the
// window. Items stamped after now are skipped, not treated as a boundary.
//
// The sequence is lazy and restartable; it holds no cursor state between
// calls. The buffer must not be mutated while iterating.
func (b *Buffer[T]) Recent(now time.Time, window time.Duration) iter.Seq[T] {
	start := now.Add(-window)
	return func(yield func(T) bool) {
		for i := len(b.items) - 1; i >= b.head; i-- {
			item := b.items[i]
			ts := item.Time()
			if ts.Before(start) {
				return
			}
			if ts.After(now) {
				continue
			}
			if !yield(item) {
				return
			}
		}
	}
}

// All yields retained items from oldest to newest.
func (b *Buffer[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := b.head; i < len(b.items); i++ {
			if !yield(b.items[i]) {
				return
			}
		}
	}
}

// Oldest returns the oldest retained item.
func (b *Buffer[T]) Oldest() (T, bool) {
	if b.Len() == 0 {
		var zero T
		return zero, false
	}
	return b.items[b.head], true
}

// Newest returns the newest retained item.
func (b *Buffer[T]) Newest() (T, bool) {
	if b.Len() == 0 {
		var zero T
		return zero, false
	}
	return b.items[len(b.items)-1], true
}

// Span returns the time between the oldest and newest retained items.
func (b *Buffer[T]) Span() time.Duration {
	oldest, ok := b.Oldest()
	if !ok {
		return 0
	}
	newest, _ := b.Newest()
	return newest.Time().Sub(oldest.Time())
}
