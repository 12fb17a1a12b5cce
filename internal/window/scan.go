package window

import (
	"iter"
	"slices"
	"time"
)

// SortByTime sorts items by timestamp ascending. The sort is stable.
func SortByTime[T Timestamped](items []T) {
	slices.SortStableFunc(items, func(a, b T) int {
		return a.Time().Compare(b.Time())
	})
}

// IsSorted reports whether items are in non-decreasing timestamp order.
func IsSorted[T Timestamped](items []T) bool {
	for i := 1; i < len(items); i++ {
		if items[i].Time().Before(items[i-1].Time()) {
			return false
		}
	}
	return true
}

// AnchoredEnd returns the exclusive end index of the run starting at i whose
// items are within w of items[i] (a fixed anchor, not a rolling window).
// items must be sorted; the scan stops at the first item past the window.
func AnchoredEnd[T Timestamped](items []T, i int, w time.Duration) int {
	if i < 0 || i >= len(items) {
		return i
	}
	limit := items[i].Time().Add(w)
	j := i + 1
	for j < len(items) && !items[j].Time().After(limit) {
		j++
	}
	return j
}

// Replay walks sorted items in order and yields, for each index i, the
// sub-slice of items inside [items[i].Time() - h, items[i].Time()] that ends
// at i. It is the two-pointer equivalent of pushing each item into a Buffer
// and pruning at its timestamp, without ever removing anything.
//
// The yielded slice aliases items and must not be retained.
func Replay[T Timestamped](items []T, h time.Duration) iter.Seq2[int, []T] {
	return func(yield func(int, []T) bool) {
		lo := 0
		for i := range items {
			cutoff := items[i].Time().Add(-h)
			for lo < i && items[lo].Time().Before(cutoff) {
				lo++
			}
			if !yield(i, items[lo:i+1]) {
				return
			}
		}
	}
}

// Backward yields items from last to first. It lets a Replay slice stand in
// for Buffer.Recent.
func Backward[T Timestamped](items []T, now time.Time, w time.Duration) iter.Seq[T] {
	start := now.Add(-w)
	return func(yield func(T) bool) {
		for i := len(items) - 1; i >= 0; i-- {
			ts := items[i].Time()
			if ts.Before(start) {
				return
			}
			if ts.After(now) {
				continue
			}
			if !yield(items[i]) {
				return
			}
		}
	}
}
