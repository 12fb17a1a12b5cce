package window

import (
	"math/rand"
	"slices"
	"testing"
	"time"
)

type item struct {
	ts time.Time
	id int
}

func (i item) Time() time.Time { return i.ts }

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func at(sec int, id int) item {
	return item{ts: t0.Add(time.Duration(sec) * time.Second), id: id}
}

func ids(seq func(func(item) bool)) []int {
	var out []int
	for it := range seq {
		out = append(out, it.id)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuffer_PruneRemovesOnlyExpired(t *testing.T) {
	b := NewBuffer[item](30 * time.Second)
	for i, sec := range []int{0, 10, 20, 30, 40} {
		b.Push(at(sec, i))
	}

	// cutoff 15s drops the items at 0s and 10s
	removed := b.Prune(t0.Add(45 * time.Second))
	if removed != 2 {
		t.Fatalf("Expected 2 removed, got %d", removed)
	}
	if b.Len() != 3 {
		t.Fatalf("Expected 3 retained, got %d", b.Len())
	}

	// Boundary: cutoff 20s keeps the item at exactly 20s.
	if removed := b.Prune(t0.Add(50 * time.Second)); removed != 0 {
		t.Fatalf("Expected nothing removed at the boundary, got %d", removed)
	}
	oldest, ok := b.Oldest()
	if !ok || oldest.id != 2 {
		t.Errorf("Expected oldest id 2 at boundary, got %d", oldest.id)
	}
}

func TestBuffer_PruneNeverOverOrUnderPrunes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const h = 20 * time.Second
	b := NewBuffer[item](h)
	var pushed []item

	sec := 0
	for n := 0; n < 5000; n++ {
		sec += rng.Intn(3)
		it := at(sec, n)
		b.Push(it)
		pushed = append(pushed, it)

		if n%7 == 0 {
			now := t0.Add(time.Duration(sec) * time.Second)
			b.Prune(now)
			cutoff := now.Add(-h)

			retained := make(map[int]bool, b.Len())
			for r := range b.All() {
				if r.ts.Before(cutoff) {
					t.Fatalf("Retained item %d older than cutoff", r.id)
				}
				retained[r.id] = true
			}
			for _, p := range pushed {
				if !p.ts.Before(cutoff) && !retained[p.id] {
					t.Fatalf("Item %d inside horizon was pruned", p.id)
				}
			}
		}
	}
}

func TestBuffer_RecentNewestFirstWithEarlyExit(t *testing.T) {
	b := NewBuffer[item](time.Minute)
	for i, sec := range []int{0, 5, 10, 15, 20} {
		b.Push(at(sec, i))
	}

	got := ids(b.Recent(t0.Add(20*time.Second), 10*time.Second))
	if !equalInts(got, []int{4, 3, 2}) {
		t.Errorf("Expected [4 3 2], got %v", got)
	}

	// Restartable: same call yields the same sequence.
	again := ids(b.Recent(t0.Add(20*time.Second), 10*time.Second))
	if !equalInts(got, again) {
		t.Errorf("Expected restartable sequence, got %v then %v", got, again)
	}
}

func TestBuffer_RecentSkipsFutureItems(t *testing.T) {
	b := NewBuffer[item](time.Minute)
	b.Push(at(0, 0))
	b.Push(at(10, 1))
	b.Push(at(50, 2))

	got := ids(b.Recent(t0.Add(10*time.Second), 30*time.Second))
	if !equalInts(got, []int{1, 0}) {
		t.Errorf("Expected [1 0], got %v", got)
	}
}

func TestBuffer_RecentStopsWhenConsumerBreaks(t *testing.T) {
	b := NewBuffer[item](time.Minute)
	for i := 0; i < 10; i++ {
		b.Push(at(i, i))
	}

	count := 0
	for range b.Recent(t0.Add(9*time.Second), time.Minute) {
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Errorf("Expected 3 yields before break, got %d", count)
	}
}

func TestBuffer_OutOfOrderPushKeepsOrder(t *testing.T) {
	b := NewBuffer[item](time.Minute)
	b.Push(at(0, 0))
	b.Push(at(10, 1))
	b.Push(at(20, 2))
	b.Push(at(5, 3))  // late
	b.Push(at(10, 4)) // late, equal to id 1, goes after it

	if b.OutOfOrder() != 2 {
		t.Errorf("Expected 2 out-of-order pushes, got %d", b.OutOfOrder())
	}

	var order []int
	for it := range b.All() {
		order = append(order, it.id)
	}
	if !equalInts(order, []int{0, 3, 1, 4, 2}) {
		t.Fatalf("Expected [0 3 1 4 2], got %v", order)
	}

	// The early exit must still see the late item inside the window.
	got := ids(b.Recent(t0.Add(20*time.Second), 15*time.Second))
	if !equalInts(got, []int{2, 4, 1, 3}) {
		t.Errorf("Expected [2 4 1 3], got %v", got)
	}
}

func TestBuffer_CompactionKeepsContents(t *testing.T) {
	b := NewBuffer[item](10 * time.Second)
	for i := 0; i < 4*compactThreshold; i++ {
		b.PushAndPrune(at(i, i), t0.Add(time.Duration(i)*time.Second))
	}
	if b.Len() != 11 {
		t.Fatalf("Expected 11 retained, got %d", b.Len())
	}
	newest, _ := b.Newest()
	if newest.id != 4*compactThreshold-1 {
		t.Errorf("Expected newest id %d, got %d", 4*compactThreshold-1, newest.id)
	}
	if n := len(slices.Collect(b.All())); n != b.Len() {
		t.Errorf("All yielded %d items, want %d", n, b.Len())
	}
	if b.Span() != 10*time.Second {
		t.Errorf("Expected span 10s, got %v", b.Span())
	}
}

func TestBuffer_EmptyBuffer(t *testing.T) {
	b := NewBuffer[item](time.Second)
	if _, ok := b.Oldest(); ok {
		t.Error("Expected no oldest item")
	}
	if _, ok := b.Newest(); ok {
		t.Error("Expected no newest item")
	}
	if b.Span() != 0 {
		t.Errorf("Expected zero span, got %v", b.Span())
	}
	if got := ids(b.Recent(t0, time.Minute)); len(got) != 0 {
		t.Errorf("Expected nothing, got %v", got)
	}
	if removed := b.Prune(t0); removed != 0 {
		t.Errorf("Expected 0 removed, got %d", removed)
	}
}
