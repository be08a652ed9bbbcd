package utils

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestOrderedSetNoDuplicates(t *testing.T) {
	s := NewOrderedSet()

	if !s.Add("https://example.com/a.jpg") {
		t.Error("first Add should return true")
	}
	if s.Add("https://example.com/a.jpg") {
		t.Error("second Add of same value should return false")
	}
	if s.Size() != 1 {
		t.Errorf("size: got %d, want 1", s.Size())
	}
}

func TestOrderedSetPreservesInsertionOrder(t *testing.T) {
	s := NewOrderedSet()
	in := []string{"c", "a", "b", "a", "c", "d"}
	for _, v := range in {
		s.Add(v)
	}

	got := s.Values(0)
	want := []string{"c", "a", "b", "d"}
	if len(got) != len(want) {
		t.Fatalf("values: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("values[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOrderedSetValuesLimit(t *testing.T) {
	s := NewOrderedSet()
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		s.Add(v)
	}

	got := s.Values(3)
	if len(got) != 3 {
		t.Fatalf("limited values: got %d entries, want 3", len(got))
	}
	if got[0] != "a" || got[2] != "c" {
		t.Errorf("limited values should keep the earliest entries, got %v", got)
	}
}

func TestOrderedSetConcurrency(t *testing.T) {
	s := NewOrderedSet()
	var added int64

	pool := NewWorkerPool(10, 0)
	for i := 0; i < 100; i++ {
		pool.Submit(func() {
			if s.Add("https://example.com/same") {
				atomic.AddInt64(&added, 1)
			}
		})
	}
	pool.Wait()

	if added != 1 {
		t.Errorf("expected exactly 1 successful add, got %d", added)
	}
}

func TestWorkerPoolRateLimit(t *testing.T) {
	rateLimitMs := 100
	pool := NewWorkerPool(1, rateLimitMs)

	var timestamps []time.Time
	mu := make(chan struct{}, 1)
	mu <- struct{}{}

	for i := 0; i < 3; i++ {
		pool.Submit(func() {
			<-mu
			timestamps = append(timestamps, time.Now())
			mu <- struct{}{}
		})
	}
	pool.Wait()

	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		min := time.Duration(rateLimitMs) * time.Millisecond
		if gap < min {
			t.Errorf("gap between job %d and %d: %v < minimum %v", i-1, i, gap, min)
		}
	}
}
