package watcher

import (
	"testing"
	"time"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialWait: time.Second, MaxWait: 10 * time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryTracker_Disabled(t *testing.T) {
	r := newRetryTracker(RetryPolicy{})
	now := time.Now()

	if _, ok := r.failed("a.pdf", 1, now); ok {
		t.Error("no retry when MaxAttempts is 0")
	}
	if r.due("a.pdf", 1, now.Add(time.Hour)) {
		t.Error("nothing should ever be due")
	}
}

func TestRetryTracker_Schedule(t *testing.T) {
	r := newRetryTracker(RetryPolicy{MaxAttempts: 2, InitialWait: time.Second, Multiplier: 2})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	wait, ok := r.failed("a.pdf", 100, now)
	if !ok || wait != time.Second {
		t.Fatalf("first failure: wait=%v ok=%v", wait, ok)
	}
	if r.due("a.pdf", 100, now.Add(500*time.Millisecond)) {
		t.Error("not due before the backoff elapsed")
	}
	if !r.due("a.pdf", 100, now.Add(time.Second)) {
		t.Error("due once the backoff elapsed")
	}
	if r.due("a.pdf", 200, now.Add(time.Hour)) {
		t.Error("a different timestamp is handled by stability, not retry")
	}

	wait, ok = r.failed("a.pdf", 100, now.Add(time.Second))
	if !ok || wait != 2*time.Second {
		t.Fatalf("second failure: wait=%v ok=%v", wait, ok)
	}

	if _, ok = r.failed("a.pdf", 100, now.Add(3*time.Second)); ok {
		t.Error("attempts exhausted after MaxAttempts retries")
	}
	if r.due("a.pdf", 100, now.Add(time.Hour)) {
		t.Error("exhausted entry is never due")
	}

	// A new version starts over
	if _, ok = r.failed("a.pdf", 300, now.Add(time.Hour)); !ok {
		t.Error("changed timestamp resets the attempt count")
	}
}

func TestRetryTracker_ClearAndPrune(t *testing.T) {
	r := newRetryTracker(RetryPolicy{MaxAttempts: 3, InitialWait: time.Second, Multiplier: 1})
	now := time.Now()
	r.failed("a.pdf", 1, now)
	r.failed("b.pdf", 1, now)

	if r.pending() != 2 {
		t.Fatalf("expected 2 pending, got %d", r.pending())
	}
	r.clear("a.pdf")
	r.prune(map[string]struct{}{})
	if r.pending() != 0 {
		t.Errorf("expected 0 pending, got %d", r.pending())
	}
}
