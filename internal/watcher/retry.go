package watcher

import (
	"math"
	"sync"
	"time"
)

// RetryPolicy is the backoff for failed uploads. With MaxAttempts 0 a
// failed file stays in the SeenMap and is only tried again once it changes.
type RetryPolicy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// Enabled reports whether failed uploads are retried at all
func (p RetryPolicy) Enabled() bool {
	return p.MaxAttempts > 0
}

// Backoff returns the wait before retry number attempt (1-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	wait := float64(p.InitialWait) * math.Pow(mult, float64(attempt-1))
	if p.MaxWait > 0 && wait > float64(p.MaxWait) {
		return p.MaxWait
	}
	if wait > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(wait)
}

type retryEntry struct {
	lastModified int64
	failures     int
	nextAt       time.Time
}

// retryTracker remembers failed uploads that may be tried again with an
// unchanged timestamp
type retryTracker struct {
	mu      sync.Mutex
	policy  RetryPolicy
	entries map[string]*retryEntry
}

func newRetryTracker(policy RetryPolicy) *retryTracker {
	return &retryTracker{policy: policy, entries: make(map[string]*retryEntry)}
}

// failed records a failure and reports the wait before the next attempt;
// ok is false once the attempts are used up or retries are disabled.
// A new lastModified restarts the count.
func (r *retryTracker) failed(name string, lastModified int64, now time.Time) (wait time.Duration, ok bool) {
	if !r.policy.Enabled() {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[name]
	if !exists || e.lastModified != lastModified {
		e = &retryEntry{lastModified: lastModified}
		r.entries[name] = e
	}
	e.failures++
	if e.failures > r.policy.MaxAttempts {
		e.nextAt = time.Time{}
		return 0, false
	}
	wait = r.policy.Backoff(e.failures)
	e.nextAt = now.Add(wait)
	return wait, true
}

// due reports whether a failed file with this exact timestamp should be
// dispatched again now
func (r *retryTracker) due(name string, lastModified int64, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok || e.lastModified != lastModified || e.nextAt.IsZero() {
		return false
	}
	return !now.Before(e.nextAt)
}

func (r *retryTracker) clear(name string) {
	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()
}

func (r *retryTracker) prune(present map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.entries {
		if _, ok := present[name]; !ok {
			delete(r.entries, name)
		}
	}
}

func (r *retryTracker) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if !e.nextAt.IsZero() {
			n++
		}
	}
	return n
}
