package watcher

import "sync"

// QueueState is the watcher's memory between ticks: the last processed
// timestamp per name (SeenMap) and the names being uploaded (InFlightSet).
// Uploads finish on their own goroutines, so every access takes mu.
type QueueState struct {
	mu       sync.Mutex
	seen     map[string]int64
	inFlight map[string]struct{}
}

// NewQueueState creates an empty queue
func NewQueueState() *QueueState {
	return &QueueState{
		seen:     make(map[string]int64),
		inFlight: make(map[string]struct{}),
	}
}

// Claim marks name in flight. It returns false if it already was.
func (q *QueueState) Claim(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inFlight[name]; ok {
		return false
	}
	q.inFlight[name] = struct{}{}
	return true
}

// Release ends the in-flight claim on name
func (q *QueueState) Release(name string) {
	q.mu.Lock()
	delete(q.inFlight, name)
	q.mu.Unlock()
}

// InFlight reports whether name is being uploaded
func (q *QueueState) InFlight(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inFlight[name]
	return ok
}

// InFlightCount returns the number of running uploads
func (q *QueueState) InFlightCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// Seen returns the last processed timestamp for name, 0 if none
func (q *QueueState) Seen(name string) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seen[name]
}

// MarkSeen records lastModified as processed for name
func (q *QueueState) MarkSeen(name string, lastModified int64) {
	q.mu.Lock()
	q.seen[name] = lastModified
	q.mu.Unlock()
}

// Forget drops name from the SeenMap
func (q *QueueState) Forget(name string) {
	q.mu.Lock()
	delete(q.seen, name)
	q.mu.Unlock()
}

// SeenCount returns the SeenMap size
func (q *QueueState) SeenCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.seen)
}

// Prune drops SeenMap entries for names that are neither present on disk
// nor in flight, and returns how many were removed. Call it only after a
// complete enumeration.
func (q *QueueState) Prune(present map[string]struct{}) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for name := range q.seen {
		if _, ok := present[name]; ok {
			continue
		}
		if _, ok := q.inFlight[name]; ok {
			continue
		}
		delete(q.seen, name)
		removed++
	}
	return removed
}
