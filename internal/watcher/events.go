package watcher

import (
	"sync"
	"time"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

// EventKind identifies what happened
type EventKind int

const (
	// EventStateChanged is sent on every watcher state transition
	EventStateChanged EventKind = iota
	// EventFileDetected is sent when a stable file is handed to the dispatcher
	EventFileDetected
	// EventFileUploaded is sent only for successful uploads
	EventFileUploaded
	// EventUploadFailed is sent when the destination rejected a file
	EventUploadFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "stateChanged"
	case EventFileDetected:
		return "fileDetected"
	case EventFileUploaded:
		return "fileUploaded"
	case EventUploadFailed:
		return "uploadFailed"
	default:
		return "unknown"
	}
}

// Event is one notification from the watcher
type Event struct {
	Kind     EventKind
	Time     time.Time
	State    State
	Filename string

	// Result is set for EventFileUploaded and EventUploadFailed
	Result domain.UploadResult

	// Reason explains a PermissionBlocked state
	Reason string
}

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	next    int
	buffer  int
	dropped int
	closed  bool
}

// NewBus creates a bus whose subscriber channels hold buffer events
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe returns a channel of events and a func that unsubscribes and
// closes it
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers e to every subscriber that has room
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped++
		}
	}
}

// Dropped returns how many deliveries were skipped for full buffers
func (b *Bus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes every subscriber channel; later Subscribe calls get a
// closed channel
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
