package watcher

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ning0612/Hotfolder/internal/adapter"
	"github.com/Ning0612/Hotfolder/internal/adapter/local"
	"github.com/Ning0612/Hotfolder/internal/domain"
	"github.com/Ning0612/Hotfolder/internal/state"
)

// fakeDest records uploads; gate, when set, blocks Upload until closed
type fakeDest struct {
	mu      sync.Mutex
	uploads []domain.UploadPayload
	bodies  []string
	err     error
	gate    chan struct{}
	during  func()
	active  int32
	maxSeen int32
}

func (d *fakeDest) Name() string { return "fake" }

func (d *fakeDest) Upload(ctx context.Context, p domain.UploadPayload, body io.Reader) (string, error) {
	n := atomic.AddInt32(&d.active, 1)
	defer atomic.AddInt32(&d.active, -1)
	for {
		max := atomic.LoadInt32(&d.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&d.maxSeen, max, n) {
			break
		}
	}

	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	data, err := io.ReadAll(body)
	if d.during != nil {
		d.during()
	}
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploads = append(d.uploads, p)
	d.bodies = append(d.bodies, string(data))
	if d.err != nil {
		return "", d.err
	}
	return "remote-" + p.Filename, nil
}

func (d *fakeDest) Close() error { return nil }

func (d *fakeDest) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.uploads)
}

var _ adapter.Destination = (*fakeDest)(nil)

// memHandles is an in-memory handle store
type memHandles struct {
	mu sync.Mutex
	h  *domain.Handle
}

func (m *memHandles) LoadHandle(key string) (*domain.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.h == nil {
		return nil, domain.ErrNoHandle
	}
	h := *m.h
	return &h, nil
}

// fakeGate grants while allow is set and counts forced prompts
type fakeGate struct {
	allow   atomic.Bool
	prompts atomic.Int32
	checks  atomic.Int32
	// grantOnPrompt makes a forced prompt flip allow to true
	grantOnPrompt bool
}

func (g *fakeGate) EnsurePermission(ctx context.Context, h domain.Handle, mode domain.AccessMode, forcePrompt bool) (bool, error) {
	g.checks.Add(1)
	if g.allow.Load() {
		return true, nil
	}
	if forcePrompt {
		g.prompts.Add(1)
		if g.grantOnPrompt {
			g.allow.Store(true)
			return true, nil
		}
	}
	return false, nil
}

// memHistory collects upload records
type memHistory struct {
	mu      sync.Mutex
	records []state.UploadRecord
}

func (m *memHistory) SaveUpload(r state.UploadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memHistory) all() []state.UploadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]state.UploadRecord(nil), m.records...)
}

// failingDelete wraps a source whose Delete always fails
type failingDelete struct {
	adapter.Source
}

func (f failingDelete) Delete(ctx context.Context, path string) error {
	return domain.ErrPermissionDenied
}

// lockedOnce wraps a source whose first Read fails, like a file another
// program still holds open
type lockedOnce struct {
	adapter.Source
	failed atomic.Bool
}

func (l *lockedOnce) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if l.failed.CompareAndSwap(false, true) {
		return nil, errors.New("sharing violation")
	}
	return l.Source.Read(ctx, path)
}

func newLocal(t *testing.T, dir string) adapter.Source {
	t.Helper()
	src, err := local.New(dir)
	if err != nil {
		t.Fatalf("local.New() error = %v", err)
	}
	return src
}

// collect drains events already buffered on ch
func collect(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

// waitEvent waits for the first event of kind
func waitEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				t.Fatalf("bus closed while waiting for %s", kind)
			}
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func countKind(events []Event, kind EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

var errRejected = errors.New("rejected")
