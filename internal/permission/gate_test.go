package permission

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

type memStore struct {
	handles map[string]domain.Handle
	saves   int
	loadErr error
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{handles: map[string]domain.Handle{}}
}

func (m *memStore) LoadHandle(key string) (*domain.Handle, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	h, ok := m.handles[key]
	if !ok {
		return nil, domain.ErrNoHandle
	}
	return &h, nil
}

func (m *memStore) SaveHandle(h domain.Handle) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.handles[h.Key] = h
	return nil
}

type countingPrompter struct {
	answer bool
	err    error
	calls  int
}

func (p *countingPrompter) Confirm(ctx context.Context, path string, mode domain.AccessMode) (bool, error) {
	p.calls++
	return p.answer, p.err
}

func newTestGate(store *memStore, prompter Prompter, osErr error) *Gate {
	g := NewGate(store, prompter)
	g.access = func(string, domain.AccessMode) error { return osErr }
	g.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func handle(granted bool) domain.Handle {
	h := domain.Handle{Key: domain.HandleKey, Path: "/srv/hot", Mode: domain.ModeReadWrite}
	if granted {
		h.GrantedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return h
}

func TestEnsurePermission_Granted(t *testing.T) {
	store := newMemStore()
	store.handles[domain.HandleKey] = handle(true)
	prompter := &countingPrompter{}
	g := newTestGate(store, prompter, nil)

	ok, err := g.EnsurePermission(context.Background(), handle(true), domain.ModeReadWrite, false)
	if err != nil {
		t.Fatalf("EnsurePermission() error = %v", err)
	}
	if !ok {
		t.Error("expected access to be granted")
	}
	if prompter.calls != 0 {
		t.Error("granted query must not prompt")
	}
}

func TestEnsurePermission_NoPromptWhenNotForced(t *testing.T) {
	tests := []struct {
		name   string
		stored *domain.Handle
		osErr  error
	}{
		{"never granted", ptr(handle(false)), nil},
		{"revoked by os", ptr(handle(true)), domain.ErrPermissionDenied},
		{"handle removed", nil, nil},
		{"different folder picked", &domain.Handle{Key: domain.HandleKey, Path: "/srv/other", Mode: domain.ModeReadWrite, GrantedAt: time.Now()}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			if tt.stored != nil {
				store.handles[domain.HandleKey] = *tt.stored
			}
			prompter := &countingPrompter{answer: true}
			g := newTestGate(store, prompter, tt.osErr)

			ok, err := g.EnsurePermission(context.Background(), handle(true), domain.ModeReadWrite, false)
			if err != nil {
				t.Fatalf("denial must not be an error, got %v", err)
			}
			if ok {
				t.Error("expected false")
			}
			if prompter.calls != 0 {
				t.Errorf("prompted %d times without a user gesture", prompter.calls)
			}
			if store.saves != 0 {
				t.Error("query must not write to the store")
			}
		})
	}
}

func TestEnsurePermission_ForcedPromptAccepted(t *testing.T) {
	store := newMemStore()
	store.handles[domain.HandleKey] = handle(false)
	prompter := &countingPrompter{answer: true}
	g := newTestGate(store, prompter, nil)

	ok, err := g.EnsurePermission(context.Background(), handle(false), domain.ModeReadWrite, true)
	if err != nil {
		t.Fatalf("EnsurePermission() error = %v", err)
	}
	if !ok {
		t.Fatal("expected grant after confirmation")
	}
	if prompter.calls != 1 {
		t.Errorf("expected 1 prompt, got %d", prompter.calls)
	}

	saved := store.handles[domain.HandleKey]
	if !saved.Granted(domain.ModeReadWrite) {
		t.Error("grant should be recorded in the store")
	}
	if !saved.GrantedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected grant time %v", saved.GrantedAt)
	}

	// Next background check sees the recorded grant
	ok, _ = g.EnsurePermission(context.Background(), handle(false), domain.ModeReadWrite, false)
	if !ok {
		t.Error("recorded grant should satisfy later queries")
	}
}

func TestEnsurePermission_WidensMode(t *testing.T) {
	store := newMemStore()
	readOnly := handle(true)
	readOnly.Mode = domain.ModeRead
	store.handles[domain.HandleKey] = readOnly
	g := newTestGate(store, &countingPrompter{answer: true}, nil)

	ok, err := g.EnsurePermission(context.Background(), readOnly, domain.ModeReadWrite, true)
	if err != nil || !ok {
		t.Fatalf("EnsurePermission() = %v, %v", ok, err)
	}
	if store.handles[domain.HandleKey].Mode != domain.ModeReadWrite {
		t.Error("grant should be widened to readwrite")
	}
}

func TestEnsurePermission_ForcedPromptDeclined(t *testing.T) {
	tests := []struct {
		name     string
		prompter Prompter
	}{
		{"declined", &countingPrompter{answer: false}},
		{"prompt error", &countingPrompter{err: errors.New("stdin closed")}},
		{"no prompter", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.handles[domain.HandleKey] = handle(false)
			g := newTestGate(store, tt.prompter, nil)

			ok, err := g.EnsurePermission(context.Background(), handle(false), domain.ModeReadWrite, true)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok {
				t.Error("expected false")
			}
			if store.saves != 0 {
				t.Error("nothing should be recorded")
			}
		})
	}
}

func TestEnsurePermission_SelectionChangedDuringPrompt(t *testing.T) {
	other := handle(false)
	other.Path = "/srv/other"

	tests := []struct {
		name   string
		stored *domain.Handle
	}{
		{"forgotten", nil},
		{"picked elsewhere", &other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			if tt.stored != nil {
				store.handles[domain.HandleKey] = *tt.stored
			}
			g := newTestGate(store, &countingPrompter{answer: true}, nil)

			ok, err := g.EnsurePermission(context.Background(), handle(false), domain.ModeReadWrite, true)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok {
				t.Error("a stale handle must not be granted")
			}
			if store.saves != 0 {
				t.Error("the stale handle must not be written back")
			}
			got, exists := store.handles[domain.HandleKey]
			if (tt.stored == nil) == exists || (exists && got.Path != tt.stored.Path) {
				t.Errorf("store changed: %+v", store.handles)
			}
		})
	}
}

func TestEnsurePermission_OSStillDenies(t *testing.T) {
	store := newMemStore()
	store.handles[domain.HandleKey] = handle(false)
	g := newTestGate(store, &countingPrompter{answer: true}, domain.ErrPermissionDenied)

	ok, err := g.EnsurePermission(context.Background(), handle(false), domain.ModeReadWrite, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("OS denial wins over a recorded grant")
	}
}

func TestEnsurePermission_StoreFailure(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("database is locked")
	g := newTestGate(store, &countingPrompter{answer: true}, nil)

	if _, err := g.EnsurePermission(context.Background(), handle(true), domain.ModeRead, false); err == nil {
		t.Error("store failures are reported as errors")
	}

	store.loadErr = nil
	store.handles[domain.HandleKey] = handle(false)
	store.saveErr = errors.New("disk full")
	if _, err := g.EnsurePermission(context.Background(), handle(false), domain.ModeRead, true); err == nil {
		t.Error("failing to record a grant is an error")
	}
}

func TestQuery_Reason(t *testing.T) {
	store := newMemStore()
	store.handles[domain.HandleKey] = handle(false)
	g := newTestGate(store, nil, nil)

	d, err := g.Query(context.Background(), handle(false), domain.ModeRead)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if d.Granted || !strings.Contains(d.Reason, "not been granted") {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestGesture(t *testing.T) {
	ok, err := Gesture.Confirm(context.Background(), "/x", domain.ModeRead)
	if !ok || err != nil {
		t.Errorf("Gesture.Confirm() = %v, %v", ok, err)
	}
}

func ptr(h domain.Handle) *domain.Handle { return &h }
