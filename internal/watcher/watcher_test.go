package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ning0612/Hotfolder/internal/adapter"
	"github.com/Ning0612/Hotfolder/internal/adapter/local"
	"github.com/Ning0612/Hotfolder/internal/domain"
	"github.com/Ning0612/Hotfolder/internal/testutil"
)

const waitTimeout = 3 * time.Second

type watchFixture struct {
	dir     string
	w       *Watcher
	gate    *fakeGate
	dest    *fakeDest
	handles *memHandles
	history *memHistory
	events  <-chan Event
}

func newWatchFixture(t *testing.T, opts Options) *watchFixture {
	t.Helper()
	dir := t.TempDir()

	f := &watchFixture{
		dir:  dir,
		gate: &fakeGate{},
		dest: &fakeDest{},
		handles: &memHandles{h: &domain.Handle{
			Key:       domain.HandleKey,
			Path:      dir,
			Mode:      domain.ModeReadWrite,
			GrantedAt: time.Now(),
		}},
		history: &memHistory{},
	}
	f.gate.allow.Store(true)

	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	bus := NewBus(64)
	events, cancel := bus.Subscribe()
	t.Cleanup(cancel)
	f.events = events

	w, err := New(Deps{
		Handles:     f.handles,
		Gate:        f.gate,
		Destination: f.dest,
		History:     f.history,
		Bus:         bus,
		OpenSource: func(h domain.Handle) (adapter.Source, error) {
			return local.New(h.Path)
		},
	}, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.w = w

	t.Cleanup(func() {
		if f.dest.gate != nil {
			select {
			case <-f.dest.gate:
			default:
				close(f.dest.gate)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		f.w.Close(ctx)
	})
	return f
}

// completed is the number of finished ticks of the current loop
func (f *watchFixture) completed() int {
	st := f.w.Status()
	if st.Scheduler == nil {
		return -1
	}
	return st.Scheduler.SuccessfulRuns
}

func (f *watchFixture) waitTicks(t *testing.T, n int) {
	t.Helper()
	testutil.AssertEventually(t, waitTimeout, func() bool { return f.completed() >= n }, "tick %d never completed", n)
}

// tick forces one poll and waits for it to finish
func (f *watchFixture) tick(t *testing.T) {
	t.Helper()
	before := f.completed()
	f.w.mu.Lock()
	sched := f.w.sched
	f.w.mu.Unlock()
	if sched == nil {
		t.Fatal("watcher is not polling")
	}
	sched.Trigger()
	f.waitTicks(t, before+1)
}

func (f *watchFixture) start(t *testing.T) {
	t.Helper()
	if err := f.w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.w.State() != StatePolling {
		t.Fatalf("state = %s, want polling", f.w.State())
	}
	f.waitTicks(t, 1)
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Deps{}, Options{PollInterval: time.Second}); err == nil {
		t.Error("missing deps should fail")
	}
}

func TestWatcher_NoHandle(t *testing.T) {
	f := newWatchFixture(t, Options{})
	f.handles.h = nil

	err := f.w.Start(context.Background())
	if !errors.Is(err, domain.ErrNoHandle) {
		t.Fatalf("expected ErrNoHandle, got %v", err)
	}
	if f.w.State() != StateIdle {
		t.Errorf("state = %s, want idle", f.w.State())
	}
}

func TestWatcher_StartBlockedDoesNotPrompt(t *testing.T) {
	f := newWatchFixture(t, Options{})
	f.gate.allow.Store(false)
	f.gate.grantOnPrompt = true

	if err := f.w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.w.State() != StatePermissionBlocked {
		t.Fatalf("state = %s, want blocked", f.w.State())
	}
	if f.gate.prompts.Load() != 0 {
		t.Error("Start must never prompt")
	}
	if f.w.Status().Reason == "" {
		t.Error("blocked state should carry a reason")
	}

	if err := f.w.Resume(context.Background()); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if f.gate.prompts.Load() != 1 {
		t.Errorf("Resume should prompt once, got %d", f.gate.prompts.Load())
	}
	if f.w.State() != StatePolling {
		t.Errorf("state = %s, want polling", f.w.State())
	}
}

func TestWatcher_StartTwice(t *testing.T) {
	f := newWatchFixture(t, Options{})
	f.start(t)

	if err := f.w.Start(context.Background()); !errors.Is(err, domain.ErrWatcherRunning) {
		t.Errorf("expected ErrWatcherRunning, got %v", err)
	}
	if err := f.w.Resume(context.Background()); err != nil {
		t.Errorf("Resume while polling is a no-op, got %v", err)
	}
}

func TestWatcher_WaitsForStability(t *testing.T) {
	f := newWatchFixture(t, Options{
		StabilityWindow: 1500 * time.Millisecond,
		Dispatch:        DispatcherConfig{DeleteAfterUpload: true},
	})

	T := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	p := testutil.CreateTestFile(t, f.dir, "scan.pdf", []byte("pages"))
	testutil.SetModTime(t, p, T)

	clock := testutil.NewClock(T.Add(1000 * time.Millisecond))
	f.w.now = clock.Now

	f.start(t)
	if f.dest.count() != 0 {
		t.Fatal("file written 1000ms ago must not be uploaded")
	}
	if countKind(collect(f.events), EventFileDetected) != 0 {
		t.Fatal("no fileDetected before the file is stable")
	}

	clock.Advance(600 * time.Millisecond)
	f.tick(t)

	testutil.AssertEventually(t, waitTimeout, func() bool { return f.dest.count() == 1 }, "upload at T+1600")
	waitEvent(t, f.events, EventFileUploaded)

	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("uploaded file should be deleted")
	}
	if f.dest.uploads[0].Filename != "scan.pdf" {
		t.Errorf("uploaded %s", f.dest.uploads[0].Filename)
	}
}

func TestWatcher_SkipsUnchangedFileAfterFailure(t *testing.T) {
	f := newWatchFixture(t, Options{})
	f.dest.err = errRejected
	testutil.CreateAgedFile(t, f.dir, "bad.pdf", []byte("x"), time.Hour)

	f.start(t)
	waitEvent(t, f.events, EventUploadFailed)

	f.tick(t)
	f.tick(t)
	if f.dest.count() != 1 {
		t.Errorf("failed file must not be re-sent until it changes, got %d uploads", f.dest.count())
	}

	// A new version is picked up again
	testutil.SetModTime(t, filepath.Join(f.dir, "bad.pdf"), time.Now().Add(-30*time.Minute))
	f.tick(t)
	testutil.AssertEventually(t, waitTimeout, func() bool { return f.dest.count() == 2 }, "changed file re-sent")
}

func TestWatcher_RevokeBlocks(t *testing.T) {
	f := newWatchFixture(t, Options{})
	f.start(t)

	f.gate.allow.Store(false)
	f.w.mu.Lock()
	sched := f.w.sched
	f.w.mu.Unlock()
	sched.Trigger()

	testutil.AssertEventually(t, waitTimeout, func() bool { return f.w.State() == StatePermissionBlocked }, "revoke should block")

	select {
	case <-sched.Done():
	case <-time.After(waitTimeout):
		t.Fatal("scheduler should exit after a revoke")
	}

	testutil.CreateAgedFile(t, f.dir, "late.pdf", []byte("x"), time.Hour)
	time.Sleep(50 * time.Millisecond)
	if f.dest.count() != 0 {
		t.Error("no uploads while blocked")
	}
	if f.gate.prompts.Load() != 0 {
		t.Error("the poll loop must never prompt")
	}
}

func TestWatcher_GrantElsewhereResumes(t *testing.T) {
	f := newWatchFixture(t, Options{PollInterval: 20 * time.Millisecond})
	f.start(t)

	f.gate.allow.Store(false)
	testutil.AssertEventually(t, waitTimeout, func() bool { return f.w.State() == StatePermissionBlocked }, "revoke should block")

	// hotfolder grant --yes from another process
	f.gate.allow.Store(true)
	testutil.CreateAgedFile(t, f.dir, "after-grant.pdf", []byte("x"), time.Hour)

	testutil.AssertEventually(t, waitTimeout, func() bool { return f.dest.count() == 1 }, "blocked watcher should pick up the new grant")
	if f.w.State() != StatePolling {
		t.Errorf("state = %s, want polling", f.w.State())
	}
	if f.gate.prompts.Load() != 0 {
		t.Error("waiting for a grant must never prompt")
	}
}

func TestWatcher_StartBlockedPicksUpGrant(t *testing.T) {
	f := newWatchFixture(t, Options{PollInterval: 20 * time.Millisecond})
	f.gate.allow.Store(false)

	if err := f.w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.w.State() != StatePermissionBlocked {
		t.Fatalf("state = %s, want blocked", f.w.State())
	}

	f.gate.allow.Store(true)
	testutil.AssertEventually(t, waitTimeout, func() bool { return f.w.State() == StatePolling }, "grant should start polling")
}

func TestWatcher_StopEndsGrantWait(t *testing.T) {
	f := newWatchFixture(t, Options{PollInterval: 20 * time.Millisecond})
	f.gate.allow.Store(false)
	if err := f.w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.w.Stop()
	f.gate.allow.Store(true)
	time.Sleep(100 * time.Millisecond)

	if f.w.State() != StateIdle {
		t.Errorf("state = %s, a stopped watcher must stay idle", f.w.State())
	}
}

func TestWatcher_StatusDuringResume(t *testing.T) {
	f := newWatchFixture(t, Options{})
	f.gate.allow.Store(false)
	f.gate.grantOnPrompt = true
	if err := f.w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = f.w.Status()
		}
	}()
	if err := f.w.Resume(context.Background()); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	<-done

	if got := f.w.Status().Folder; got != f.dir {
		t.Errorf("Folder = %q, want %q", got, f.dir)
	}
}

func TestWatcher_FolderRemovedBlocks(t *testing.T) {
	f := newWatchFixture(t, Options{})
	f.start(t)

	if err := os.RemoveAll(f.dir); err != nil {
		t.Fatal(err)
	}
	f.w.mu.Lock()
	sched := f.w.sched
	f.w.mu.Unlock()
	sched.Trigger()

	testutil.AssertEventually(t, waitTimeout, func() bool { return f.w.State() == StatePermissionBlocked }, "enumeration failure should block")
}

func TestWatcher_OneUploadPerName(t *testing.T) {
	f := newWatchFixture(t, Options{MaxConcurrentUploads: 4})
	f.dest.gate = make(chan struct{})
	p := testutil.CreateAgedFile(t, f.dir, "big.iso", []byte("x"), time.Hour)

	f.start(t)
	testutil.AssertEventually(t, waitTimeout, func() bool { return f.w.Status().InFlight == 1 }, "upload started")

	// A newer version while the first is still uploading
	testutil.SetModTime(t, p, time.Now().Add(-30*time.Minute))
	f.tick(t)
	f.tick(t)

	if got := f.w.Status().InFlight; got != 1 {
		t.Errorf("InFlight = %d, want 1", got)
	}
	if got := countKind(collect(f.events), EventFileDetected); got != 1 {
		t.Errorf("fileDetected events = %d, want 1", got)
	}
	close(f.dest.gate)
}

func TestWatcher_UploadSlotsBounded(t *testing.T) {
	f := newWatchFixture(t, Options{MaxConcurrentUploads: 1})
	f.dest.gate = make(chan struct{})
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		testutil.CreateAgedFile(t, f.dir, name, []byte(name), time.Hour)
	}

	f.start(t)
	testutil.AssertEventually(t, waitTimeout, func() bool { return f.w.Status().InFlight == 1 }, "first upload started")
	f.tick(t)

	if got := f.w.Status().InFlight; got != 1 {
		t.Errorf("InFlight = %d with one slot", got)
	}

	close(f.dest.gate)
	testutil.AssertEventually(t, waitTimeout, func() bool {
		if f.dest.count() == 3 {
			return true
		}
		f.w.mu.Lock()
		if f.w.sched != nil {
			f.w.sched.Trigger()
		}
		f.w.mu.Unlock()
		return false
	}, "all files eventually uploaded")

	if got := atomic.LoadInt32(&f.dest.maxSeen); got != 1 {
		t.Errorf("max concurrent uploads = %d, want 1", got)
	}
}

func TestWatcher_StopDrainsUploads(t *testing.T) {
	f := newWatchFixture(t, Options{Dispatch: DispatcherConfig{DeleteAfterUpload: true}})
	f.dest.gate = make(chan struct{})
	p := testutil.CreateAgedFile(t, f.dir, "final.pdf", []byte("x"), time.Hour)

	f.start(t)
	testutil.AssertEventually(t, waitTimeout, func() bool { return f.w.Status().InFlight == 1 }, "upload started")

	f.w.Stop()
	if f.w.State() != StateIdle {
		t.Errorf("state = %s, want idle", f.w.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.w.Wait(ctx); err == nil {
		t.Error("Wait should time out while the upload is blocked")
	}

	close(f.dest.gate)
	if err := f.w.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if f.dest.count() != 1 {
		t.Error("in-flight upload should complete after Stop")
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("file should be deleted by the drained upload")
	}
}

func TestWatcher_ResumeKeepsSeen(t *testing.T) {
	f := newWatchFixture(t, Options{})
	testutil.CreateAgedFile(t, f.dir, "kept.pdf", []byte("x"), time.Hour)

	f.start(t)
	testutil.AssertEventually(t, waitTimeout, func() bool { return f.dest.count() == 1 }, "first upload")
	testutil.AssertEventually(t, waitTimeout, func() bool { return f.w.Status().InFlight == 0 }, "upload released")

	f.w.Stop()
	f.start(t)

	if f.dest.count() != 1 {
		t.Errorf("restart must not re-send an already uploaded file, got %d", f.dest.count())
	}
	if f.w.Status().Seen != 1 {
		t.Errorf("Seen = %d, want 1", f.w.Status().Seen)
	}
}

func TestWatcher_StateEvents(t *testing.T) {
	f := newWatchFixture(t, Options{})
	f.start(t)
	f.w.Stop()

	var states []State
	for _, e := range collect(f.events) {
		if e.Kind == EventStateChanged {
			states = append(states, e.State)
		}
	}
	if len(states) != 2 || states[0] != StatePolling || states[1] != StateIdle {
		t.Errorf("state events = %v", states)
	}
}
