// Package watcher implements the hot folder poll loop: scan the folder on
// every tick, hand files that stopped changing to the dispatcher, and stop
// polling as soon as folder access goes away.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Ning0612/Hotfolder/internal/adapter"
	"github.com/Ning0612/Hotfolder/internal/domain"
	"github.com/Ning0612/Hotfolder/internal/logger"
	"github.com/Ning0612/Hotfolder/internal/metrics"
	"github.com/Ning0612/Hotfolder/internal/notify"
	"github.com/Ning0612/Hotfolder/internal/scheduler"
)

// notifySlack is added to the stability window before a filesystem hint
// wakes the loop, so the woken tick already sees the file as stable
const notifySlack = 100 * time.Millisecond

// State is the poll loop state
type State int

const (
	StateIdle State = iota
	StatePolling
	StatePermissionBlocked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StatePermissionBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

var stateNames = []string{StateIdle.String(), StatePolling.String(), StatePermissionBlocked.String()}

// HandleLoader reads the persisted folder handle
type HandleLoader interface {
	LoadHandle(key string) (*domain.Handle, error)
}

// PermissionGate is satisfied by *permission.Gate
type PermissionGate interface {
	EnsurePermission(ctx context.Context, h domain.Handle, mode domain.AccessMode, forcePrompt bool) (bool, error)
}

// Deps are the collaborators of a Watcher
type Deps struct {
	Handles     HandleLoader
	Gate        PermissionGate
	Destination adapter.Destination
	History     HistoryRecorder
	Bus         *Bus

	// OpenSource opens the folder a handle points at
	OpenSource func(h domain.Handle) (adapter.Source, error)
}

// Options tune the poll loop
type Options struct {
	PollInterval time.Duration
	// RecheckInterval is how often a blocked watcher looks for a grant
	// made elsewhere; it defaults to PollInterval
	RecheckInterval      time.Duration
	StabilityWindow      time.Duration
	MaxConcurrentUploads int
	Ignore               []string
	Notify               bool
	Dispatch             DispatcherConfig
}

// Status is a snapshot for the status command and console
type Status struct {
	State          State
	Reason         string
	Folder         string
	InFlight       int
	Seen           int
	PendingRetries int
	Scheduler      *scheduler.Status
}

// session is everything bound to one picked folder. SeenMap survives
// Stop/Resume as long as the same folder stays picked.
type session struct {
	handle     domain.Handle
	source     adapter.Source
	scanner    *Scanner
	queue      *QueueState
	dispatcher *Dispatcher
}

// Watcher runs the poll loop
type Watcher struct {
	deps Deps
	opts Options
	mode domain.AccessMode
	sem  *semaphore.Weighted
	now  func() time.Time

	// opMu serializes Start, Resume and Stop
	opMu sync.Mutex

	mu      sync.Mutex
	state   State
	reason  string
	sess    *session
	running *session
	sched   *scheduler.IntervalScheduler
	cancel  context.CancelFunc

	// parent is the context of the last Start or Resume; polling restarted
	// by a grant made elsewhere runs under it
	parent     context.Context
	waitCancel context.CancelFunc

	uploads sync.WaitGroup
}

// New creates an idle watcher
func New(deps Deps, opts Options) (*Watcher, error) {
	if deps.Handles == nil || deps.Gate == nil || deps.Destination == nil || deps.OpenSource == nil {
		return nil, fmt.Errorf("watcher: handles, gate, destination and source opener are required")
	}
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("watcher: poll interval must be positive")
	}
	if opts.RecheckInterval <= 0 {
		opts.RecheckInterval = opts.PollInterval
	}
	if opts.StabilityWindow < 0 {
		opts.StabilityWindow = DefaultStabilityWindow
	}
	if opts.MaxConcurrentUploads < 1 {
		opts.MaxConcurrentUploads = 1
	}
	if deps.Bus == nil {
		deps.Bus = NewBus(16)
	}

	mode := domain.ModeRead
	if opts.Dispatch.DeleteAfterUpload {
		mode = domain.ModeReadWrite
	}

	metrics.SetState(StateIdle.String(), stateNames)
	return &Watcher{
		deps: deps,
		opts: opts,
		mode: mode,
		sem:  semaphore.NewWeighted(int64(opts.MaxConcurrentUploads)),
		now:  time.Now,
	}, nil
}

// Bus returns the event bus
func (w *Watcher) Bus() *Bus {
	return w.deps.Bus
}

// AccessMode is the folder access the watcher needs
func (w *Watcher) AccessMode() domain.AccessMode {
	return w.mode
}

// Start begins polling the persisted folder without prompting. It returns
// domain.ErrNoHandle if no folder was picked. Missing permission is not an
// error: the watcher enters StatePermissionBlocked and waits for Resume.
func (w *Watcher) Start(ctx context.Context) error {
	return w.activate(ctx, false)
}

// Resume is the user-gesture path out of StatePermissionBlocked: the gate
// may prompt, and polling restarts when access is granted. A blocked
// watcher also restarts by itself once a grant shows up in the store,
// e.g. from `hotfolder grant` in another process.
func (w *Watcher) Resume(ctx context.Context) error {
	return w.activate(ctx, true)
}

func (w *Watcher) activate(ctx context.Context, forcePrompt bool) error {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	if w.State() == StatePolling {
		if forcePrompt {
			return nil
		}
		return domain.ErrWatcherRunning
	}

	h, err := w.deps.Handles.LoadHandle(domain.HandleKey)
	if err != nil {
		return err
	}

	ok, err := w.deps.Gate.EnsurePermission(ctx, *h, w.mode, forcePrompt)
	metrics.RecordPermissionCheck(ok)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.parent = ctx
	w.mu.Unlock()

	if !ok {
		w.mu.Lock()
		w.setStateLocked(StatePermissionBlocked, fmt.Sprintf("%s access to %s is needed", w.mode, h.Path))
		// restart the grant loop under the new parent
		w.stopAwaitLocked()
		w.awaitGrantLocked()
		w.mu.Unlock()
		return nil
	}

	return w.startPolling(ctx, *h)
}

// startPolling must be called with opMu held
func (w *Watcher) startPolling(ctx context.Context, h domain.Handle) error {
	w.mu.Lock()
	sess := w.sess
	w.mu.Unlock()

	if sess == nil || sess.handle.Path != h.Path {
		src, err := w.deps.OpenSource(h)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", h.Path, err)
		}
		if sess != nil {
			sess.source.Close()
		}
		queue := NewQueueState()
		dispatcher := NewDispatcher(src, w.deps.Destination, queue, w.deps.History, w.deps.Bus, w.opts.Dispatch)
		dispatcher.now = w.now
		sess = &session{
			source:     src,
			scanner:    NewScanner(src, w.opts.Ignore),
			queue:      queue,
			dispatcher: dispatcher,
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	sched, err := scheduler.NewIntervalScheduler(
		scheduler.Config{Interval: w.opts.PollInterval, Immediate: true},
		scheduler.RunnerFunc(func(ctx context.Context) error { return w.tick(ctx, sess) }),
	)
	if err != nil {
		cancel()
		return err
	}

	if w.opts.Notify {
		if err := notify.Watch(runCtx, h.Path, w.opts.StabilityWindow+notifySlack, sched.Trigger); err != nil {
			logger.Get().Warn("filesystem hints unavailable, polling only", "error", err)
		}
	}

	w.mu.Lock()
	sess.handle = h
	w.sess = sess
	w.running = sess
	w.sched = sched
	w.cancel = cancel
	w.stopAwaitLocked()
	// set before the first tick so a block from that tick is not overwritten
	w.setStateLocked(StatePolling, "")
	w.mu.Unlock()

	if err := sched.Start(runCtx); err != nil {
		cancel()
		w.mu.Lock()
		w.running, w.sched, w.cancel = nil, nil, nil
		w.setStateLocked(StateIdle, "")
		w.mu.Unlock()
		return err
	}

	logger.Get().Info("watching folder",
		"path", h.Path,
		"interval", w.opts.PollInterval,
		"stability_window", w.opts.StabilityWindow)
	return nil
}

// tick is one poll: permission, scan, prune, dispatch
func (w *Watcher) tick(ctx context.Context, sess *session) error {
	ok, err := w.deps.Gate.EnsurePermission(ctx, sess.handle, w.mode, false)
	metrics.RecordPermissionCheck(ok)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Get().Error("permission check failed", "error", err)
		return err
	}
	if !ok {
		if ctx.Err() != nil {
			return nil
		}
		w.block(sess, fmt.Sprintf("access to %s was revoked", sess.handle.Path))
		return scheduler.ErrStop
	}

	start := time.Now()
	present := make(map[string]struct{})
	for entry, err := range sess.scanner.Scan(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Get().Error("folder scan failed", "path", sess.handle.Path, "error", err)
			w.block(sess, err.Error())
			return scheduler.ErrStop
		}
		present[entry.Name] = struct{}{}
		w.consider(ctx, sess, entry)
	}

	if n := sess.queue.Prune(present); n > 0 {
		logger.Get().Debug("forgot vanished files", "count", n)
	}
	sess.dispatcher.retries.prune(present)
	metrics.RecordTick(len(present), time.Since(start))
	return nil
}

// consider dispatches entry if it is stable (or due for retry), not
// already uploading, and an upload slot is free
func (w *Watcher) consider(ctx context.Context, sess *session, entry domain.FileEntry) {
	now := w.now()
	if !IsStable(entry, sess.queue.Seen(entry.Name), now, w.opts.StabilityWindow) &&
		!sess.dispatcher.RetryDue(entry, now) {
		return
	}
	if sess.queue.InFlight(entry.Name) {
		return
	}

	// A full semaphore leaves the file for a later tick
	if !w.sem.TryAcquire(1) {
		logger.Get().Debug("all upload slots busy", "file", entry.Name)
		return
	}
	if !sess.queue.Claim(entry.Name) {
		w.sem.Release(1)
		return
	}

	w.deps.Bus.Publish(Event{Kind: EventFileDetected, Filename: entry.Name, State: StatePolling})

	// uploads outlive Stop; Wait drains them
	uploadCtx := context.WithoutCancel(ctx)
	w.uploads.Add(1)
	go func() {
		defer w.uploads.Done()
		defer w.sem.Release(1)
		sess.dispatcher.Dispatch(uploadCtx, entry)
	}()
}

// block moves a running session to StatePermissionBlocked; the scheduler
// exits on its own because the tick returns scheduler.ErrStop
func (w *Watcher) block(sess *session, reason string) {
	w.mu.Lock()
	if w.running != sess {
		w.mu.Unlock()
		return
	}
	w.running = nil
	w.sched = nil
	cancel := w.cancel
	w.cancel = nil
	w.setStateLocked(StatePermissionBlocked, reason)
	w.awaitGrantLocked()
	w.mu.Unlock()

	if cancel != nil {
		defer cancel()
	}
	logger.Get().Warn("polling stopped", "reason", reason)
}

// awaitGrantLocked starts a query-only loop that restarts polling once the
// gate grants again. It never prompts. w.mu must be held.
func (w *Watcher) awaitGrantLocked() {
	if w.parent == nil || w.waitCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(w.parent)
	waiter, err := scheduler.NewIntervalScheduler(
		scheduler.Config{Interval: w.opts.RecheckInterval},
		scheduler.RunnerFunc(w.recheck),
	)
	if err == nil {
		err = waiter.Start(ctx)
	}
	if err != nil {
		cancel()
		logger.Get().Warn("cannot watch for a new grant; press Enter or restart to resume", "error", err)
		return
	}
	w.waitCancel = cancel
}

// stopAwaitLocked ends the grant loop; w.mu must be held
func (w *Watcher) stopAwaitLocked() {
	if w.waitCancel != nil {
		w.waitCancel()
		w.waitCancel = nil
	}
}

// recheck is one tick of the grant loop
func (w *Watcher) recheck(ctx context.Context) error {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	w.mu.Lock()
	parent, state := w.parent, w.state
	w.mu.Unlock()
	if ctx.Err() != nil || state != StatePermissionBlocked {
		return scheduler.ErrStop
	}

	h, err := w.deps.Handles.LoadHandle(domain.HandleKey)
	if err != nil {
		return nil
	}
	ok, err := w.deps.Gate.EnsurePermission(ctx, *h, w.mode, false)
	metrics.RecordPermissionCheck(ok)
	if err != nil || !ok {
		return nil
	}

	logger.Get().Info("folder access granted, resuming", "path", h.Path)
	if err := w.startPolling(parent, *h); err != nil {
		logger.Get().Error("failed to resume polling", "error", err)
		return nil
	}
	return scheduler.ErrStop
}

// Stop ends polling and returns to StateIdle. Uploads already running are
// not interrupted; use Wait to drain them.
func (w *Watcher) Stop() {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	w.mu.Lock()
	sched := w.sched
	cancel := w.cancel
	w.running = nil
	w.sched = nil
	w.cancel = nil
	w.stopAwaitLocked()
	prev := w.state
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sched != nil {
		<-sched.Done()
	}
	if prev != StateIdle {
		w.setState(StateIdle, "")
	}
}

// Wait blocks until every running upload has finished or ctx ends
func (w *Watcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.uploads.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("uploads still running: %w", ctx.Err())
	}
}

// Close stops polling, drains uploads and releases the folder
func (w *Watcher) Close(ctx context.Context) error {
	w.Stop()
	err := w.Wait(ctx)

	w.mu.Lock()
	sess := w.sess
	w.sess = nil
	w.mu.Unlock()

	if sess != nil {
		if cerr := sess.source.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// State returns the current state
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns a snapshot of the watcher
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := Status{State: w.state, Reason: w.reason}
	if w.sess != nil {
		st.Folder = w.sess.handle.Path
		st.InFlight = w.sess.queue.InFlightCount()
		st.Seen = w.sess.queue.SeenCount()
		st.PendingRetries = w.sess.dispatcher.retries.pending()
	}
	if w.sched != nil {
		st.Scheduler = w.sched.Status()
	}
	return st
}

func (w *Watcher) setState(s State, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setStateLocked(s, reason)
}

// setStateLocked publishes under w.mu so a concurrent Stop cannot land
// between the change and its event; Publish never blocks
func (w *Watcher) setStateLocked(s State, reason string) {
	if w.state == s && w.reason == reason {
		return
	}
	w.state = s
	w.reason = reason
	metrics.SetState(s.String(), stateNames)
	w.deps.Bus.Publish(Event{Kind: EventStateChanged, State: s, Reason: reason})
}
