package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Ning0612/Hotfolder/internal/adapter/local"
	"github.com/Ning0612/Hotfolder/internal/config"
	"github.com/Ning0612/Hotfolder/internal/daemon"
	"github.com/Ning0612/Hotfolder/internal/domain"
	"github.com/Ning0612/Hotfolder/internal/lock"
	"github.com/Ning0612/Hotfolder/internal/logger"
	"github.com/Ning0612/Hotfolder/internal/permission"
	"github.com/Ning0612/Hotfolder/internal/state"
)

// FolderService manages the picked folder and its grant
type FolderService struct {
	config   *config.Config
	stateMgr *state.Manager
	gate     *permission.Gate
}

// FolderStatus describes the picked folder and the watcher process
type FolderStatus struct {
	Handle   *domain.Handle
	Decision permission.Decision
	Stats    state.UploadStats

	// Running is true when a watcher process holds the PID file
	Running bool
	PID     int
	Lock    *lock.LockInfo
}

// NewFolderService opens the state store. prompter is used by Grant; it
// may be nil when the caller never grants.
func NewFolderService(cfg *config.Config, prompter permission.Prompter) (*FolderService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	stateMgr, err := state.NewManager(cfg.State.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create state manager: %w", err)
	}

	return &FolderService{
		config:   cfg,
		stateMgr: stateMgr,
		gate:     permission.NewGate(stateMgr, prompter),
	}, nil
}

// AccessMode is the access the watcher needs on the folder
func (s *FolderService) AccessMode() domain.AccessMode {
	if s.config.Watch.DeleteAfterUpload {
		return domain.ModeReadWrite
	}
	return domain.ModeRead
}

// Pick stores dir as the watched folder. Naming the folder is the user's
// consent, so the grant is recorded right away; it still has to pass the
// OS check on every tick.
func (s *FolderService) Pick(ctx context.Context, dir string) (domain.Handle, error) {
	abs, err := filepath.Abs(config.ExpandPath(dir))
	if err != nil {
		return domain.Handle{}, err
	}

	src, err := local.New(abs)
	if err != nil {
		return domain.Handle{}, fmt.Errorf("cannot watch %s: %w", abs, err)
	}
	src.Close()

	replaced, err := s.stateMgr.HandleExists(domain.HandleKey)
	if err != nil {
		return domain.Handle{}, err
	}

	h := domain.Handle{
		Key:       domain.HandleKey,
		Path:      abs,
		Mode:      s.AccessMode(),
		GrantedAt: time.Now(),
	}
	if err := s.stateMgr.SaveHandle(h); err != nil {
		return domain.Handle{}, err
	}

	logger.Get().Info("folder picked", "path", abs, "mode", h.Mode, "replaced", replaced)
	return h, nil
}

// Handle returns the picked folder
func (s *FolderService) Handle() (*domain.Handle, error) {
	return s.stateMgr.LoadHandle(domain.HandleKey)
}

// Grant asks for access to the picked folder and records it
func (s *FolderService) Grant(ctx context.Context) (bool, error) {
	h, err := s.Handle()
	if err != nil {
		return false, err
	}
	return s.gate.EnsurePermission(ctx, *h, s.AccessMode(), true)
}

// Revoke clears the grant; a running watcher blocks on its next tick
func (s *FolderService) Revoke() error {
	if err := s.stateMgr.RevokeHandle(domain.HandleKey); err != nil {
		return err
	}
	logger.Get().Info("folder access revoked")
	return nil
}

// Forget removes the picked folder entirely
func (s *FolderService) Forget() error {
	return s.stateMgr.DeleteHandle(domain.HandleKey)
}

// Status reports the folder grant, history totals and watcher process
func (s *FolderService) Status(ctx context.Context) (*FolderStatus, error) {
	st := &FolderStatus{}

	h, err := s.Handle()
	switch {
	case errors.Is(err, domain.ErrNoHandle):
		st.Decision = permission.Decision{Reason: "no folder picked"}
	case err != nil:
		return nil, err
	default:
		st.Handle = h
		if st.Decision, err = s.gate.Query(ctx, *h, s.AccessMode()); err != nil {
			return nil, err
		}
	}

	if st.Stats, err = s.stateMgr.Stats(); err != nil {
		return nil, err
	}

	pf, err := pidFile(s.config)
	if err != nil {
		return nil, err
	}
	if running, _ := pf.IsRunning(); running {
		st.Running = true
		st.PID, _ = pf.Read()
	}

	if fl, err := lock.NewFileLock(s.config.State.Dir); err == nil && fl.IsLocked() {
		st.Lock, _ = fl.GetHolder()
	}

	return st, nil
}

// History returns recent uploads, optionally for one file
func (s *FolderService) History(filename string, limit int) ([]state.UploadRecord, error) {
	if filename != "" {
		return s.stateMgr.GetFileHistory(filename, limit)
	}
	return s.stateMgr.GetHistory(limit)
}

// LastSuccess returns the newest successful upload of filename, or nil
func (s *FolderService) LastSuccess(filename string) (*state.UploadRecord, error) {
	return s.stateMgr.GetLastSuccess(filename)
}

// Stats summarizes the upload history
func (s *FolderService) Stats() (state.UploadStats, error) {
	return s.stateMgr.Stats()
}

// PruneHistory drops records older than age
func (s *FolderService) PruneHistory(age time.Duration) (int64, error) {
	return s.stateMgr.PruneHistory(time.Now().Add(-age))
}

// Close releases the state store
func (s *FolderService) Close() error {
	if s.stateMgr == nil {
		return nil
	}
	return s.stateMgr.Close()
}

// pidFile opens the watcher PID file for the configured state dir
func pidFile(cfg *config.Config) (*daemon.PIDFile, error) {
	p, err := daemon.PIDPath(cfg.State.Dir)
	if err != nil {
		return nil, err
	}
	return daemon.NewPIDFile(p), nil
}

// StopWatcher signals the watcher process recorded in the PID file and
// waits for it to exit
func StopWatcher(ctx context.Context, cfg *config.Config) (int, error) {
	pf, err := pidFile(cfg)
	if err != nil {
		return 0, err
	}
	return pf.Stop(ctx)
}

// ForceUnlock clears the lock and PID file left by a watcher that is no
// longer running. It refuses while the recorded process is alive.
func ForceUnlock(cfg *config.Config) error {
	pf, err := pidFile(cfg)
	if err != nil {
		return err
	}
	if running, _ := pf.IsRunning(); running {
		pid, _ := pf.Read()
		return fmt.Errorf("watcher PID %d is still running; use stop", pid)
	}

	fl, err := lock.NewFileLock(cfg.State.Dir)
	if err != nil {
		return err
	}
	if err := fl.ForceRelease(); err != nil {
		return err
	}
	return pf.Remove()
}
