package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/Hotfolder/internal/adapter"
	"github.com/Ning0612/Hotfolder/internal/adapter/local"
	"github.com/Ning0612/Hotfolder/internal/config"
	"github.com/Ning0612/Hotfolder/internal/daemon"
	"github.com/Ning0612/Hotfolder/internal/domain"
	"github.com/Ning0612/Hotfolder/internal/lock"
	"github.com/Ning0612/Hotfolder/internal/logger"
	"github.com/Ning0612/Hotfolder/internal/metrics"
	"github.com/Ning0612/Hotfolder/internal/permission"
	"github.com/Ning0612/Hotfolder/internal/watcher"
)

// DefaultDrainTimeout bounds how long shutdown waits for running uploads
const DefaultDrainTimeout = 30 * time.Second

// WatchService runs the watcher as a long-lived process: it owns the
// state store, the destination, the single-instance lock and the PID file.
type WatchService struct {
	mu      sync.Mutex
	config  *config.Config
	folders *FolderService
	dest    adapter.Destination
	watcher *watcher.Watcher
	lock    *lock.FileLock
	pidFile *daemon.PIDFile

	// DrainTimeout bounds the wait for in-flight uploads on shutdown
	DrainTimeout time.Duration
}

// NewWatchService builds the destination and watcher described by cfg.
// prompter answers the Resume path (Enter in the console); nil means
// Resume can only succeed once access was granted elsewhere.
func NewWatchService(ctx context.Context, cfg *config.Config, prompter permission.Prompter) (*WatchService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	folders, err := NewFolderService(cfg, prompter)
	if err != nil {
		return nil, err
	}

	dest, err := adapter.NewDestination(ctx, cfg.Destination)
	if err != nil {
		folders.Close()
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}

	w, err := watcher.New(watcher.Deps{
		Handles:     folders.stateMgr,
		Gate:        folders.gate,
		Destination: dest,
		History:     folders.stateMgr,
		Bus:         watcher.NewBus(64),
		OpenSource: func(h domain.Handle) (adapter.Source, error) {
			return local.New(h.Path)
		},
	}, watcherOptions(cfg))
	if err != nil {
		dest.Close()
		folders.Close()
		return nil, err
	}

	fileLock, err := lock.NewFileLock(cfg.State.Dir)
	if err != nil {
		dest.Close()
		folders.Close()
		return nil, fmt.Errorf("failed to create file lock: %w", err)
	}

	pf, err := pidFile(cfg)
	if err != nil {
		dest.Close()
		folders.Close()
		return nil, err
	}

	return &WatchService{
		config:       cfg,
		folders:      folders,
		dest:         dest,
		watcher:      w,
		lock:         fileLock,
		pidFile:      pf,
		DrainTimeout: DefaultDrainTimeout,
	}, nil
}

func watcherOptions(cfg *config.Config) watcher.Options {
	return watcher.Options{
		PollInterval:         cfg.Watch.PollInterval,
		StabilityWindow:      cfg.Watch.StabilityWindow,
		MaxConcurrentUploads: cfg.Watch.MaxConcurrentUploads,
		Ignore:               cfg.Watch.Ignore,
		Notify:               cfg.Watch.Notify,
		Dispatch: watcher.DispatcherConfig{
			Workstation:       cfg.Destination.Webhook.WorkstationID(),
			DeleteAfterUpload: cfg.Watch.DeleteAfterUpload,
			Retry: watcher.RetryPolicy{
				MaxAttempts: cfg.Retry.MaxAttempts,
				InitialWait: cfg.Retry.InitialWait,
				MaxWait:     cfg.Retry.MaxWait,
				Multiplier:  cfg.Retry.Multiplier,
			},
		},
	}
}

// Watcher exposes the poll loop for the console
func (s *WatchService) Watcher() *watcher.Watcher {
	return s.watcher
}

// Folders exposes the folder operations sharing this service's store
func (s *WatchService) Folders() *FolderService {
	return s.folders
}

// Run takes the lock, starts polling and blocks until ctx is done. On
// return polling has stopped and in-flight uploads have drained (or
// DrainTimeout passed).
func (s *WatchService) Run(ctx context.Context) error {
	h, err := s.folders.Handle()
	if err != nil {
		return err
	}

	if err := s.lock.Acquire(h.Path); err != nil {
		return err
	}
	defer func() {
		if err := s.lock.Release(); err != nil {
			logger.Get().Warn("failed to release lock", "error", err)
		}
	}()

	if err := s.pidFile.Write(); err != nil {
		return err
	}
	defer s.pidFile.Remove()

	if addr := s.config.Metrics.Listen; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				logger.Get().Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
	}

	if err := s.watcher.Start(ctx); err != nil {
		return err
	}
	if st := s.watcher.Status(); st.State == watcher.StatePermissionBlocked {
		logger.Get().Warn("waiting for folder access", "reason", st.Reason)
	}

	<-ctx.Done()
	logger.Get().Info("shutting down", "in_flight", s.watcher.Status().InFlight)

	drainCtx, cancel := context.WithTimeout(context.Background(), s.DrainTimeout)
	defer cancel()
	s.watcher.Stop()
	if err := s.watcher.Wait(drainCtx); err != nil {
		logger.Get().Warn("shutdown before uploads finished", "error", err)
	}
	return nil
}

// Close releases the watcher, destination and state store
func (s *WatchService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error

	if s.watcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.DrainTimeout)
		if err := s.watcher.Close(ctx); err != nil {
			lastErr = err
		}
		cancel()
		s.watcher.Bus().Close()
		s.watcher = nil
	}

	if s.dest != nil {
		if err := s.dest.Close(); err != nil {
			lastErr = err
		}
		s.dest = nil
	}

	if s.folders != nil {
		if err := s.folders.Close(); err != nil {
			lastErr = err
		}
		s.folders = nil
	}

	return lastErr
}
