// Package permission decides whether the watcher may touch the chosen folder.
//
// A folder is usable when two things hold: the stored handle carries a grant
// that covers the requested mode, and the operating system lets this process
// access the directory. Query never interacts with the user; only an explicit
// user gesture (the grant command, or Enter in the watch console) may prompt.
package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ning0612/Hotfolder/internal/domain"
	"github.com/Ning0612/Hotfolder/internal/logger"
)

// HandleStore persists folder handles; *state.Manager implements it
type HandleStore interface {
	LoadHandle(key string) (*domain.Handle, error)
	SaveHandle(h domain.Handle) error
}

// Prompter asks the user to grant access to a folder
type Prompter interface {
	Confirm(ctx context.Context, path string, mode domain.AccessMode) (bool, error)
}

// PrompterFunc adapts a function to Prompter
type PrompterFunc func(ctx context.Context, path string, mode domain.AccessMode) (bool, error)

// Confirm calls f
func (f PrompterFunc) Confirm(ctx context.Context, path string, mode domain.AccessMode) (bool, error) {
	return f(ctx, path, mode)
}

// Gate evaluates and requests folder permission
type Gate struct {
	store    HandleStore
	prompter Prompter
	access   func(path string, mode domain.AccessMode) error
	now      func() time.Time
}

// NewGate creates a gate backed by store. prompter may be nil, in which
// case a forced prompt is treated as declined.
func NewGate(store HandleStore, prompter Prompter) *Gate {
	return &Gate{
		store:    store,
		prompter: prompter,
		access:   CheckAccess,
		now:      time.Now,
	}
}

// Decision is the result of a side-effect free permission query
type Decision struct {
	Granted bool
	// Reason says why access is not available; empty when granted
	Reason string
}

// Query checks the stored grant and the OS without prompting. The handle
// is re-read from the store so a revoke from another process is seen on
// the next tick.
func (g *Gate) Query(ctx context.Context, h domain.Handle, mode domain.AccessMode) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{Reason: err.Error()}, nil
	}

	current, err := g.current(h)
	if err != nil {
		return Decision{}, err
	}
	if current == nil {
		return Decision{Reason: "folder selection was removed"}, nil
	}
	if current.Path != h.Path {
		return Decision{Reason: fmt.Sprintf("a different folder was picked: %s", current.Path)}, nil
	}
	if !current.Granted(mode) {
		return Decision{Reason: fmt.Sprintf("%s access has not been granted", mode)}, nil
	}
	if err := g.access(h.Path, mode); err != nil {
		return Decision{Reason: err.Error()}, nil
	}
	return Decision{Granted: true}, nil
}

// EnsurePermission returns true when mode access to the handle's folder is
// available. With forcePrompt false it never interacts with the user.
// Denial is reported as false; the error is reserved for store failures.
func (g *Gate) EnsurePermission(ctx context.Context, h domain.Handle, mode domain.AccessMode, forcePrompt bool) (bool, error) {
	d, err := g.Query(ctx, h, mode)
	if err != nil {
		return false, err
	}
	if d.Granted {
		return true, nil
	}
	if !forcePrompt {
		logger.Get().Debug("folder access not available", "path", h.Path, "reason", d.Reason)
		return false, nil
	}

	if g.prompter == nil {
		return false, nil
	}
	ok, err := g.prompter.Confirm(ctx, h.Path, mode)
	if err != nil {
		logger.Get().Warn("permission prompt failed", "path", h.Path, "error", err)
		return false, nil
	}
	if !ok {
		logger.Get().Info("folder access declined", "path", h.Path)
		return false, nil
	}

	// Only the stored handle is granted: a folder forgotten or re-picked
	// while the prompt was open must not come back
	current, err := g.current(h)
	if err != nil {
		return false, err
	}
	if current == nil || current.Path != h.Path {
		logger.Get().Info("folder selection changed, grant not recorded", "path", h.Path)
		return false, nil
	}
	grant := *current
	if !grant.Mode.Covers(mode) {
		grant.Mode = mode
	}
	grant.GrantedAt = g.now().UTC()
	if err := g.store.SaveHandle(grant); err != nil {
		return false, fmt.Errorf("failed to record grant: %w", err)
	}
	logger.Get().Info("folder access granted", "path", grant.Path, "mode", grant.Mode)

	if err := g.access(h.Path, mode); err != nil {
		logger.Get().Warn("folder still not accessible after grant", "path", h.Path, "error", err)
		return false, nil
	}
	return true, nil
}

// current loads the stored handle for h.Key; nil means it is gone
func (g *Gate) current(h domain.Handle) (*domain.Handle, error) {
	key := h.Key
	if key == "" {
		key = domain.HandleKey
	}
	stored, err := g.store.LoadHandle(key)
	if errors.Is(err, domain.ErrNoHandle) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read folder handle: %w", err)
	}
	return stored, nil
}
