package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// PIDFileName is the PID file written by `hotfolder watch`
const PIDFileName = "hotfolder.pid"

// ErrNotRunning is returned when no live watcher owns the PID file
var ErrNotRunning = errors.New("watcher is not running")

// PIDFile manages the watcher process ID file
type PIDFile struct {
	path string
}

// NewPIDFile creates a new PID file manager
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// PIDPath returns the PID file location inside stateDir, creating the dir
func PIDPath(stateDir string) (string, error) {
	if stateDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to get config directory: %w", err)
		}
		stateDir = filepath.Join(configDir, "hotfolder")
	}

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create PID directory: %w", err)
	}

	return filepath.Join(stateDir, PIDFileName), nil
}

// Path returns the PID file path
func (p *PIDFile) Path() string {
	return p.path
}

// Write records the current process, replacing a stale file
func (p *PIDFile) Write() error {
	if _, err := os.Stat(p.path); err == nil {
		if running, _ := p.IsRunning(); running {
			return fmt.Errorf("watcher is already running (PID file exists: %s)", p.path)
		}
		os.Remove(p.path)
	}

	content := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(p.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// Read reads the PID from the PID file
func (p *PIDFile) Read() (int, error) {
	content, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: no PID file at %s", ErrNotRunning, p.path)
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in file: %q", pidStr)
	}

	return pid, nil
}

// Remove removes the PID file
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning checks if the process in the PID file is running
func (p *PIDFile) IsRunning() (bool, error) {
	pid, err := p.Read()
	if err != nil {
		return false, err
	}

	return isProcessRunning(pid), nil
}

// Kill asks the recorded process to terminate
func (p *PIDFile) Kill() error {
	pid, err := p.Read()
	if err != nil {
		return err
	}
	if !isProcessRunning(pid) {
		return fmt.Errorf("%w: PID %d has exited", ErrNotRunning, pid)
	}

	return killProcess(pid)
}

// Stop signals the watcher and waits until it exits or ctx ends.
// In-flight uploads finish before the watcher exits, so this can take a while.
func (p *PIDFile) Stop(ctx context.Context) (int, error) {
	pid, err := p.Read()
	if err != nil {
		return 0, err
	}
	if err := p.Kill(); err != nil {
		return pid, err
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !isProcessRunning(pid) {
			return pid, nil
		}
		select {
		case <-ctx.Done():
			return pid, fmt.Errorf("watcher PID %d still running: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}
}
