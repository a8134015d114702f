//go:build !windows

package daemon

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func isProcessRunning(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// killProcess sends SIGTERM; the watcher drains uploads on it
func killProcess(pid int) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}
