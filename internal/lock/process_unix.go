//go:build !windows

package lock

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processExists sends signal 0 to pid
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM: the process exists but belongs to someone else
	return errors.Is(err, unix.EPERM)
}
