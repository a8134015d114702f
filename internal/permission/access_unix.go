//go:build !windows

package permission

import (
	"github.com/Ning0612/Hotfolder/internal/domain"
	"golang.org/x/sys/unix"
)

// osAccess asks the kernel with access(2); listing needs R and X
func osAccess(path string, mode domain.AccessMode) error {
	bits := uint32(unix.R_OK | unix.X_OK)
	if mode == domain.ModeReadWrite {
		bits |= unix.W_OK
	}
	return unix.Access(path, bits)
}
