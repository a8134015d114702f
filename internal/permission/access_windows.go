//go:build windows

package permission

import (
	"errors"
	"io"
	"os"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

// osAccess probes by listing and, for readwrite, creating a dot-file that
// the scanner ignores. Windows ACLs are not reflected in mode bits.
func osAccess(path string, mode domain.AccessMode) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	_, err = f.Readdirnames(1)
	f.Close()
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	if mode != domain.ModeReadWrite {
		return nil
	}
	probe, err := os.CreateTemp(path, ".hotfolder-probe-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
