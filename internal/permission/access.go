package permission

import (
	"errors"
	"fmt"
	"os"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

// CheckAccess reports whether the OS allows mode access to the directory
// at path. It never modifies anything except, on windows, a probe file.
func CheckAccess(path string, mode domain.AccessMode) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", domain.ErrNotDirectory, path)
	}
	if err := osAccess(path, mode); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrPermissionDenied, path, err)
	}
	return nil
}
