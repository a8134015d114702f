package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Ning0612/Hotfolder/internal/adapter"
	"github.com/Ning0612/Hotfolder/internal/domain"
)

// Adapter implements adapter.Source for a local directory
type Adapter struct {
	root string
}

var _ adapter.Source = (*Adapter)(nil)

// New creates a new local folder adapter
// root must be an existing directory; it is made absolute
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	return &Adapter{root: absRoot}, nil
}

// resolvePath safely resolves a relative path to absolute path within root
// Returns error if path attempts to escape root directory
func (a *Adapter) resolvePath(relPath string) (string, error) {
	if relPath == "" || relPath == "." {
		return a.root, nil
	}

	relPath = filepath.Clean(filepath.FromSlash(relPath))

	if filepath.IsAbs(relPath) {
		return "", domain.ErrPermissionDenied
	}

	fullPath := filepath.Join(a.root, relPath)

	// filepath.Rel handles root="C:\root" vs fullPath="C:\root2"
	rel, err := filepath.Rel(a.root, fullPath)
	if err != nil {
		return "", domain.ErrPermissionDenied
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.ErrPermissionDenied
	}

	return fullPath, nil
}

// OpenDir starts a lazy enumeration of the root directory
func (a *Adapter) OpenDir(ctx context.Context) (adapter.DirStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := os.Open(a.root)
	if err != nil {
		return nil, mapError(err)
	}

	return &dirStream{dir: dir}, nil
}

type dirStream struct {
	dir     *os.File
	pending error
}

func (s *dirStream) Next(n int) ([]adapter.DirEntry, error) {
	if s.pending != nil {
		return nil, s.pending
	}

	entries, err := s.dir.ReadDir(n)
	if err != nil && !errors.Is(err, io.EOF) {
		s.pending = mapError(err)
	}
	if len(entries) == 0 {
		if s.pending != nil {
			return nil, s.pending
		}
		return nil, io.EOF
	}

	batch := make([]adapter.DirEntry, 0, len(entries))
	for _, entry := range entries {
		de := adapter.DirEntry{Name: entry.Name()}

		info, statErr := entry.Info()
		if statErr != nil {
			de.Err = fmt.Errorf("%w: %s: %w", domain.ErrFileRead, entry.Name(), mapError(statErr))
		} else {
			de.Info = fileInfoFromOS(entry.Name(), info)
		}
		batch = append(batch, de)
	}

	// entries read before a failure are delivered; the error comes next call
	return batch, nil
}

func (s *dirStream) Close() error {
	return s.dir.Close()
}

// Read opens a file for reading
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, mapError(err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, mapError(err)
	}
	if info.IsDir() {
		file.Close()
		return nil, domain.ErrNotFile
	}

	return file, nil
}

// Delete removes a file
func (a *Adapter) Delete(ctx context.Context, path string) error {
	fullPath, err := a.resolvePath(path)
	if err != nil {
		return err
	}

	return mapError(os.Remove(fullPath))
}

// Stat returns metadata for a single path
func (a *Adapter) Stat(ctx context.Context, path string) (domain.FileInfo, error) {
	fullPath, err := a.resolvePath(path)
	if err != nil {
		return domain.FileInfo{}, err
	}

	info, err := os.Lstat(fullPath)
	if err != nil {
		return domain.FileInfo{}, mapError(err)
	}

	return fileInfoFromOS(path, info), nil
}

// Close releases any resources (no-op for local adapter)
func (a *Adapter) Close() error {
	return nil
}

// Root returns the root path of this adapter
func (a *Adapter) Root() string {
	return a.root
}

func fileInfoFromOS(path string, info os.FileInfo) domain.FileInfo {
	mode := info.Mode()

	fileType := domain.FileTypeOther
	switch {
	case mode.IsRegular():
		fileType = domain.FileTypeRegular
	case mode.IsDir():
		fileType = domain.FileTypeDirectory
	case mode&os.ModeSymlink != 0:
		fileType = domain.FileTypeSymlink
	}

	size := info.Size()
	if fileType == domain.FileTypeDirectory {
		size = 0
	}

	return domain.FileInfo{
		Path:    filepath.ToSlash(path),
		Type:    fileType,
		Size:    size,
		ModTime: info.ModTime(),
	}
}

// mapError converts OS errors to domain errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return domain.ErrNotFound
	case errors.Is(err, os.ErrPermission):
		return domain.ErrPermissionDenied
	case errors.Is(err, os.ErrExist):
		return domain.ErrAlreadyExists
	case errors.Is(err, syscall.ENOTDIR):
		return domain.ErrNotDirectory
	}

	return err
}
