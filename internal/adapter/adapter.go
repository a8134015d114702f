package adapter

import (
	"context"
	"io"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

// Source is the watched folder. All paths are relative to its root and
// errors are mapped to domain errors.
type Source interface {
	// OpenDir starts a fresh enumeration of the root directory
	// Returns domain.ErrNotFound or domain.ErrPermissionDenied if the root
	// cannot be read
	OpenDir(ctx context.Context) (DirStream, error)

	// Read opens a file for reading
	// Caller is responsible for closing the reader
	// Returns domain.ErrNotFound if file doesn't exist
	// Returns domain.ErrNotFile if path is a directory
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Stat returns metadata for a single path without following symlinks
	Stat(ctx context.Context, path string) (domain.FileInfo, error)

	// Delete removes a file
	// Returns domain.ErrNotFound if path doesn't exist
	Delete(ctx context.Context, path string) error

	// Root returns the absolute folder path
	Root() string

	// Close releases any resources held by the source
	Close() error
}

// DirStream yields directory entries in batches.
type DirStream interface {
	// Next returns up to n entries, and io.EOF once the directory is exhausted
	Next(n int) ([]DirEntry, error)
	Close() error
}

// DirEntry is one enumerated name. Err is set when the entry vanished or
// could not be stat'ed; the rest of the stream is unaffected.
type DirEntry struct {
	Name string
	Info domain.FileInfo
	Err  error
}

// Destination stores uploaded files
type Destination interface {
	// Name identifies the destination type in logs and history
	Name() string

	// Upload streams body to the destination and returns its identifier
	// for the stored file. A rejected upload returns an error wrapping
	// domain.ErrUpload (a *domain.UploadError for HTTP status failures).
	Upload(ctx context.Context, payload domain.UploadPayload, body io.Reader) (string, error)

	// Close releases any resources held by the destination
	Close() error
}
