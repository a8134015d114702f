package domain

import "time"

// FileType represents the type of a filesystem entry
type FileType int

const (
	FileTypeRegular FileType = iota
	FileTypeDirectory
	FileTypeSymlink
	FileTypeOther
)

// FileInfo represents metadata about a file or directory in the watched folder
type FileInfo struct {
	// Path is the relative path from the folder root
	Path string

	// Type indicates if this is a file, directory, or symlink
	Type FileType

	// Size in bytes (0 for directories)
	Size int64

	// ModTime is the last modification time
	ModTime time.Time
}

// IsDir returns true if this is a directory
func (f FileInfo) IsDir() bool {
	return f.Type == FileTypeDirectory
}

// IsFile returns true if this is a regular file
func (f FileInfo) IsFile() bool {
	return f.Type == FileTypeRegular
}

// FileEntry is one candidate file read fresh from the folder on every scan.
type FileEntry struct {
	Name string

	// LastModified is milliseconds since the Unix epoch
	LastModified int64

	Size int64
}

// EntryFromInfo converts folder metadata into a scan entry.
func EntryFromInfo(info FileInfo) FileEntry {
	return FileEntry{
		Name:         info.Path,
		LastModified: info.ModTime.UnixMilli(),
		Size:         info.Size,
	}
}

// UploadPayload is everything a destination needs to store one file.
type UploadPayload struct {
	Filename    string
	UploadKey   string
	Timestamp   time.Time
	ContentType string
	Size        int64
	Workstation string
}

// UploadResult is the tagged outcome of one dispatch.
// Exactly one of RemoteID (success) or Err (failure) is meaningful.
type UploadResult struct {
	Filename string
	RemoteID string
	Err      error

	// Deleted reports whether the local file was removed after success
	Deleted bool

	Checksum string
	Bytes    int64
	Duration time.Duration
}

// OK reports whether the upload succeeded.
func (r UploadResult) OK() bool {
	return r.Err == nil
}
