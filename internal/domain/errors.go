package domain

import (
	"errors"
	"fmt"
)

// Adapter errors - local folder and destination access
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrPermissionDenied indicates the folder grant was declined or revoked
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates expected a file but got a directory
	ErrNotFile = errors.New("not a file")

	// ErrNetworkError indicates a network-related failure
	ErrNetworkError = errors.New("network error")
)

// Watch errors - poll loop failures
var (
	// ErrNoHandle indicates no folder has been picked yet
	ErrNoHandle = errors.New("no folder selected")

	// ErrEnumeration indicates the watched folder could not be listed
	ErrEnumeration = errors.New("directory enumeration failed")

	// ErrFileRead indicates a single entry could not be opened or stat'ed
	ErrFileRead = errors.New("file read failed")

	// ErrUpload indicates the destination rejected or never received a file
	ErrUpload = errors.New("upload failed")

	// ErrDelete indicates an uploaded file could not be removed locally
	ErrDelete = errors.New("delete after upload failed")

	// ErrWatcherRunning indicates Start was called twice
	ErrWatcherRunning = errors.New("watcher already running")
)

// Config errors - config file problems
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")

	// ErrUnknownDestination indicates an unsupported destination type
	ErrUnknownDestination = errors.New("unknown destination type")
)

// UploadError carries the response of a rejected upload.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("destination returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("destination returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrUpload) match rejected uploads.
func (e *UploadError) Unwrap() error {
	return ErrUpload
}
