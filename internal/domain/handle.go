package domain

import (
	"fmt"
	"time"
)

// HandleKey is the single record key under which the chosen folder is stored
const HandleKey = "dir"

// AccessMode is the kind of access requested on a folder
type AccessMode string

const (
	// ModeRead allows listing and reading files
	ModeRead AccessMode = "read"

	// ModeReadWrite additionally allows deleting uploaded files
	ModeReadWrite AccessMode = "readwrite"
)

// IsValid checks if the access mode is a known value
func (m AccessMode) IsValid() bool {
	switch m {
	case ModeRead, ModeReadWrite:
		return true
	}
	return false
}

// Covers reports whether a grant of mode m satisfies a request for want.
func (m AccessMode) Covers(want AccessMode) bool {
	if m == ModeReadWrite {
		return want.IsValid()
	}
	return m == ModeRead && want == ModeRead
}

// ParseAccessMode parses a mode name, defaulting to readwrite.
func ParseAccessMode(s string) (AccessMode, error) {
	switch AccessMode(s) {
	case "":
		return ModeReadWrite, nil
	case ModeRead, ModeReadWrite:
		return AccessMode(s), nil
	}
	return "", fmt.Errorf("%w: unknown access mode %q", ErrConfigInvalid, s)
}

// Handle is the persisted capability for a user-chosen folder.
// A zero GrantedAt means access was never granted or has been revoked.
type Handle struct {
	Key       string
	Path      string
	Mode      AccessMode
	GrantedAt time.Time
}

// Granted reports whether the stored grant covers mode.
func (h Handle) Granted(mode AccessMode) bool {
	return !h.GrantedAt.IsZero() && h.Mode.Covers(mode)
}
