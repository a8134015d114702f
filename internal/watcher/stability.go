package watcher

import (
	"time"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

// DefaultStabilityWindow is how long a file must stay unmodified
const DefaultStabilityWindow = 1500 * time.Millisecond

// IsStable reports whether entry is ready to upload: unmodified for at least
// window, and newer than the last processed timestamp seen (0 if never).
func IsStable(entry domain.FileEntry, seen int64, now time.Time, window time.Duration) bool {
	if now.UnixMilli()-entry.LastModified < window.Milliseconds() {
		return false
	}
	return entry.LastModified > seen
}
