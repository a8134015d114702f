package lock

import (
	"os"
	"path/filepath"
	"testing"
)

// TestAcquireTwice_ThenRelease: re-acquiring with a different folder must
// keep l.info in step with the file so Release still recognises its lock
func TestAcquireTwice_ThenRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := NewFileLock(dir)
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}

	// First acquire
	if err := lock.Acquire("/srv/in-a"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}

	// Second acquire with different folder 
	if err := lock.Acquire("/srv/in-b"); err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}

	// Release should succeed 
	if err := lock.Release(); err != nil {
		t.Fatalf("Release after re-acquire failed: %v ", err)
	}

	// Verify lock file is gone
	lockPath := filepath.Join(dir, LockFileName)
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Lock file still exists after release")
	}
}

// TestAcquireTwice_FolderPersisted verifies Folder is properly updated
func TestAcquireTwice_FolderPersisted(t *testing.T) {
	dir := t.TempDir()

	lock, err := NewFileLock(dir)
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}

	// Acquire with /srv/in-a
	if err := lock.Acquire("/srv/in-a"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}

	// Re-acquire with /srv/in-b
	if err := lock.Acquire("/srv/in-b"); err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}

	// Read lock info and verify Folder was updated
	info, err := lock.readLockInfo()
	if err != nil {
		t.Fatalf("Failed to read lock info: %v", err)
	}

	if info.Folder != "/srv/in-b" {
		t.Errorf("Expected Folder '/srv/in-b', got %q", info.Folder)
	}

	// Also verify internal state matches
	if lock.info.Folder != "/srv/in-b" {
		t.Errorf("Internal l.info.Folder should be '/srv/in-b', got %q", lock.info.Folder)
	}

	lock.Release()
}
