package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseName is the sqlite file created inside the data directory
const DatabaseName = "hotfolder.db"

// Manager persists the folder grant and the upload history
type Manager struct {
	db *sql.DB
}

// NewManager opens (and creates if needed) the state database in dataDir
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Uploads finish on many goroutines; one connection avoids "database is locked"
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	manager := &Manager{db: db}

	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS handles (
		key TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		mode TEXT NOT NULL,
		granted_at TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS uploads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		upload_key TEXT NOT NULL,
		destination TEXT NOT NULL,
		remote_id TEXT,
		status TEXT NOT NULL,
		size INTEGER DEFAULT 0,
		checksum TEXT,
		deleted INTEGER DEFAULT 0,
		last_modified INTEGER NOT NULL,
		start_time TIMESTAMP NOT NULL,
		duration_ms INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_filename_time ON uploads(filename, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status);
	`

	_, err := m.db.Exec(schema)
	return err
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
