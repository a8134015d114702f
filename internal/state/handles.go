package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Ning0612/Hotfolder/internal/domain"
)

// SaveHandle inserts or replaces the record stored under h.Key
func (m *Manager) SaveHandle(h domain.Handle) error {
	if h.Key == "" {
		h.Key = domain.HandleKey
	}
	if h.Path == "" {
		return fmt.Errorf("handle path cannot be empty")
	}
	if !h.Mode.IsValid() {
		return fmt.Errorf("invalid access mode: %q", h.Mode)
	}

	var granted sql.NullTime
	if !h.GrantedAt.IsZero() {
		granted = sql.NullTime{Time: h.GrantedAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO handles (key, path, mode, granted_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			path = excluded.path,
			mode = excluded.mode,
			granted_at = excluded.granted_at,
			updated_at = excluded.updated_at
	`

	if _, err := m.db.Exec(query, h.Key, h.Path, string(h.Mode), granted, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save handle: %w", err)
	}
	return nil
}

// LoadHandle returns the handle stored under key, or domain.ErrNoHandle
func (m *Manager) LoadHandle(key string) (*domain.Handle, error) {
	query := `SELECT key, path, mode, granted_at FROM handles WHERE key = ?`

	var (
		h       domain.Handle
		mode    string
		granted sql.NullTime
	)
	err := m.db.QueryRow(query, key).Scan(&h.Key, &h.Path, &mode, &granted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoHandle
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load handle: %w", err)
	}

	h.Mode = domain.AccessMode(mode)
	if granted.Valid {
		h.GrantedAt = granted.Time
	}
	return &h, nil
}

// HandleExists reports whether a handle is stored under key
func (m *Manager) HandleExists(key string) (bool, error) {
	var n int
	if err := m.db.QueryRow(`SELECT COUNT(1) FROM handles WHERE key = ?`, key).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query handle: %w", err)
	}
	return n > 0, nil
}

// RevokeHandle clears the grant but keeps the chosen path
func (m *Manager) RevokeHandle(key string) error {
	res, err := m.db.Exec(`UPDATE handles SET granted_at = NULL, updated_at = ? WHERE key = ?`, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to revoke handle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNoHandle
	}
	return nil
}

// DeleteHandle forgets the handle entirely
func (m *Manager) DeleteHandle(key string) error {
	if _, err := m.db.Exec(`DELETE FROM handles WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete handle: %w", err)
	}
	return nil
}
