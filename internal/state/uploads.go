package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Upload statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// UploadRecord is one dispatch attempt
type UploadRecord struct {
	ID           int64
	Filename     string
	UploadKey    string
	Destination  string
	RemoteID     string
	Status       string
	Size         int64
	Checksum     string
	Deleted      bool
	LastModified int64 // ms since epoch, as seen by the scanner
	StartTime    time.Time
	Duration     time.Duration
	Error        string
}

// UploadStats summarizes the history table
type UploadStats struct {
	Succeeded int
	Failed    int
	Bytes     int64
	LastAt    time.Time
}

const uploadColumns = `id, filename, upload_key, destination, remote_id, status, size, checksum,
	deleted, last_modified, start_time, duration_ms, error`

// SaveUpload records one dispatch
func (m *Manager) SaveUpload(record UploadRecord) error {
	if record.Status != StatusSuccess && record.Status != StatusFailed {
		return fmt.Errorf("invalid status: %s (must be 'success' or 'failed')", record.Status)
	}
	if record.Filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	query := `
		INSERT INTO uploads (filename, upload_key, destination, remote_id, status, size, checksum,
			deleted, last_modified, start_time, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.Exec(query,
		record.Filename,
		record.UploadKey,
		record.Destination,
		record.RemoteID,
		record.Status,
		record.Size,
		record.Checksum,
		record.Deleted,
		record.LastModified,
		record.StartTime.UTC(),
		record.Duration.Milliseconds(),
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save upload record: %w", err)
	}

	return nil
}

// GetHistory returns the most recent uploads, newest first
func (m *Manager) GetHistory(limit int) ([]UploadRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `SELECT ` + uploadColumns + ` FROM uploads ORDER BY start_time DESC, id DESC LIMIT ?`
	return m.queryUploads(query, limit)
}

// GetFileHistory returns the most recent uploads of one filename
func (m *Manager) GetFileHistory(filename string, limit int) ([]UploadRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE filename = ? ORDER BY start_time DESC, id DESC LIMIT ?`
	return m.queryUploads(query, filename, limit)
}

// GetLastSuccess returns the newest successful upload of filename, or nil
func (m *Manager) GetLastSuccess(filename string) (*UploadRecord, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads
		WHERE filename = ? AND status = 'success'
		ORDER BY start_time DESC, id DESC LIMIT 1`

	record, err := scanUpload(m.db.QueryRow(query, filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	return record, nil
}

// Stats aggregates the whole history
func (m *Manager) Stats() (UploadStats, error) {
	var (
		stats UploadStats
		last  sql.NullString
	)
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'success' THEN size ELSE 0 END), 0),
			MAX(start_time)
		FROM uploads
	`
	if err := m.db.QueryRow(query).Scan(&stats.Succeeded, &stats.Failed, &stats.Bytes, &last); err != nil {
		return stats, fmt.Errorf("failed to query stats: %w", err)
	}
	if last.Valid {
		if t, err := parseSQLiteTime(last.String); err == nil {
			stats.LastAt = t
		}
	}
	return stats, nil
}

// PruneHistory deletes records older than before and returns how many went
func (m *Manager) PruneHistory(before time.Time) (int64, error) {
	res, err := m.db.Exec(`DELETE FROM uploads WHERE start_time < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

func (m *Manager) queryUploads(query string, args ...any) ([]UploadRecord, error) {
	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []UploadRecord
	for rows.Next() {
		record, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*UploadRecord, error) {
	var (
		record     UploadRecord
		remoteID   sql.NullString
		checksum   sql.NullString
		errText    sql.NullString
		durationMs int64
	)
	err := row.Scan(
		&record.ID,
		&record.Filename,
		&record.UploadKey,
		&record.Destination,
		&remoteID,
		&record.Status,
		&record.Size,
		&checksum,
		&record.Deleted,
		&record.LastModified,
		&record.StartTime,
		&durationMs,
		&errText,
	)
	if err != nil {
		return nil, err
	}
	record.RemoteID = remoteID.String
	record.Checksum = checksum.String
	record.Error = errText.String
	record.Duration = time.Duration(durationMs) * time.Millisecond
	return &record, nil
}

// parseSQLiteTime handles MAX() results, which lose the column's TIMESTAMP type
func parseSQLiteTime(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
