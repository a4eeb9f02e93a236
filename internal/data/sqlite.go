package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
	"github.com/devricklin/keyword-forwarder/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// sqliteStore implements the fingerprint and cursor repositories on SQLite
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the store database at dbPath
func NewSQLiteStore(dbPath string) (repo.Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("failed to create db directory: %w", err)}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("failed to open database: %w", err)}
	}
	// single writer
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS forwarded_messages (
			source_id TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			forwarded_at INTEGER NOT NULL,
			PRIMARY KEY (source_id, fingerprint)
		)
	`)
	if err != nil {
		db.Close()
		return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("failed to create forwarded_messages table: %w", err)}
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_forwarded_source_time ON forwarded_messages(source_id, forwarded_at)
	`)
	if err != nil {
		db.Close()
		return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("failed to create index: %w", err)}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scan_cursors (
			source_id TEXT PRIMARY KEY,
			scanned_until INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, &domain.StoreError{Op: "open", Err: fmt.Errorf("failed to create scan_cursors table: %w", err)}
	}

	return &sqliteStore{db: db}, nil
}

// Exists checks whether the pair has been recorded
func (s *sqliteStore) Exists(ctx context.Context, sourceID string, fp domain.Fingerprint) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM forwarded_messages WHERE source_id = ? AND fingerprint = ?
	`, sourceID, string(fp)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &domain.StoreError{Op: "exists", Err: fmt.Errorf("failed to query fingerprint: %w", err)}
	}
	return true, nil
}

// Record inserts a forwarded record, ignoring an existing pair
func (s *sqliteStore) Record(ctx context.Context, rec domain.ForwardedRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO forwarded_messages (source_id, fingerprint, message_id, forwarded_at)
		VALUES (?, ?, ?, ?)
	`, rec.SourceID, string(rec.Fingerprint), rec.MessageID, rec.ForwardedAt.Unix())
	if err != nil {
		return &domain.StoreError{Op: "record", Err: fmt.Errorf("failed to insert fingerprint: %w", err)}
	}
	return nil
}

// ListRecent lists the newest records of a source
func (s *sqliteStore) ListRecent(ctx context.Context, sourceID string, limit int) ([]domain.ForwardedRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, fingerprint, message_id, forwarded_at
		FROM forwarded_messages
		WHERE source_id = ?
		ORDER BY forwarded_at DESC
		LIMIT ?
	`, sourceID, limit)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: fmt.Errorf("failed to list records: %w", err)}
	}
	defer rows.Close()

	var records []domain.ForwardedRecord
	for rows.Next() {
		var rec domain.ForwardedRecord
		var fp string
		var forwardedAt int64
		if err := rows.Scan(&rec.SourceID, &fp, &rec.MessageID, &forwardedAt); err != nil {
			return nil, &domain.StoreError{Op: "list", Err: fmt.Errorf("failed to scan record: %w", err)}
		}
		rec.Fingerprint = domain.Fingerprint(fp)
		rec.ForwardedAt = time.Unix(forwardedAt, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}
	return records, nil
}

// Count returns the number of records
func (s *sqliteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM forwarded_messages`).Scan(&n); err != nil {
		return 0, &domain.StoreError{Op: "count", Err: fmt.Errorf("failed to count records: %w", err)}
	}
	return n, nil
}

// GetCursor returns the last scanned time of a source
func (s *sqliteStore) GetCursor(ctx context.Context, sourceID string) (time.Time, error) {
	var until int64
	err := s.db.QueryRowContext(ctx, `
		SELECT scanned_until FROM scan_cursors WHERE source_id = ?
	`, sourceID).Scan(&until)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, &domain.StoreError{Op: "get cursor", Err: fmt.Errorf("failed to query cursor: %w", err)}
	}
	return time.Unix(until, 0), nil
}

// SetCursor stores the last scanned time of a source
func (s *sqliteStore) SetCursor(ctx context.Context, sourceID string, scannedUntil time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO scan_cursors (source_id, scanned_until) VALUES (?, ?)
	`, sourceID, scannedUntil.Unix())
	if err != nil {
		return &domain.StoreError{Op: "set cursor", Err: fmt.Errorf("failed to save cursor: %w", err)}
	}
	return nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}
