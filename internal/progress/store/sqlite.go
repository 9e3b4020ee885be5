package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hagop-ai/hagopai/internal/progress"
)

// Compile-time interface check.
var _ progress.Store = (*SQLiteStore)(nil)

// SQLiteStore persists learner progress in an embedded SQLite database. The
// aggregate lives in a single row keyed by schema version, so upgrades that
// bump the version simply start fresh instead of misreading old blobs.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database file at path and ensures the
// schema exists.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("progress store: create dir: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("progress store: open sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("progress store: enable foreign keys: %w", err)
	}

	// SQLite does not support multiple writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS learner_progress (
			schema_version INTEGER PRIMARY KEY,
			payload        TEXT NOT NULL,
			updated_at     TIMESTAMP NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("progress store: create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load reads the persisted aggregate. Returns [progress.ErrNotFound] when no
// row exists for the current schema version. A row under a different version
// is reported as [progress.ErrIncompatible].
func (s *SQLiteStore) Load(ctx context.Context) (*progress.UserProgress, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload,
		"SELECT payload FROM learner_progress WHERE schema_version = ?", schemaVersion)
	if errors.Is(err, sql.ErrNoRows) {
		var n int
		if countErr := s.db.GetContext(ctx, &n,
			"SELECT COUNT(*) FROM learner_progress"); countErr == nil && n > 0 {
			return nil, fmt.Errorf("progress store: %w: no row for schema version %d",
				progress.ErrIncompatible, schemaVersion)
		}
		return nil, progress.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("progress store: query: %w", err)
	}
	return decode([]byte(payload))
}

// Save upserts the aggregate into the single progress row.
func (s *SQLiteStore) Save(ctx context.Context, p *progress.UserProgress) error {
	data, err := encode(p, time.Now())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO learner_progress (schema_version, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (schema_version) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, schemaVersion, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("progress store: upsert: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
