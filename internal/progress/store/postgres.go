package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hagop-ai/hagopai/internal/progress"
)

// Compile-time interface check.
var _ progress.Store = (*PostgresStore)(nil)

// PostgresStore persists learner progress in PostgreSQL, for deployments where
// the client state must survive the machine it runs on. The aggregate lives in
// a single row keyed by schema version. All operations are safe for concurrent
// use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore establishes a connection pool to the database at dsn,
// verifies connectivity and ensures the progress table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("progress store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("progress store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("progress store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS learner_progress (
			schema_version INTEGER PRIMARY KEY,
			payload        JSONB NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("progress store: migrate: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Load reads the persisted aggregate. Returns [progress.ErrNotFound] when no
// row exists for the current schema version. A row under a different version
// is reported as [progress.ErrIncompatible].
func (s *PostgresStore) Load(ctx context.Context) (*progress.UserProgress, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		"SELECT payload FROM learner_progress WHERE schema_version = $1",
		schemaVersion).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		var n int
		if countErr := s.pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM learner_progress").Scan(&n); countErr == nil && n > 0 {
			return nil, fmt.Errorf("progress store: %w: no row for schema version %d",
				progress.ErrIncompatible, schemaVersion)
		}
		return nil, progress.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("progress store: query: %w", err)
	}
	return decode(payload)
}

// Save upserts the aggregate into the single progress row.
func (s *PostgresStore) Save(ctx context.Context, p *progress.UserProgress) error {
	data, err := encode(p, time.Now())
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO learner_progress (schema_version, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (schema_version) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, schemaVersion, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("progress store: upsert: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
