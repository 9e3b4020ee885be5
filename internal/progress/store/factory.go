package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hagop-ai/hagopai/internal/config"
	"github.com/hagop-ai/hagopai/internal/progress"
)

// New builds the progress store selected by cfg.Backend. An empty backend
// defaults to the file store under cfg.Path.
func New(ctx context.Context, cfg config.ProgressConfig) (progress.Store, error) {
	switch cfg.Backend {
	case config.ProgressBackendFile, "":
		dir := cfg.Path
		if dir == "" {
			dir = "data"
		}
		return NewFileStore(filepath.Join(dir, "progress.json")), nil
	case config.ProgressBackendSQLite:
		path := cfg.Path
		if path == "" {
			path = filepath.Join("data", "progress.db")
		}
		return NewSQLiteStore(ctx, path)
	case config.ProgressBackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("progress store: postgres backend requires postgres_dsn")
		}
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("progress store: unknown backend %q", cfg.Backend)
	}
}
