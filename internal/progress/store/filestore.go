package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hagop-ai/hagopai/internal/progress"
)

// Compile-time interface check.
var _ progress.Store = (*FileStore)(nil)

// FileStore persists learner progress as a single JSON file on local disk.
// Writes go through a temp file plus rename so a crash mid-write never leaves
// a truncated blob behind. Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore that reads and writes path. Parent
// directories are created on demand.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads and decodes the progress file. Returns [progress.ErrNotFound]
// when no file exists yet and [progress.ErrIncompatible] when the file cannot
// be decoded.
func (s *FileStore) Load(ctx context.Context) (*progress.UserProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, progress.ErrNotFound
		}
		return nil, fmt.Errorf("progress store: read %s: %w", s.path, err)
	}
	return decode(data)
}

// Save atomically replaces the progress file with the given aggregate.
func (s *FileStore) Save(ctx context.Context, p *progress.UserProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encode(p, time.Now())
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("progress store: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("progress store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("progress store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("progress store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("progress store: replace %s: %w", s.path, err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }
