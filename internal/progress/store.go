package progress

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [Store.Load] when no progress has been persisted
// yet. The engine treats it as "first run" and starts from defaults.
var ErrNotFound = errors.New("progress: no persisted state")

// ErrIncompatible is returned by [Store.Load] when the persisted blob is
// corrupted or was written with an unsupported schema version. The engine
// falls back to defaults rather than failing startup.
var ErrIncompatible = errors.New("progress: persisted state incompatible")

// Store persists the [UserProgress] aggregate. A store holds exactly one
// aggregate (one user per deployment).
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the persisted aggregate. Returns [ErrNotFound] when
	// nothing has been saved yet and [ErrIncompatible] when the stored data
	// cannot be decoded.
	Load(ctx context.Context) (*UserProgress, error)

	// Save persists the aggregate, replacing any previous state.
	Save(ctx context.Context, p *UserProgress) error

	// Close releases the store's resources.
	Close() error
}
