// Package store provides persistence backends for learner progress. Three
// implementations are available: a JSON file on local disk, an embedded
// SQLite database and PostgreSQL. [New] selects one from configuration.
//
// All backends serialize the aggregate through a versioned envelope so that
// a blob written by a newer, incompatible schema is detected on load instead
// of being half-deserialized into garbage counters.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hagop-ai/hagopai/internal/progress"
)

// schemaVersion is bumped whenever the serialized shape of
// [progress.UserProgress] changes incompatibly.
const schemaVersion = 1

type envelope struct {
	SchemaVersion int                    `json:"schema_version"`
	SavedAt       time.Time              `json:"saved_at"`
	Progress      *progress.UserProgress `json:"progress"`
}

func encode(p *progress.UserProgress, now time.Time) ([]byte, error) {
	data, err := json.MarshalIndent(envelope{
		SchemaVersion: schemaVersion,
		SavedAt:       now.UTC(),
		Progress:      p,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("progress store: encode: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*progress.UserProgress, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("progress store: %w: %v", progress.ErrIncompatible, err)
	}
	if env.SchemaVersion != schemaVersion {
		return nil, fmt.Errorf("progress store: %w: schema version %d, expected %d",
			progress.ErrIncompatible, env.SchemaVersion, schemaVersion)
	}
	if env.Progress == nil {
		return nil, fmt.Errorf("progress store: %w: envelope has no payload", progress.ErrIncompatible)
	}
	return env.Progress, nil
}
