// Package eventlog clients the shared append-only log store that scoring
// events are published to. The write side is at-least-once: replicas may
// append duplicate entries for one firing, and readers collapse them by
// id prefix.
package eventlog

import (
	"context"

	"github.com/carvectf/canary/internal/domain/model"
)

// Entry is one log entry with its store-assigned id.
type Entry struct {
	ID     model.EntryID
	Fields map[string]string
}

// Store is the append-only log contract.
type Store interface {
	// Append adds an entry under stream. tsMS becomes the entry id
	// prefix; the store assigns the monotonic sequence suffix.
	Append(ctx context.Context, stream string, tsMS int64, fields map[string]string) (model.EntryID, error)

	// Health reports whether the store is reachable.
	Health(ctx context.Context) error

	// Subscribe yields entries of stream after sinceID. Writers never
	// call this; it serves the reader side and tests.
	Subscribe(ctx context.Context, stream string, sinceID model.EntryID) (<-chan Entry, error)
}
