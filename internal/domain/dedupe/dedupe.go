// Package dedupe implements the reader half of the cross-replica
// idempotency contract: replicas may append duplicate entries for the
// same firing, and readers collapse them by (stream, id prefix),
// first-writer-wins.
package dedupe

import (
	"context"
	"strings"
	"sync"

	"github.com/carvectf/canary/internal/domain/model"
)

// Entry is one log entry as observed by a reader.
type Entry struct {
	ID     model.EntryID
	Fields map[string]string
}

// Collapse returns entries with duplicates removed: for each id prefix
// only the first entry survives. Input order is preserved.
func Collapse(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		p := prefix(e.ID)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Deduper tracks (stream, id prefix) pairs for streaming readers.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates an empty Deduper.
func New() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// SeenAndRecord atomically checks whether an entry's logical identity was
// seen and records it if not. Returns true when the entry is a duplicate.
func (d *Deduper) SeenAndRecord(_ context.Context, stream string, id model.EntryID) bool {
	key := stream + "\x00" + prefix(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.seen[key]; dup {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

// Size returns the number of logical entries recorded.
func (d *Deduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func prefix(id model.EntryID) string {
	s := string(id)
	if i := strings.IndexByte(s, '-'); i >= 0 {
		return s[:i]
	}
	return s
}
