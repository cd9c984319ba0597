package eventlog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/carvectf/canary/internal/domain/model"
)

// MemoryStore is an in-process Store used by tests. It reproduces the id scheme of the Redis implementation:
// entries under one stream share a per-prefix sequence.
type MemoryStore struct {
	mu      sync.Mutex
	streams map[string][]Entry
	seq     map[string]int // per (stream, prefix)
	failing int
	healthy bool
}

// NewMemoryStore creates an empty, healthy store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[string][]Entry),
		seq:     make(map[string]int),
		healthy: true,
	}
}

// FailAppends makes the next n Append calls fail with ErrUnavailable.
func (s *MemoryStore) FailAppends(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = n
}

// SetHealthy toggles the Health verdict.
func (s *MemoryStore) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, stream string, tsMS int64, fields map[string]string) (model.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing > 0 {
		s.failing--
		return "", fmt.Errorf("%w: injected failure", ErrUnavailable)
	}

	seqKey := fmt.Sprintf("%s\x00%d", stream, tsMS)
	seq := s.seq[seqKey]
	s.seq[seqKey] = seq + 1

	id := model.EntryID(fmt.Sprintf("%d-%d", tsMS, seq))
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.streams[stream] = append(s.streams[stream], Entry{ID: id, Fields: copied})
	return id, nil
}

// Health implements Store.
func (s *MemoryStore) Health(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		return fmt.Errorf("%w: marked unhealthy", ErrUnavailable)
	}
	return nil
}

// Subscribe implements Store with snapshot semantics: entries present at
// call time are yielded and the channel closes.
func (s *MemoryStore) Subscribe(_ context.Context, stream string, sinceID model.EntryID) (<-chan Entry, error) {
	entries := s.Entries(stream)
	out := make(chan Entry, len(entries))
	var sinceMS, sinceSeq int64
	if sinceID != "" {
		_, _ = fmt.Sscanf(string(sinceID), "%d-%d", &sinceMS, &sinceSeq)
	}
	for _, e := range entries {
		var ms, seq int64
		_, _ = fmt.Sscanf(string(e.ID), "%d-%d", &ms, &seq)
		if sinceID != "" && (ms < sinceMS || (ms == sinceMS && seq <= sinceSeq)) {
			continue
		}
		out <- e
	}
	close(out)
	return out, nil
}

// Entries returns a copy of one stream in append order.
func (s *MemoryStore) Entries(stream string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.streams[stream]...)
}

// Streams returns every stream key with at least one entry, sorted.
func (s *MemoryStore) Streams() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.streams))
	for k := range s.streams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
