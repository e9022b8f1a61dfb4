// Package memory provides an in-memory ledger store for tests and for
// running without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	id "sanctum/pkg/domain"
	"sanctum/pkg/platform/audit"
)

// InMemoryStore is an append-only ledger. Appends are idempotent on entry ID
// so recorder retries after an ambiguous failure collapse into one row.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
	seen    map[id.EntryID]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{seen: make(map[id.EntryID]struct{})}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[entry.ID]; ok {
		return nil
	}
	s.seen[entry.ID] = struct{}{}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByResource(_ context.Context, resourceType, resourceID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByActor(_ context.Context, actor string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.Actor == actor {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRange returns entries with from <= Timestamp < to ordered by timestamp.
// Entries carry recorder-assigned timestamps, but callers may re-drive their
// own, so the result is sorted rather than trusted to arrive in order.
func (s *InMemoryStore) ListRange(_ context.Context, from, to time.Time, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
