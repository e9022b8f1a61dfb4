package policy

import (
	"context"
	"sort"
	"sync"

	id "sanctum/pkg/domain"
	"sanctum/pkg/platform/sentinel"
)

// InMemory keeps policies in process. Used in tests and when no Postgres DSN
// is configured.
type InMemory struct {
	mu       sync.RWMutex
	policies map[id.PolicyID]*WhitelistPolicy
}

func NewInMemory() *InMemory {
	return &InMemory{policies: make(map[id.PolicyID]*WhitelistPolicy)}
}

func (s *InMemory) Put(_ context.Context, p *WhitelistPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p.Clone()
	return nil
}

func (s *InMemory) GetByID(_ context.Context, policyID id.PolicyID) (*WhitelistPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[policyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

// GetActiveByName resolves the highest active version carrying the name.
func (s *InMemory) GetActiveByName(_ context.Context, name string) (*WhitelistPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *WhitelistPolicy
	for _, p := range s.policies {
		if p.Name != name || !p.Active {
			continue
		}
		if best == nil || p.Version > best.Version {
			best = p
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	return best.Clone(), nil
}

func (s *InMemory) List(_ context.Context) ([]*WhitelistPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*WhitelistPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}
