package clientcontext

import (
	"context"
	"sync"

	id "sanctum/pkg/domain"
	"sanctum/pkg/platform/sentinel"
)

// InMemory keeps context snapshots and couple links in process. Used in
// tests and when no Postgres DSN is configured.
type InMemory struct {
	mu       sync.RWMutex
	contexts map[id.ClientID]map[int64]*ClientContext
	latest   map[id.ClientID]int64
	couples  map[id.CoupleID]*CoupleLink
}

func NewInMemory() *InMemory {
	return &InMemory{
		contexts: make(map[id.ClientID]map[int64]*ClientContext),
		latest:   make(map[id.ClientID]int64),
		couples:  make(map[id.CoupleID]*CoupleLink),
	}
}

// PutContext stores a snapshot. Seeding and tests only.
func (s *InMemory) PutContext(_ context.Context, cc *ClientContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.contexts[cc.ClientID]
	if !ok {
		versions = make(map[int64]*ClientContext)
		s.contexts[cc.ClientID] = versions
	}
	versions[cc.Version] = cc.Clone()
	if cc.Version > s.latest[cc.ClientID] {
		s.latest[cc.ClientID] = cc.Version
	}
	return nil
}

// PutCoupleLink stores a link. Seeding and tests only.
func (s *InMemory) PutCoupleLink(_ context.Context, link *CoupleLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *link
	s.couples[link.CoupleID] = &cp
	return nil
}

func (s *InMemory) GetContext(_ context.Context, clientID id.ClientID, version int64) (*ClientContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.contexts[clientID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if version == LatestVersion {
		version = s.latest[clientID]
	}
	cc, ok := versions[version]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cc.Clone(), nil
}

func (s *InMemory) GetCoupleLink(_ context.Context, coupleID id.CoupleID) (*CoupleLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.couples[coupleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *link
	return &cp, nil
}
