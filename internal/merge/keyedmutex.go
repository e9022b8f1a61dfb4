package merge

import (
	"context"
	"sync"

	id "sanctum/pkg/domain"
)

// keyedMutex serializes merges per couple. Locks are channel-based so a
// waiter can give up when its context ends, and entries are reference-counted
// so an idle couple leaves no residue in the map.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[id.CoupleID]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[id.CoupleID]*lockEntry)}
}

// lock blocks until the couple's lock is acquired or ctx ends. On success the
// returned release function must be called exactly once.
func (m *keyedMutex) lock(ctx context.Context, key id.CoupleID) (release func(), err error) {
	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &lockEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-entry.ch
				m.drop(key, entry)
			})
		}, nil
	case <-ctx.Done():
		m.drop(key, entry)
		return nil, ctx.Err()
	}
}

func (m *keyedMutex) drop(key id.CoupleID, entry *lockEntry) {
	m.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}

// size reports how many couples currently hold or wait on a lock.
func (m *keyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
