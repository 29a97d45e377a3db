package contextstore

import (
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// InMemoryStore is a volatile ContextStore keeping every version of every
// entry in a process-local map. It is safe for concurrent access. Entries
// are value types, so readers can never mutate stored state.
type InMemoryStore struct {
	mu       sync.RWMutex
	versions map[string][]core.ContextEntry // id -> ascending versions
}

// NewInMemoryStore constructs an empty in-memory context store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{versions: make(map[string][]core.ContextEntry)}
}

// Put appends a new version for id and returns its version number. A
// colliding id never overwrites: snapshots holding the older version stay
// valid.
func (s *InMemoryStore) Put(id, content, producerTaskID string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("contextstore: empty context id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	version := len(s.versions[id]) + 1
	s.versions[id] = append(s.versions[id], core.ContextEntry{
		ID:             id,
		Content:        content,
		ProducerTaskID: producerTaskID,
		Version:        version,
	})
	return version, nil
}

// Get returns the latest version of id or core.ErrContextNotFound.
func (s *InMemoryStore) Get(id string) (core.ContextEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs, ok := s.versions[id]
	if !ok {
		return core.ContextEntry{}, fmt.Errorf("contextstore: %q: %w", id, core.ErrContextNotFound)
	}
	return vs[len(vs)-1], nil
}

// History returns every version of id in ascending version order.
func (s *InMemoryStore) History(id string) ([]core.ContextEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("contextstore: %q: %w", id, core.ErrContextNotFound)
	}
	out := make([]core.ContextEntry, len(vs))
	copy(out, vs)
	return out, nil
}

// Snapshot returns an immutable latest-by-id view of the store.
func (s *InMemoryStore) Snapshot() core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]core.ContextEntry, len(s.versions))
	for id, vs := range s.versions {
		latest[id] = vs[len(vs)-1]
	}
	return core.NewSnapshot(latest)
}

// Resolve returns the latest entries for ids preserving request order,
// failing with *core.MissingContextError naming every absent id.
func (s *InMemoryStore) Resolve(ids []string) ([]core.ContextEntry, error) {
	return s.Snapshot().Resolve(ids)
}

// Len returns the number of distinct context ids.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.versions)
}
