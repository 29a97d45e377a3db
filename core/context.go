package core

import "sort"

// ContextEntry is a single versioned fact in the knowledge store. Entries are
// immutable after creation: re-adding an existing id yields a new entry with
// a higher Version rather than an in-place update.
type ContextEntry struct {
	ID             string `json:"id"`
	Content        string `json:"content"`
	ProducerTaskID string `json:"producer_task_id"`
	Version        int    `json:"version"`
}

// ContextStore is the append-only knowledge base shared across a session.
// Implementations must be safe for concurrent use.
//
// Contract:
//   - Put never overwrites; a colliding id is stored as the next version
//   - Get returns the latest version or ErrContextNotFound
//   - History returns all versions of an id in ascending version order
//   - Snapshot returns an immutable latest-by-id view; entries already held
//     by a snapshot are unaffected by later Puts
//   - Resolve fails with *MissingContextError listing every absent id
type ContextStore interface {
	Put(id, content, producerTaskID string) (version int, err error)
	Get(id string) (ContextEntry, error)
	History(id string) ([]ContextEntry, error)
	Snapshot() Snapshot
	Resolve(ids []string) ([]ContextEntry, error)
	Len() int
}

// Snapshot is an immutable latest-by-id view of a ContextStore taken at a
// point in time. All tasks in one batch observe the same snapshot; no worker
// ever sees a sibling's in-flight write.
type Snapshot struct {
	entries map[string]ContextEntry
}

// NewSnapshot builds a snapshot from a latest-by-id mapping. The map is
// copied so the caller may keep mutating its own copy.
func NewSnapshot(latest map[string]ContextEntry) Snapshot {
	entries := make(map[string]ContextEntry, len(latest))
	for id, e := range latest {
		entries[id] = e
	}
	return Snapshot{entries: entries}
}

// Get returns the snapshot's entry for id.
func (s Snapshot) Get(id string) (ContextEntry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Resolve returns the entries for the given ids preserving request order.
// It fails with *MissingContextError naming every id absent from the snapshot.
func (s Snapshot) Resolve(ids []string) ([]ContextEntry, error) {
	var missing []string
	resolved := make([]ContextEntry, 0, len(ids))
	for _, id := range ids {
		e, ok := s.entries[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		resolved = append(resolved, e)
	}
	if len(missing) > 0 {
		return nil, &MissingContextError{IDs: missing}
	}
	return resolved, nil
}

// IDs returns the sorted ids present in the snapshot.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of distinct ids in the snapshot.
func (s Snapshot) Len() int { return len(s.entries) }
