package contextstore

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
)

var _ core.ContextStore = (*InMemoryStore)(nil)

func TestPutAssignsAscendingVersions(t *testing.T) {
	s := NewInMemoryStore()

	v, err := s.Put("api-notes", "first pass", "task-1")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = s.Put("api-notes", "second pass", "task-2")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	entry, err := s.Get("api-notes")
	require.NoError(t, err)
	assert.Equal(t, "second pass", entry.Content)
	assert.Equal(t, "task-2", entry.ProducerTaskID)
	assert.Equal(t, 2, entry.Version)
}

func TestPutRejectsEmptyID(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Put("", "content", "task-1")
	assert.Error(t, err)
}

func TestGetUnknownID(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Get("missing")
	assert.True(t, errors.Is(err, core.ErrContextNotFound))
}

func TestHistoryKeepsEveryVersion(t *testing.T) {
	s := NewInMemoryStore()
	for i := 1; i <= 3; i++ {
		_, err := s.Put("findings", fmt.Sprintf("rev %d", i), "task-1")
		require.NoError(t, err)
	}

	hist, err := s.History("findings")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	for i, e := range hist {
		assert.Equal(t, i+1, e.Version)
		assert.Equal(t, fmt.Sprintf("rev %d", i+1), e.Content)
	}

	_, err = s.History("missing")
	assert.True(t, errors.Is(err, core.ErrContextNotFound))
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Put("plan", "v1", "task-1")
	require.NoError(t, err)

	snap := s.Snapshot()

	_, err = s.Put("plan", "v2", "task-2")
	require.NoError(t, err)
	_, err = s.Put("extra", "later", "task-2")
	require.NoError(t, err)

	// The snapshot still sees the state at capture time.
	entry, ok := snap.Get("plan")
	require.True(t, ok)
	assert.Equal(t, "v1", entry.Content)
	_, ok = snap.Get("extra")
	assert.False(t, ok)

	// The live store sees the newer versions.
	entry, err = s.Get("plan")
	require.NoError(t, err)
	assert.Equal(t, "v2", entry.Content)
	assert.Equal(t, 2, s.Len())
}

func TestResolveReportsAllMissing(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Put("a", "x", "task-1")
	require.NoError(t, err)

	_, err = s.Resolve([]string{"a", "b", "c"})
	var missing *core.MissingContextError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"b", "c"}, missing.IDs)

	entries, err := s.Resolve([]string{"a"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x", entries[0].Content)
}

func TestConcurrentPuts(t *testing.T) {
	s := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Put("shared", fmt.Sprintf("writer %d", n), "task")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	hist, err := s.History("shared")
	require.NoError(t, err)
	assert.Len(t, hist, 50)
	for i, e := range hist {
		assert.Equal(t, i+1, e.Version)
	}
}
