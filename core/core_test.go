package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}
	for _, s := range []Status{StatusPending, StatusDispatched, StatusRunning} {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestVerbClassification(t *testing.T) {
	assert.True(t, VerbWrite.Mutating())
	assert.True(t, VerbEdit.Mutating())
	assert.True(t, VerbMultiEdit.Mutating())
	assert.False(t, VerbRead.Mutating())
	assert.False(t, VerbBash.Mutating())

	assert.True(t, VerbTaskCreate.Orchestration())
	assert.True(t, VerbFinish.Orchestration())
	assert.False(t, VerbReport.Orchestration())

	assert.True(t, VerbGrep.Environment())
	assert.False(t, VerbAddNote.Environment())
	assert.False(t, VerbReport.Environment())
}

func TestSnapshotResolve(t *testing.T) {
	snap := NewSnapshot(map[string]ContextEntry{
		"a": {ID: "a", Content: "alpha", Version: 1},
		"b": {ID: "b", Content: "bravo", Version: 2},
	})

	entries, err := snap.Resolve([]string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Request order is preserved.
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "a", entries[1].ID)

	_, err = snap.Resolve([]string{"a", "x", "y"})
	var missing *MissingContextError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"x", "y"}, missing.IDs)
}

func TestSnapshotIsImmutableCopy(t *testing.T) {
	latest := map[string]ContextEntry{"a": {ID: "a", Content: "v1", Version: 1}}
	snap := NewSnapshot(latest)

	latest["a"] = ContextEntry{ID: "a", Content: "v2", Version: 2}
	latest["b"] = ContextEntry{ID: "b", Content: "new", Version: 1}

	e, ok := snap.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v1", e.Content)
	_, ok = snap.Get("b")
	assert.False(t, ok)
}

func TestReportTerminal(t *testing.T) {
	cases := []struct {
		reason ReportReason
		status Status
	}{
		{ReasonCompleted, StatusCompleted},
		{ReasonMaxTurns, StatusTimedOut},
		{ReasonCancelled, StatusCancelled},
		{ReasonProtocolErrors, StatusFailed},
		{ReasonStrategyError, StatusFailed},
	}
	for _, c := range cases {
		r := &Report{Reason: c.reason}
		assert.Equal(t, c.status, r.Terminal(), "reason %s", c.reason)
	}
}

func TestTaskClone(t *testing.T) {
	task := &Task{
		ID:          "t1",
		ContextRefs: []string{"a"},
		ContextBootstrap: []ResourceRef{
			{Path: "src/", Reason: "layout"},
		},
	}
	clone := task.Clone()
	clone.ContextRefs[0] = "mutated"
	clone.ContextBootstrap[0].Path = "other/"

	assert.Equal(t, "a", task.ContextRefs[0])
	assert.Equal(t, "src/", task.ContextBootstrap[0].Path)
}
