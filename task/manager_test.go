package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
)

func newSpec() core.TaskSpec {
	return core.TaskSpec{
		Title:       "survey the parser",
		Description: "map the entry points of the parser package",
		AgentType:   core.AgentTypeExplorer,
		MaxTurns:    5,
	}
}

func TestCreateValidates(t *testing.T) {
	m := NewManager()

	tests := []struct {
		name   string
		mutate func(*core.TaskSpec)
	}{
		{"missing title", func(s *core.TaskSpec) { s.Title = "" }},
		{"missing description", func(s *core.TaskSpec) { s.Description = "" }},
		{"unknown agent type", func(s *core.TaskSpec) { s.AgentType = "wizard" }},
		{"orchestrator not assignable", func(s *core.TaskSpec) { s.AgentType = core.AgentTypeOrchestrator }},
		{"zero turns", func(s *core.TaskSpec) { s.MaxTurns = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := newSpec()
			tt.mutate(&spec)
			_, err := m.Create(spec)
			assert.Error(t, err)
		})
	}

	created, err := m.Create(newSpec())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, core.StatusPending, created.Status)
	assert.Zero(t, created.TurnsUsed)
}

func TestLifecycleHappyPath(t *testing.T) {
	m := NewManager()
	created, err := m.Create(newSpec())
	require.NoError(t, err)

	require.NoError(t, m.Dispatch(created.ID, "batch-1"))
	require.NoError(t, m.MarkRunning(created.ID))
	require.NoError(t, m.RecordTurn(created.ID))
	require.NoError(t, m.RecordTurn(created.ID))

	report := &core.Report{
		TaskID: created.ID,
		Contexts: []core.ContextItem{
			{ID: "parser-map", Content: "entry points are Parse and ParseFile"},
		},
		Comments:  "done",
		TurnsUsed: 2,
		Reason:    core.ReasonCompleted,
	}
	require.NoError(t, m.Finalize(report))

	got, err := m.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.TurnsUsed)
	assert.Equal(t, []string{"parser-map"}, got.ResultContextIDs)
	assert.Equal(t, "batch-1", got.BatchID)
}

func TestTerminalStatusIsImmutable(t *testing.T) {
	m := NewManager()
	created, err := m.Create(newSpec())
	require.NoError(t, err)
	require.NoError(t, m.Dispatch(created.ID, ""))
	require.NoError(t, m.MarkRunning(created.ID))

	require.NoError(t, m.Finalize(&core.Report{
		TaskID:    created.ID,
		TurnsUsed: 1,
		Reason:    core.ReasonProtocolErrors,
		Comments:  "three malformed actions in a row",
		Forced:    true,
	}))

	got, err := m.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Empty(t, got.ResultContextIDs, "failed tasks publish no result contexts")
	assert.Equal(t, "three malformed actions in a row", got.Diagnostic)

	// Every further transition is rejected.
	assert.True(t, errors.Is(m.Dispatch(created.ID, ""), core.ErrTerminalState))
	assert.True(t, errors.Is(m.MarkRunning(created.ID), core.ErrTerminalState))
	assert.True(t, errors.Is(m.RecordTurn(created.ID), core.ErrTerminalState))
	assert.True(t, errors.Is(m.Cancel(created.ID, "late"), core.ErrTerminalState))
	assert.True(t, errors.Is(m.Finalize(&core.Report{
		TaskID: created.ID,
		Reason: core.ReasonCompleted,
	}), core.ErrTerminalState))
}

func TestTransitionOrdering(t *testing.T) {
	m := NewManager()
	created, err := m.Create(newSpec())
	require.NoError(t, err)

	assert.Error(t, m.MarkRunning(created.ID), "cannot run before dispatch")
	require.NoError(t, m.Dispatch(created.ID, ""))
	assert.Error(t, m.Dispatch(created.ID, ""), "double dispatch rejected")
	require.NoError(t, m.MarkRunning(created.ID))
}

func TestRecordTurnRespectsBudget(t *testing.T) {
	m := NewManager()
	spec := newSpec()
	spec.MaxTurns = 1
	created, err := m.Create(spec)
	require.NoError(t, err)
	require.NoError(t, m.Dispatch(created.ID, ""))
	require.NoError(t, m.MarkRunning(created.ID))

	require.NoError(t, m.RecordTurn(created.ID))
	assert.True(t, errors.Is(m.RecordTurn(created.ID), core.ErrBudgetExhausted))

	got, err := m.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnsUsed, "turns used never exceeds max")
}

func TestCancelNonTerminal(t *testing.T) {
	m := NewManager()
	created, err := m.Create(newSpec())
	require.NoError(t, err)

	require.NoError(t, m.Cancel(created.ID, "session aborted"))
	got, err := m.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, got.Status)
	assert.Equal(t, "session aborted", got.Diagnostic)
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewManager()
	created, err := m.Create(newSpec())
	require.NoError(t, err)

	got, err := m.Get(created.ID)
	require.NoError(t, err)
	got.Status = core.StatusFailed
	got.ContextRefs = append(got.ContextRefs, "smuggled")

	again, err := m.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, again.Status)
	assert.Empty(t, again.ContextRefs)
}

func TestListings(t *testing.T) {
	m := NewManager()
	first, err := m.Create(newSpec())
	require.NoError(t, err)
	second, err := m.Create(newSpec())
	require.NoError(t, err)

	require.NoError(t, m.Dispatch(second.ID, "batch-7"))

	all := m.List()
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID, "creation order preserved")

	pending := m.ListByStatus(core.StatusPending)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	batch := m.ListByBatch("batch-7")
	require.Len(t, batch, 1)
	assert.Equal(t, second.ID, batch[0].ID)

	_, err = m.Get("ghost")
	assert.True(t, errors.Is(err, core.ErrTaskNotFound))
}
