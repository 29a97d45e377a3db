package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/batch"
	"github.com/hupe1980/taskmesh/budget"
	"github.com/hupe1980/taskmesh/contextstore"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/protocol"
	"github.com/hupe1980/taskmesh/subagent"
	"github.com/hupe1980/taskmesh/task"
)

type fixture struct {
	store   *contextstore.InMemoryStore
	manager *task.Manager
	loop    *Loop
}

// scriptedCoordinator replays wire outputs, substituting $TASK with the id
// of the most recently created task gleaned from observations.
type scriptedCoordinator struct {
	mu     sync.Mutex
	script []string
}

func (s *scriptedCoordinator) Next(_ context.Context, state *core.TurnState) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return "nothing left to do", nil
	}
	out := s.script[0]
	s.script = s.script[1:]
	if strings.Contains(out, "$TASK") {
		out = strings.ReplaceAll(out, "$TASK", lastCreatedTaskID(state.Observations))
	}
	return out, nil
}

func lastCreatedTaskID(observations []core.Observation) string {
	for i := len(observations) - 1; i >= 0; i-- {
		o := observations[i]
		if o.Source != "task_create" || o.IsError {
			continue
		}
		// "created task <id> (...)"
		fields := strings.Fields(o.Content)
		if len(fields) >= 3 {
			return fields[2]
		}
	}
	return ""
}

// workerScript is what every launched worker replays.
func newFixture(t *testing.T, coordinator core.Strategy, workerScript []string, optFns ...func(o *Options)) *fixture {
	t.Helper()

	var mu sync.Mutex
	remaining := append([]string(nil), workerScript...)
	worker := core.StrategyFunc(func(context.Context, *core.TurnState) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(remaining) == 0 {
			return "out of script", nil
		}
		out := remaining[0]
		remaining = remaining[1:]
		return out, nil
	})

	store := contextstore.NewInMemoryStore()
	manager := task.NewManager()
	meter := budget.NewMeter(0)
	backend := core.BackendFunc(func(context.Context, core.Action) (string, error) { return "ok", nil })
	dispatcher := subagent.New(func(core.AgentType) core.Strategy { return worker }, backend, meter)
	runner := batch.NewRunner(store, manager, dispatcher, meter)
	loop := New(coordinator, store, manager, runner, backend, optFns...)

	return &fixture{store: store, manager: manager, loop: loop}
}

func encode(t *testing.T, action core.Action) string {
	t.Helper()
	out, err := protocol.Encode(action)
	require.NoError(t, err)
	return out
}

func TestSessionCreateLaunchFinish(t *testing.T) {
	coordinator := &scriptedCoordinator{script: []string{
		`<task_create>
agent_type: explorer
title: survey the repository
description: find the packages worth reading
max_turns: 5
</task_create>`,
		`<launch_parallel>
task_ids:
  - $TASK
</launch_parallel>`,
		`<finish>
message: survey complete
</finish>`,
	}}
	f := newFixture(t, coordinator, []string{
		encode(t, core.ReportAction{
			Contexts: []core.ContextItem{{ID: "repo-survey", Content: "three packages matter"}},
			Comments: "done",
		}),
	})

	result, err := f.loop.Run(context.Background(), "understand the repository")
	require.NoError(t, err)

	assert.Equal(t, SessionFinished, result.Status)
	assert.Equal(t, "survey complete", result.Message)
	assert.Equal(t, 3, result.TurnsUsed)
	assert.Len(t, result.CompletedTasks, 1)
	assert.Empty(t, result.FailedTasks)
	assert.Equal(t, []string{"repo-survey"}, result.ContextIDs)

	entry, err := f.store.Get("repo-survey")
	require.NoError(t, err)
	assert.Equal(t, "three packages matter", entry.Content)
}

func TestCoordinatorMayNotReport(t *testing.T) {
	coordinator := &scriptedCoordinator{script: []string{
		encode(t, core.ReportAction{
			Contexts: []core.ContextItem{{ID: "sneaky", Content: "workers only"}},
		}),
		`<finish>
message: giving up on reporting
</finish>`,
	}}
	f := newFixture(t, coordinator, nil)

	result, err := f.loop.Run(context.Background(), "objective")
	require.NoError(t, err)

	assert.Equal(t, SessionFinished, result.Status)
	assert.Equal(t, 1, result.TurnsUsed, "the blocked report consumed no turn")
	assert.Empty(t, result.ContextIDs, "the report's contexts never entered the store")
}

func TestSessionTurnBudgetAborts(t *testing.T) {
	coordinator := &scriptedCoordinator{script: []string{
		`<add_context>
id: note-1
content: first note
</add_context>`,
		`<add_context>
id: note-2
content: second note
</add_context>`,
	}}
	f := newFixture(t, coordinator, nil, func(o *Options) {
		o.MaxTurns = 2
	})

	result, err := f.loop.Run(context.Background(), "objective")
	require.NoError(t, err)

	assert.Equal(t, SessionAborted, result.Status)
	assert.Equal(t, 2, result.TurnsUsed)
	assert.Equal(t, []string{"note-1", "note-2"}, result.ContextIDs, "work before the abort is preserved")
}

func TestPartialSuccessOnAbort(t *testing.T) {
	coordinator := &scriptedCoordinator{script: []string{
		`<task_create>
agent_type: explorer
title: quick look
description: one completed task before the budget dies
max_turns: 5
</task_create>`,
		`<launch_parallel>
task_ids:
  - $TASK
</launch_parallel>`,
	}}
	f := newFixture(t, coordinator, []string{
		encode(t, core.ReportAction{
			Contexts: []core.ContextItem{{ID: "quick-out", Content: "found it"}},
		}),
	}, func(o *Options) {
		o.MaxTurns = 2
	})

	result, err := f.loop.Run(context.Background(), "objective")
	require.NoError(t, err)

	assert.Equal(t, SessionAborted, result.Status)
	assert.True(t, result.PartialSuccess())
	assert.Len(t, result.CompletedTasks, 1)
	assert.Equal(t, []string{"quick-out"}, result.ContextIDs)
}

func TestDeadlineAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	coordinator := &scriptedCoordinator{}
	f := newFixture(t, coordinator, nil)

	result, err := f.loop.Run(ctx, "objective")
	require.NoError(t, err)
	assert.Equal(t, SessionAborted, result.Status)
	assert.Zero(t, result.TurnsUsed)
}

func TestRepeatedProtocolErrorsAbort(t *testing.T) {
	coordinator := &scriptedCoordinator{script: []string{
		"<garbage>", "<garbage>", "<garbage>",
	}}
	f := newFixture(t, coordinator, nil)

	result, err := f.loop.Run(context.Background(), "objective")
	require.NoError(t, err)
	assert.Equal(t, SessionAborted, result.Status)
	assert.Equal(t, 3, result.TurnsUsed, "protocol errors consume session turns")
	assert.False(t, result.PartialSuccess())
}

func TestInvalidTaskCreateIsFeedback(t *testing.T) {
	coordinator := &scriptedCoordinator{script: []string{
		`<task_create>
agent_type: wizard
title: bad profile
description: unknown agent type
max_turns: 5
</task_create>`,
		`<finish>
message: noted the rejection
</finish>`,
	}}
	f := newFixture(t, coordinator, nil)

	result, err := f.loop.Run(context.Background(), "objective")
	require.NoError(t, err)
	assert.Equal(t, SessionFinished, result.Status)
	assert.Empty(t, f.manager.List(), "no task was created")
}

func TestTaskCreateWithoutMaxTurnsUsesDefault(t *testing.T) {
	coordinator := &scriptedCoordinator{script: []string{
		`<task_create>
agent_type: explorer
title: unbudgeted
description: relies on the configured default budget
</task_create>`,
		`<finish>
message: created without a budget
</finish>`,
	}}
	f := newFixture(t, coordinator, nil, func(o *Options) {
		o.DefaultTaskMaxTurns = 7
	})

	result, err := f.loop.Run(context.Background(), "objective")
	require.NoError(t, err)
	assert.Equal(t, SessionFinished, result.Status)

	tasks := f.manager.List()
	require.Len(t, tasks, 1)
	assert.Equal(t, 7, tasks[0].MaxTurns)
}
