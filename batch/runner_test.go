package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/budget"
	"github.com/hupe1980/taskmesh/contextstore"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/protocol"
	"github.com/hupe1980/taskmesh/subagent"
	"github.com/hupe1980/taskmesh/task"
)

type harness struct {
	store   *contextstore.InMemoryStore
	manager *task.Manager
	meter   *budget.Meter
	runner  *Runner
}

// scripts maps task title to the wire outputs its strategy replays.
func newHarness(t *testing.T, scripts map[string][]string, optFns ...func(o *Options)) *harness {
	t.Helper()

	var mu sync.Mutex
	remaining := make(map[string][]string, len(scripts))
	for title, s := range scripts {
		remaining[title] = append([]string(nil), s...)
	}

	strat := core.StrategyFunc(func(_ context.Context, state *core.TurnState) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		s := remaining[state.Task.Title]
		if len(s) == 0 {
			return "out of script", nil
		}
		out := s[0]
		remaining[state.Task.Title] = s[1:]
		return out, nil
	})

	store := contextstore.NewInMemoryStore()
	manager := task.NewManager()
	meter := budget.NewMeter(0)
	backend := core.BackendFunc(func(context.Context, core.Action) (string, error) {
		return "ok", nil
	})
	dispatcher := subagent.New(func(core.AgentType) core.Strategy { return strat }, backend, meter)

	return &harness{
		store:   store,
		manager: manager,
		meter:   meter,
		runner:  NewRunner(store, manager, dispatcher, meter, optFns...),
	}
}

func (h *harness) createTask(t *testing.T, title string, refs ...string) string {
	t.Helper()
	created, err := h.manager.Create(core.TaskSpec{
		Title:       title,
		Description: "scripted worker for " + title,
		AgentType:   core.AgentTypeExplorer,
		MaxTurns:    5,
		ContextRefs: refs,
	})
	require.NoError(t, err)
	return created.ID
}

func reportWith(t *testing.T, items ...core.ContextItem) string {
	t.Helper()
	out, err := protocol.Encode(core.ReportAction{Contexts: items, Comments: "done"})
	require.NoError(t, err)
	return out
}

func TestSingleTaskIsBatchOfOne(t *testing.T) {
	h := newHarness(t, map[string][]string{
		"solo": {reportWith(t, core.ContextItem{ID: "solo-out", Content: "result"})},
	})
	id := h.createTask(t, "solo")

	result, err := h.runner.Launch(context.Background(), []string{id})
	require.NoError(t, err)
	assert.Equal(t, []string{"solo-out"}, result.MergedContextIDs)

	got, err := h.manager.Get(id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Equal(t, []string{"solo-out"}, got.ResultContextIDs)
	assert.Equal(t, got.BatchID, result.BatchID)

	entry, err := h.store.Get("solo-out")
	require.NoError(t, err)
	assert.Equal(t, id, entry.ProducerTaskID)
}

func TestLaunchValidatesBeforeDispatch(t *testing.T) {
	h := newHarness(t, nil)
	id := h.createTask(t, "needs-context", "nonexistent-ref")

	_, err := h.runner.Launch(context.Background(), []string{id})
	var missing *core.MissingContextError
	require.ErrorAs(t, err, &missing)

	got, err := h.manager.Get(id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, got.Status, "nothing was dispatched")

	_, err = h.runner.Launch(context.Background(), []string{"ghost"})
	assert.ErrorIs(t, err, core.ErrTaskNotFound)

	_, err = h.runner.Launch(context.Background(), nil)
	assert.Error(t, err)
}

func TestConcurrencyCap(t *testing.T) {
	var running, peak int64
	gate := core.StrategyFunc(func(_ context.Context, state *core.TurnState) (string, error) {
		cur := atomic.AddInt64(&running, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&running, -1)
		return reportWith(t, core.ContextItem{ID: state.Task.Title, Content: "done"}), nil
	})

	store := contextstore.NewInMemoryStore()
	manager := task.NewManager()
	meter := budget.NewMeter(0)
	backend := core.BackendFunc(func(context.Context, core.Action) (string, error) { return "ok", nil })
	dispatcher := subagent.New(func(core.AgentType) core.Strategy { return gate }, backend, meter)
	runner := NewRunner(store, manager, dispatcher, meter, func(o *Options) {
		o.MaxConcurrency = 2
	})

	var ids []string
	for _, title := range []string{"w1", "w2", "w3", "w4", "w5"} {
		created, err := manager.Create(core.TaskSpec{
			Title:       title,
			Description: "concurrent worker",
			AgentType:   core.AgentTypeExplorer,
			MaxTurns:    3,
		})
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}

	result, err := runner.Launch(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, result.Reports, 5)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2), "no more than the cap may run at once")
}

func TestSnapshotIsolationAcrossSiblings(t *testing.T) {
	// Both siblings resolve their refs against the snapshot taken at launch;
	// the first sibling's output only lands in the store after the join.
	h := newHarness(t, map[string][]string{
		"producer": {reportWith(t, core.ContextItem{ID: "fresh", Content: "hot off the press"})},
		"prober":   {reportWith(t, core.ContextItem{ID: "probe-out", Content: "saw snapshot only"})},
	})
	_, err := h.store.Put("pre-existing", "from before the batch", "setup")
	require.NoError(t, err)

	producer := h.createTask(t, "producer")
	prober := h.createTask(t, "prober", "pre-existing")

	result, err := h.runner.Launch(context.Background(), []string{producer, prober})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh", "probe-out"}, result.MergedContextIDs)

	// After the join both outputs are visible.
	_, err = h.store.Get("fresh")
	require.NoError(t, err)
	_, err = h.store.Get("probe-out")
	require.NoError(t, err)
}

func TestCrossBatchRefsResolveAgainstPriorResults(t *testing.T) {
	h := newHarness(t, map[string][]string{
		"first":  {reportWith(t, core.ContextItem{ID: "survey", Content: "initial survey"})},
		"second": {reportWith(t, core.ContextItem{ID: "followup", Content: "built on the survey"})},
	})

	first := h.createTask(t, "first")
	_, err := h.runner.Launch(context.Background(), []string{first})
	require.NoError(t, err)

	// The second batch may reference the first batch's output.
	second := h.createTask(t, "second", "survey")
	result, err := h.runner.Launch(context.Background(), []string{second})
	require.NoError(t, err)
	assert.Equal(t, []string{"followup"}, result.MergedContextIDs)
}

func TestDeterministicMergeOrder(t *testing.T) {
	// Both siblings publish the same id; the later-declared sibling wins
	// regardless of which goroutine finishes first.
	h := newHarness(t, map[string][]string{
		"early": {reportWith(t, core.ContextItem{ID: "verdict", Content: "early version"})},
		"late":  {reportWith(t, core.ContextItem{ID: "verdict", Content: "late version"})},
	})
	early := h.createTask(t, "early")
	late := h.createTask(t, "late")

	result, err := h.runner.Launch(context.Background(), []string{early, late})
	require.NoError(t, err)
	assert.Equal(t, []string{"verdict", "verdict"}, result.MergedContextIDs)

	entry, err := h.store.Get("verdict")
	require.NoError(t, err)
	assert.Equal(t, "late version", entry.Content)
	assert.Equal(t, 2, entry.Version, "the early version is kept as history")

	hist, err := h.store.History("verdict")
	require.NoError(t, err)
	assert.Equal(t, "early version", hist[0].Content)
}

func TestSiblingFailureDoesNotCancelOthers(t *testing.T) {
	h := newHarness(t, map[string][]string{
		// Three hopeless turns force a failed report.
		"broken": {"<garbage>", "<garbage>", "<garbage>"},
		"solid":  {reportWith(t, core.ContextItem{ID: "solid-out", Content: "fine"})},
	})
	broken := h.createTask(t, "broken")
	solid := h.createTask(t, "solid")

	result, err := h.runner.Launch(context.Background(), []string{broken, solid})
	require.NoError(t, err)

	gotBroken, err := h.manager.Get(broken)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, gotBroken.Status)
	assert.Empty(t, gotBroken.ResultContextIDs)

	gotSolid, err := h.manager.Get(solid)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, gotSolid.Status)

	assert.Equal(t, []string{"solid-out"}, result.MergedContextIDs, "failed siblings publish nothing")
}

func TestTimedOutReportStillMerges(t *testing.T) {
	// One action per turn with a 1-turn budget: the forced report's contexts
	// survive even though the task times out.
	read, err := protocol.Encode(core.ReadAction{FilePath: "x.go"})
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	strat := core.StrategyFunc(func(_ context.Context, state *core.TurnState) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if state.ForceReport {
			return reportWith(t, core.ContextItem{ID: "partial", Content: "what I got"}), nil
		}
		return read, nil
	})

	store := contextstore.NewInMemoryStore()
	manager := task.NewManager()
	meter := budget.NewMeter(0)
	backend := core.BackendFunc(func(context.Context, core.Action) (string, error) { return "ok", nil })
	dispatcher := subagent.New(func(core.AgentType) core.Strategy { return strat }, backend, meter)
	runner := NewRunner(store, manager, dispatcher, meter)

	created, err := manager.Create(core.TaskSpec{
		Title:       "slow",
		Description: "runs out of turns",
		AgentType:   core.AgentTypeExplorer,
		MaxTurns:    1,
	})
	require.NoError(t, err)

	result, err := runner.Launch(context.Background(), []string{created.ID})
	require.NoError(t, err)

	got, err := manager.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusTimedOut, got.Status)
	assert.Equal(t, []string{"partial"}, result.MergedContextIDs)

	entry, err := store.Get("partial")
	require.NoError(t, err)
	assert.Equal(t, "what I got", entry.Content)
}

func TestRelaunchingTerminalTaskRejected(t *testing.T) {
	h := newHarness(t, map[string][]string{
		"once": {reportWith(t, core.ContextItem{ID: "once-out", Content: "done"})},
	})
	id := h.createTask(t, "once")

	_, err := h.runner.Launch(context.Background(), []string{id})
	require.NoError(t, err)

	_, err = h.runner.Launch(context.Background(), []string{id})
	assert.Error(t, err)
}

func TestReaderRefCollidingWithSiblingWriteSeesSnapshot(t *testing.T) {
	// The reader's ref shares an id with what its sibling publishes; the
	// reader must observe the pre-batch value, and the writer's value becomes
	// the latest version only after the join.
	strat := core.StrategyFunc(func(_ context.Context, state *core.TurnState) (string, error) {
		if state.Task.Title == "writer" {
			return reportWith(t, core.ContextItem{ID: "x", Content: "rewritten"}), nil
		}
		return reportWith(t, core.ContextItem{ID: "reader-saw", Content: state.Contexts[0].Content}), nil
	})

	store := contextstore.NewInMemoryStore()
	manager := task.NewManager()
	meter := budget.NewMeter(0)
	backend := core.BackendFunc(func(context.Context, core.Action) (string, error) { return "ok", nil })
	dispatcher := subagent.New(func(core.AgentType) core.Strategy { return strat }, backend, meter)
	runner := NewRunner(store, manager, dispatcher, meter)

	_, err := store.Put("x", "original", "setup")
	require.NoError(t, err)

	writer, err := manager.Create(core.TaskSpec{
		Title:       "writer",
		Description: "publishes a new version of x",
		AgentType:   core.AgentTypeExplorer,
		MaxTurns:    3,
	})
	require.NoError(t, err)
	reader, err := manager.Create(core.TaskSpec{
		Title:       "reader",
		Description: "echoes what it sees in x",
		AgentType:   core.AgentTypeExplorer,
		MaxTurns:    3,
		ContextRefs: []string{"x"},
	})
	require.NoError(t, err)

	_, err = runner.Launch(context.Background(), []string{writer.ID, reader.ID})
	require.NoError(t, err)

	saw, err := store.Get("reader-saw")
	require.NoError(t, err)
	assert.Equal(t, "original", saw.Content, "refs resolve against the launch snapshot")

	latest, err := store.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "rewritten", latest.Content)
	assert.Equal(t, 2, latest.Version)
}
