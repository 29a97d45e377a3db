package task

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// Manager is the authoritative registry of tasks for a session. All state
// transitions are funneled through it so that terminal statuses stay
// immutable and turn counts stay consistent with the budget meter.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*core.Task
	order []string // creation order, for deterministic listings
}

// NewManager constructs an empty task manager.
func NewManager() *Manager {
	return &Manager{tasks: make(map[string]*core.Task)}
}

// Create validates spec, assigns an id, and registers the task as pending.
func (m *Manager) Create(spec core.TaskSpec) (*core.Task, error) {
	if spec.Title == "" {
		return nil, fmt.Errorf("task: title is required")
	}
	if spec.Description == "" {
		return nil, fmt.Errorf("task: description is required")
	}
	if !spec.AgentType.Valid() {
		return nil, fmt.Errorf("task: unknown agent type %q", spec.AgentType)
	}
	if spec.MaxTurns <= 0 {
		return nil, fmt.Errorf("task: max turns must be positive, got %d", spec.MaxTurns)
	}

	t := &core.Task{
		ID:               core.NewID(),
		Title:            spec.Title,
		Description:      spec.Description,
		AgentType:        spec.AgentType,
		MaxTurns:         spec.MaxTurns,
		Status:           core.StatusPending,
		ContextRefs:      append([]string(nil), spec.ContextRefs...),
		ContextBootstrap: append([]core.ResourceRef(nil), spec.ContextBootstrap...),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	m.order = append(m.order, t.ID)
	return t.Clone(), nil
}

// Dispatch moves a pending task to dispatched, optionally tagging it with
// the batch it was launched in.
func (m *Manager) Dispatch(taskID, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.locked(taskID)
	if err != nil {
		return err
	}
	if err := m.checkTransition(t, core.StatusDispatched); err != nil {
		return err
	}
	if t.Status != core.StatusPending {
		return fmt.Errorf("task: %s: cannot dispatch from %s", taskID, t.Status)
	}
	t.Status = core.StatusDispatched
	t.BatchID = batchID
	return nil
}

// MarkRunning moves a dispatched task to running.
func (m *Manager) MarkRunning(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.locked(taskID)
	if err != nil {
		return err
	}
	if err := m.checkTransition(t, core.StatusRunning); err != nil {
		return err
	}
	if t.Status != core.StatusDispatched {
		return fmt.Errorf("task: %s: cannot start from %s", taskID, t.Status)
	}
	t.Status = core.StatusRunning
	return nil
}

// RecordTurn reflects one consumed turn onto the task record. The budget
// meter is the enforcer; this keeps the task's TurnsUsed in step with it.
func (m *Manager) RecordTurn(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.locked(taskID)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return fmt.Errorf("task: %s: %w", taskID, core.ErrTerminalState)
	}
	if t.TurnsUsed >= t.MaxTurns {
		return fmt.Errorf("task: %s: %w", taskID, core.ErrBudgetExhausted)
	}
	t.TurnsUsed++
	return nil
}

// Finalize applies a terminal report to the task. ResultContextIDs are
// recorded only for completed tasks; for every other terminal status the
// report's comments land in the diagnostic field. Finalizing an already
// terminal task is rejected with core.ErrTerminalState.
func (m *Manager) Finalize(report *core.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.locked(report.TaskID)
	if err != nil {
		return err
	}
	status := report.Terminal()
	if err := m.checkTransition(t, status); err != nil {
		return err
	}

	t.Status = status
	t.TurnsUsed = report.TurnsUsed
	if status == core.StatusCompleted {
		t.ResultContextIDs = report.ContextIDs()
	} else {
		t.Diagnostic = report.Comments
	}
	return nil
}

// Cancel marks a non-terminal task cancelled with the given diagnostic.
func (m *Manager) Cancel(taskID, diagnostic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.locked(taskID)
	if err != nil {
		return err
	}
	if err := m.checkTransition(t, core.StatusCancelled); err != nil {
		return err
	}
	t.Status = core.StatusCancelled
	t.Diagnostic = diagnostic
	return nil
}

// Get returns a deep copy of the task, or core.ErrTaskNotFound.
func (m *Manager) Get(taskID string) (*core.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, err := m.locked(taskID)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// List returns copies of all tasks in creation order.
func (m *Manager) List() []*core.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*core.Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id].Clone())
	}
	return out
}

// ListByStatus returns copies of all tasks with the given status, in
// creation order.
func (m *Manager) ListByStatus(status core.Status) []*core.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.Task
	for _, id := range m.order {
		if t := m.tasks[id]; t.Status == status {
			out = append(out, t.Clone())
		}
	}
	return out
}

// ListByBatch returns copies of all tasks launched in the given batch,
// sorted by id for deterministic inspection.
func (m *Manager) ListByBatch(batchID string) []*core.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.Task
	for _, t := range m.tasks {
		if t.BatchID == batchID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// locked looks up a task; callers must hold the mutex.
func (m *Manager) locked(taskID string) (*core.Task, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task: %w: %s", core.ErrTaskNotFound, taskID)
	}
	return t, nil
}

// checkTransition rejects any transition out of a terminal status.
func (m *Manager) checkTransition(t *core.Task, _ core.Status) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("task: %s is %s: %w", t.ID, t.Status, core.ErrTerminalState)
	}
	return nil
}
