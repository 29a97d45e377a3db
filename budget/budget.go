package budget

import (
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// Meter tracks turn consumption per task and per session. It is safe for
// concurrent use; batch siblings consume from their own task counters while
// sharing the session counter.
type Meter struct {
	mu          sync.Mutex
	tasks       map[string]*counter
	sessionMax  int // 0 means unlimited
	sessionUsed int
}

type counter struct {
	max  int
	used int
}

// NewMeter constructs a Meter. sessionMax bounds the total turns across all
// tasks in the session; zero disables the session-wide cap.
func NewMeter(sessionMax int) *Meter {
	return &Meter{tasks: make(map[string]*counter), sessionMax: sessionMax}
}

// Register opens a turn account for a task. Registering an already known
// task id is an error; budgets are fixed at task creation.
func (m *Meter) Register(taskID string, maxTurns int) error {
	if maxTurns <= 0 {
		return fmt.Errorf("budget: max turns for task %s must be positive, got %d", taskID, maxTurns)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; ok {
		return fmt.Errorf("budget: task %s already registered", taskID)
	}
	m.tasks[taskID] = &counter{max: maxTurns}
	return nil
}

// Consume charges one turn to the task (and the session) and returns the
// task's remaining turns. When either budget is already spent it returns
// core.ErrBudgetExhausted and charges nothing, so turns_used never exceeds
// max_turns.
func (m *Meter) Consume(taskID string) (remaining int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.tasks[taskID]
	if !ok {
		return 0, fmt.Errorf("budget: %w: %s", core.ErrTaskNotFound, taskID)
	}
	if c.used >= c.max {
		return 0, fmt.Errorf("budget: task %s: %w", taskID, core.ErrBudgetExhausted)
	}
	if m.sessionMax > 0 && m.sessionUsed >= m.sessionMax {
		return 0, fmt.Errorf("budget: session: %w", core.ErrBudgetExhausted)
	}

	c.used++
	m.sessionUsed++
	return c.max - c.used, nil
}

// Remaining returns the turns left for a task without consuming any.
func (m *Meter) Remaining(taskID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.tasks[taskID]
	if !ok {
		return 0, fmt.Errorf("budget: %w: %s", core.ErrTaskNotFound, taskID)
	}
	return c.max - c.used, nil
}

// Used returns the turns consumed by a task so far.
func (m *Meter) Used(taskID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.tasks[taskID]
	if !ok {
		return 0, fmt.Errorf("budget: %w: %s", core.ErrTaskNotFound, taskID)
	}
	return c.used, nil
}

// SessionUsed returns the total turns consumed across all tasks.
func (m *Meter) SessionUsed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionUsed
}
