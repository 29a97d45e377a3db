package core

// Status tracks a task through its lifecycle. Terminal statuses are
// immutable: once reached, any further transition attempt is rejected
// with ErrTerminalState.
type Status string

const (
	// StatusPending is the initial status after creation.
	StatusPending Status = "pending"
	// StatusDispatched means the task has been handed to a dispatcher.
	StatusDispatched Status = "dispatched"
	// StatusRunning means the dispatcher is executing turns.
	StatusRunning Status = "running"
	// StatusCompleted is terminal: the worker reported successfully.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal: protocol/validation failure or strategy error.
	StatusFailed Status = "failed"
	// StatusTimedOut is terminal: the turn budget was exhausted.
	StatusTimedOut Status = "timed_out"
	// StatusCancelled is terminal: the task was cancelled cooperatively.
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status is one of the four terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCancelled:
		return true
	}
	return false
}

// AgentType is an enumerated capability profile fixed at task creation.
// The names follow the conventional coding-agent roles; the capability
// table in the policy package decides which verbs each profile may issue.
type AgentType string

const (
	// AgentTypeExplorer is a read-only investigator.
	AgentTypeExplorer AgentType = "explorer"
	// AgentTypeReviewer is a read-only code reviewer.
	AgentTypeReviewer AgentType = "reviewer"
	// AgentTypeCoder is a write-capable implementer.
	AgentTypeCoder AgentType = "coder"
	// AgentTypeTestWriter is a write-capable test author.
	AgentTypeTestWriter AgentType = "test_writer"
	// AgentTypeOrchestrator is the coordinator pseudo-profile. It is never
	// assigned to a task; the control loop uses it when checking its own
	// actions against the capability table.
	AgentTypeOrchestrator AgentType = "orchestrator"
)

// Valid reports whether t names a known worker profile.
func (t AgentType) Valid() bool {
	switch t {
	case AgentTypeExplorer, AgentTypeReviewer, AgentTypeCoder, AgentTypeTestWriter:
		return true
	}
	return false
}

// WriteCapable reports whether the profile may issue mutating verbs.
func (t AgentType) WriteCapable() bool {
	return t == AgentTypeCoder || t == AgentTypeTestWriter || t == AgentTypeOrchestrator
}

// ResourceRef names a file or directory a task should be bootstrapped with,
// plus the reason it is relevant. Paths ending in "/" are listed rather
// than read.
type ResourceRef struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

// TaskSpec is the caller-supplied portion of a task record.
type TaskSpec struct {
	Title            string
	Description      string
	AgentType        AgentType
	MaxTurns         int
	ContextRefs      []string
	ContextBootstrap []ResourceRef
}

// Task is a bounded unit of work owned by the task manager for its entire
// lifecycle. TurnsUsed never exceeds MaxTurns, and ResultContextIDs is only
// populated once the task reaches StatusCompleted.
type Task struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	AgentType        AgentType     `json:"agent_type"`
	MaxTurns         int           `json:"max_turns"`
	TurnsUsed        int           `json:"turns_used"`
	Status           Status        `json:"status"`
	ContextRefs      []string      `json:"context_refs,omitempty"`
	ContextBootstrap []ResourceRef `json:"context_bootstrap,omitempty"`
	BatchID          string        `json:"batch_id,omitempty"`
	ResultContextIDs []string      `json:"result_context_ids,omitempty"`
	Diagnostic       string        `json:"diagnostic,omitempty"`
}

// Clone returns a deep copy safe for independent mutation.
func (t *Task) Clone() *Task {
	clone := *t
	clone.ContextRefs = append([]string(nil), t.ContextRefs...)
	clone.ContextBootstrap = append([]ResourceRef(nil), t.ContextBootstrap...)
	clone.ResultContextIDs = append([]string(nil), t.ResultContextIDs...)
	return &clone
}
