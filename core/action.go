package core

// Verb identifies an action kind on the wire. The protocol codec maps each
// verb to a tagged block; the capability table maps agent types to the verb
// subsets they may issue.
type Verb string

const (
	// Orchestration verbs, issued by the coordinator only.

	// VerbTaskCreate registers a new task record.
	VerbTaskCreate Verb = "task_create"
	// VerbLaunchParallel fans out previously created tasks as one batch.
	VerbLaunchParallel Verb = "launch_parallel"
	// VerbAddContext appends a coordinator-synthesized context entry.
	VerbAddContext Verb = "add_context"
	// VerbFinish declares the session objective satisfied.
	VerbFinish Verb = "finish"

	// Worker terminal verb.

	// VerbReport is the worker's terminal action carrying produced contexts.
	VerbReport Verb = "report"

	// Environment verbs, delegated to the execution backend.

	// VerbRead reads a file.
	VerbRead Verb = "read"
	// VerbWrite creates or overwrites a file. Mutating.
	VerbWrite Verb = "write"
	// VerbEdit replaces a string within a file. Mutating.
	VerbEdit Verb = "edit"
	// VerbMultiEdit applies several edits to one file. Mutating.
	VerbMultiEdit Verb = "multi_edit"
	// VerbGrep searches file contents by pattern.
	VerbGrep Verb = "grep"
	// VerbGlob matches file paths by pattern.
	VerbGlob Verb = "glob"
	// VerbFileMetadata stats a set of paths.
	VerbFileMetadata Verb = "file_metadata"
	// VerbBash runs a shell command.
	VerbBash Verb = "bash"
	// VerbAddNote appends to the worker's private scratchpad.
	VerbAddNote Verb = "add_note"

	// VerbReasoning is the implicit no-op verb for output carrying no
	// action block at all. It has no effect but still costs a turn.
	VerbReasoning Verb = "reasoning"
)

// Action is the tagged variant consumed by the engine. Each variant carries
// its own required fields; the codec guarantees a decoded action is complete.
type Action interface {
	Verb() Verb
}

// TaskCreateAction requests registration of a new task.
type TaskCreateAction struct {
	AgentType        AgentType     `yaml:"agent_type"`
	Title            string        `yaml:"title"`
	Description      string        `yaml:"description"`
	MaxTurns         int           `yaml:"max_turns"`
	ContextRefs      []string      `yaml:"context_refs,omitempty"`
	ContextBootstrap []ResourceRef `yaml:"context_bootstrap,omitempty"`
}

// Verb implements Action.
func (TaskCreateAction) Verb() Verb { return VerbTaskCreate }

// LaunchParallelAction fans out the named tasks concurrently. Declaration
// order of TaskIDs fixes the deterministic merge order after the join.
type LaunchParallelAction struct {
	TaskIDs []string `yaml:"task_ids"`
}

// Verb implements Action.
func (LaunchParallelAction) Verb() Verb { return VerbLaunchParallel }

// AddContextAction stores a coordinator-synthesized context entry.
type AddContextAction struct {
	ID      string `yaml:"id"`
	Content string `yaml:"content"`
}

// Verb implements Action.
func (AddContextAction) Verb() Verb { return VerbAddContext }

// FinishAction terminates the session with an explicit completion message.
type FinishAction struct {
	Message string `yaml:"message"`
}

// Verb implements Action.
func (FinishAction) Verb() Verb { return VerbFinish }

// ContextItem is one (id, content) pair of a worker report. Order within a
// report is significant: later items supersede earlier ones on id collision.
type ContextItem struct {
	ID      string `yaml:"id"`
	Content string `yaml:"content"`
}

// ReportAction is the worker's terminal action.
type ReportAction struct {
	Contexts []ContextItem `yaml:"contexts"`
	Comments string        `yaml:"comments"`
}

// Verb implements Action.
func (ReportAction) Verb() Verb { return VerbReport }

// ReadAction reads a file, optionally a line window.
type ReadAction struct {
	FilePath string `yaml:"file_path"`
	Offset   int    `yaml:"offset,omitempty"`
	Limit    int    `yaml:"limit,omitempty"`
}

// Verb implements Action.
func (ReadAction) Verb() Verb { return VerbRead }

// WriteAction creates or overwrites a file.
type WriteAction struct {
	FilePath string `yaml:"file_path"`
	Content  string `yaml:"content"`
}

// Verb implements Action.
func (WriteAction) Verb() Verb { return VerbWrite }

// EditAction replaces OldString with NewString in a file. Unless ReplaceAll
// is set, OldString must occur exactly once.
type EditAction struct {
	FilePath   string `yaml:"file_path"`
	OldString  string `yaml:"old_string"`
	NewString  string `yaml:"new_string"`
	ReplaceAll bool   `yaml:"replace_all,omitempty"`
}

// Verb implements Action.
func (EditAction) Verb() Verb { return VerbEdit }

// Edit is one replacement of a MultiEditAction.
type Edit struct {
	OldString  string `yaml:"old_string"`
	NewString  string `yaml:"new_string"`
	ReplaceAll bool   `yaml:"replace_all,omitempty"`
}

// MultiEditAction applies Edits to one file in declaration order.
type MultiEditAction struct {
	FilePath string `yaml:"file_path"`
	Edits    []Edit `yaml:"edits"`
}

// Verb implements Action.
func (MultiEditAction) Verb() Verb { return VerbMultiEdit }

// GrepAction searches file contents for a regular expression.
type GrepAction struct {
	Pattern string `yaml:"pattern"`
	Path    string `yaml:"path,omitempty"`
	Include string `yaml:"include,omitempty"`
}

// Verb implements Action.
func (GrepAction) Verb() Verb { return VerbGrep }

// GlobAction matches file paths against a glob pattern.
type GlobAction struct {
	Pattern string `yaml:"pattern"`
	Path    string `yaml:"path,omitempty"`
}

// Verb implements Action.
func (GlobAction) Verb() Verb { return VerbGlob }

// FileMetadataAction stats the given paths.
type FileMetadataAction struct {
	FilePaths []string `yaml:"file_paths"`
}

// Verb implements Action.
func (FileMetadataAction) Verb() Verb { return VerbFileMetadata }

// BashAction runs a shell command. Block defaults to true; TimeoutSecs of
// zero means the backend default applies.
type BashAction struct {
	Cmd         string `yaml:"cmd"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty"`
	Background  bool   `yaml:"background,omitempty"`
}

// Verb implements Action.
func (BashAction) Verb() Verb { return VerbBash }

// AddNoteAction appends to the worker's private scratchpad.
type AddNoteAction struct {
	Content string `yaml:"content"`
}

// Verb implements Action.
func (AddNoteAction) Verb() Verb { return VerbAddNote }

// ReasoningAction is emitted when strategy output contains no action block.
// It carries the raw text for logging; executing it has no effect.
type ReasoningAction struct {
	Text string
}

// Verb implements Action.
func (ReasoningAction) Verb() Verb { return VerbReasoning }

// Mutating reports whether the verb modifies backend state.
func (v Verb) Mutating() bool {
	switch v {
	case VerbWrite, VerbEdit, VerbMultiEdit:
		return true
	}
	return false
}

// Orchestration reports whether the verb is reserved to the coordinator.
func (v Verb) Orchestration() bool {
	switch v {
	case VerbTaskCreate, VerbLaunchParallel, VerbAddContext, VerbFinish:
		return true
	}
	return false
}

// Environment reports whether the verb is delegated to the execution backend.
func (v Verb) Environment() bool {
	switch v {
	case VerbRead, VerbWrite, VerbEdit, VerbMultiEdit, VerbGrep, VerbGlob, VerbFileMetadata, VerbBash:
		return true
	}
	return false
}
