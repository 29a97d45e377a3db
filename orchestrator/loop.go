package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/taskmesh/batch"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/policy"
	"github.com/hupe1980/taskmesh/protocol"
	"github.com/hupe1980/taskmesh/task"
)

// DefaultMaxTurns bounds coordinator turns per session unless configured.
const DefaultMaxTurns = 50

// DefaultTaskMaxTurns is the worker turn budget applied when a task_create
// omits max_turns.
const DefaultTaskMaxTurns = 20

// SessionStatus is the terminal state of a session.
type SessionStatus string

const (
	// SessionFinished means the coordinator declared the objective met.
	SessionFinished SessionStatus = "finished"
	// SessionAborted means the budget, the deadline, or repeated errors
	// ended the session before a finish was declared.
	SessionAborted SessionStatus = "aborted"
)

// SessionResult summarizes a session. Work completed before an abort is
// preserved: completed tasks and their contexts remain in the store.
type SessionResult struct {
	Status         SessionStatus
	Message        string
	TurnsUsed      int
	CompletedTasks []string
	FailedTasks    []string
	ContextIDs     []string
}

// PartialSuccess reports whether an aborted session still completed work.
func (r *SessionResult) PartialSuccess() bool {
	return r.Status == SessionAborted && len(r.CompletedTasks) > 0
}

// Options configures a Loop.
type Options struct {
	// MaxTurns bounds the coordinator's own turns.
	MaxTurns int
	// MaxConsecutiveFailures bounds back-to-back coordinator protocol
	// errors before the session aborts.
	MaxConsecutiveFailures int
	// DefaultTaskMaxTurns is the worker turn budget used when a
	// task_create omits max_turns.
	DefaultTaskMaxTurns int
	// Policy is the capability table the coordinator is checked against.
	Policy *policy.Table
	// Logger receives session-level diagnostics.
	Logger logging.Logger
}

// Loop is the session control loop.
type Loop struct {
	strategy core.Strategy
	store    core.ContextStore
	manager  *task.Manager
	runner   *batch.Runner
	backend  core.Backend
	opts     Options
}

// New creates a Loop. The strategy is the coordinator's planner; the runner
// executes every launch, a single task being a batch of one.
func New(strategy core.Strategy, store core.ContextStore, manager *task.Manager, runner *batch.Runner, backend core.Backend, optFns ...func(o *Options)) *Loop {
	opts := Options{
		MaxTurns:               DefaultMaxTurns,
		MaxConsecutiveFailures: 3,
		DefaultTaskMaxTurns:    DefaultTaskMaxTurns,
		Policy:                 policy.Default(),
		Logger:                 logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Loop{strategy: strategy, store: store, manager: manager, runner: runner, backend: backend, opts: opts}
}

// Run drives the session until the coordinator finishes, the turn budget
// runs out, or ctx expires. The returned result is never nil on a nil error.
func (l *Loop) Run(ctx context.Context, objective string) (*SessionResult, error) {
	sessionID := core.NewID()
	logger := l.opts.Logger

	state := &core.TurnState{
		Task: core.Task{
			ID:        sessionID,
			Title:     "session coordinator",
			AgentType: core.AgentTypeOrchestrator,
			MaxTurns:  l.opts.MaxTurns,
		},
		Objective: objective,
	}

	turnsUsed := 0
	consecutiveFailures := 0

	for {
		if ctx.Err() != nil {
			logger.Warn("session deadline expired", "session_id", sessionID)
			return l.result(SessionAborted, "session deadline expired", turnsUsed), nil
		}
		if turnsUsed >= l.opts.MaxTurns {
			logger.Warn("session turn budget exhausted", "session_id", sessionID)
			return l.result(SessionAborted, "session turn budget exhausted", turnsUsed), nil
		}
		if consecutiveFailures >= l.opts.MaxConsecutiveFailures {
			logger.Warn("session aborted after repeated coordinator errors", "session_id", sessionID)
			return l.result(SessionAborted, "coordinator made no progress", turnsUsed), nil
		}

		state.Turn = turnsUsed + 1
		state.Remaining = l.opts.MaxTurns - turnsUsed
		state.Contexts = l.latestContexts()

		raw, err := l.strategy.Next(ctx, state)
		if err != nil {
			if ctx.Err() != nil {
				return l.result(SessionAborted, "session deadline expired", turnsUsed), nil
			}
			return l.result(SessionAborted, fmt.Sprintf("coordinator strategy failed: %v", err), turnsUsed), nil
		}

		action, decodeErr := protocol.Decode(raw)
		if decodeErr != nil {
			turnsUsed++
			consecutiveFailures++
			state.Observations = append(state.Observations, core.Observation{
				Source:  "protocol",
				Content: decodeErr.Error(),
				IsError: true,
			})
			continue
		}

		verb := action.Verb()
		if err := l.opts.Policy.Check(core.AgentTypeOrchestrator, verb); err != nil {
			consecutiveFailures++
			state.Observations = append(state.Observations, core.Observation{
				Source:  "capability",
				Content: l.opts.Policy.BlockedMessage(core.AgentTypeOrchestrator, verb),
				IsError: true,
			})
			continue
		}

		turnsUsed++
		start := time.Now()

		switch a := action.(type) {
		case core.FinishAction:
			logger.Info("session finished", "session_id", sessionID, "turns_used", turnsUsed)
			return l.result(SessionFinished, a.Message, turnsUsed), nil

		case core.TaskCreateAction:
			consecutiveFailures = 0
			maxTurns := a.MaxTurns
			if maxTurns == 0 {
				maxTurns = l.opts.DefaultTaskMaxTurns
			}
			created, err := l.manager.Create(core.TaskSpec{
				Title:            a.Title,
				Description:      a.Description,
				AgentType:        a.AgentType,
				MaxTurns:         maxTurns,
				ContextRefs:      a.ContextRefs,
				ContextBootstrap: a.ContextBootstrap,
			})
			obs := core.Observation{Source: string(verb)}
			if err != nil {
				obs.Content = err.Error()
				obs.IsError = true
			} else {
				obs.Content = fmt.Sprintf("created task %s (%s, max %d turns)", created.ID, created.AgentType, created.MaxTurns)
			}
			state.Observations = append(state.Observations, obs)

		case core.LaunchParallelAction:
			consecutiveFailures = 0
			result, err := l.runner.Launch(ctx, a.TaskIDs)
			obs := core.Observation{Source: string(verb)}
			if err != nil {
				obs.Content = err.Error()
				obs.IsError = true
			} else {
				obs.Content = summarizeBatch(result)
			}
			state.Observations = append(state.Observations, obs)
			logger.Info("batch turn finished", "session_id", sessionID, "turn", state.Turn, "duration", time.Since(start), "failed", err != nil)

		case core.AddContextAction:
			consecutiveFailures = 0
			_, err := l.store.Put(a.ID, a.Content, sessionID)
			obs := core.Observation{Source: string(verb)}
			if err != nil {
				obs.Content = err.Error()
				obs.IsError = true
			} else {
				obs.Content = fmt.Sprintf("stored context %q", a.ID)
			}
			state.Observations = append(state.Observations, obs)

		case core.ReasoningAction:
			consecutiveFailures++
			state.Observations = append(state.Observations, core.Observation{
				Source:  "control",
				Content: "No action block detected in your output. Emit exactly one tagged action.",
				IsError: true,
			})

		case core.AddNoteAction:
			consecutiveFailures = 0
			state.Observations = append(state.Observations, core.Observation{
				Source:  "note",
				Content: a.Content,
			})

		default:
			consecutiveFailures = 0
			output, execErr := l.backend.Execute(ctx, action)
			obs := core.Observation{Source: string(verb), Content: output}
			if execErr != nil {
				obs.Content = execErr.Error()
				obs.IsError = true
			}
			state.Observations = append(state.Observations, obs)
			logger.Debug("environment turn finished", "session_id", sessionID, "turn", state.Turn, "verb", verb, "duration", time.Since(start))
		}
	}
}

// latestContexts gives the coordinator the current store contents.
func (l *Loop) latestContexts() []core.ContextEntry {
	snap := l.store.Snapshot()
	entries := make([]core.ContextEntry, 0, snap.Len())
	for _, id := range snap.IDs() {
		if e, ok := snap.Get(id); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func (l *Loop) result(status SessionStatus, message string, turnsUsed int) *SessionResult {
	r := &SessionResult{
		Status:     status,
		Message:    message,
		TurnsUsed:  turnsUsed,
		ContextIDs: l.store.Snapshot().IDs(),
	}
	for _, t := range l.manager.List() {
		switch t.Status {
		case core.StatusCompleted:
			r.CompletedTasks = append(r.CompletedTasks, t.ID)
		case core.StatusFailed, core.StatusTimedOut, core.StatusCancelled:
			r.FailedTasks = append(r.FailedTasks, t.ID)
		}
	}
	return r
}

func summarizeBatch(result *batch.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "batch %s finished with %d task(s):\n", result.BatchID, len(result.Reports))
	for _, report := range result.Reports {
		fmt.Fprintf(&b, "- task %s: %s (%d turns)", report.TaskID, report.Terminal(), report.TurnsUsed)
		if len(report.Contexts) > 0 {
			fmt.Fprintf(&b, ", contexts: %s", strings.Join(report.ContextIDs(), ", "))
		}
		if report.Comments != "" {
			fmt.Fprintf(&b, ": %s", report.Comments)
		}
		b.WriteString("\n")
	}
	return b.String()
}
