// Package taskmesh provides a high-level façade over the task orchestration
// engine: a coordinator plans work, bounded workers execute it in parallel
// batches, and results accumulate in a shared versioned context store. Most
// applications interact with this package by:
//  1. Creating a TaskMesh via New() with a strategy provider (optionally
//     overriding the in-memory store, the backend or the capability table)
//  2. Running a session against an objective with RunSession
//  3. Inspecting the SessionResult, the task records and the context store
//
// The façade delegates control to orchestrator.Loop while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable context store
// and a structured logger.
package taskmesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/taskmesh/batch"
	"github.com/hupe1980/taskmesh/budget"
	"github.com/hupe1980/taskmesh/contextstore"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/orchestrator"
	"github.com/hupe1980/taskmesh/policy"
	"github.com/hupe1980/taskmesh/subagent"
	"github.com/hupe1980/taskmesh/task"
)

// Options configures the TaskMesh instance.
type Options struct {
	// Store holds the session's contexts (defaults to in-memory).
	Store core.ContextStore

	// Backend executes environment verbs (defaults to a no-op that rejects
	// every verb; supply backend.NewLocal for real filesystem access).
	Backend core.Backend

	// Policy is the capability table (defaults to policy.Default()).
	Policy *policy.Table

	// SessionMaxTurns bounds coordinator turns per session.
	SessionMaxTurns int

	// DefaultTaskMaxTurns is the worker turn budget applied when a
	// task_create omits max_turns.
	DefaultTaskMaxTurns int

	// SessionTurnCap bounds total worker turns across the session.
	// Zero disables the cap.
	SessionTurnCap int

	// BatchMaxConcurrency caps simultaneously running batch siblings.
	BatchMaxConcurrency int

	// MaxConsecutiveFailures bounds back-to-back unproductive turns before
	// a worker or the coordinator is forced to stop.
	MaxConsecutiveFailures int

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// TaskMesh is the high-level façade aggregating the engine's parts.
type TaskMesh struct {
	opts    Options
	store   core.ContextStore
	manager *task.Manager
	loop    *orchestrator.Loop
}

// New creates a TaskMesh. The provider selects the strategy per agent type;
// the coordinator uses the strategy it returns for the orchestrator profile.
func New(provider core.StrategyProvider, optFns ...func(o *Options)) *TaskMesh {
	opts := Options{
		Store:                  contextstore.NewInMemoryStore(),
		Backend:                rejectingBackend{},
		Policy:                 policy.Default(),
		SessionMaxTurns:        orchestrator.DefaultMaxTurns,
		DefaultTaskMaxTurns:    orchestrator.DefaultTaskMaxTurns,
		BatchMaxConcurrency:    batch.DefaultMaxConcurrency,
		MaxConsecutiveFailures: 3,
		Logger:                 logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	manager := task.NewManager()
	meter := budget.NewMeter(opts.SessionTurnCap)

	dispatcher := subagent.New(provider, opts.Backend, meter, func(o *subagent.Options) {
		o.Policy = opts.Policy
		o.Logger = opts.Logger
		o.MaxConsecutiveFailures = opts.MaxConsecutiveFailures
	})
	runner := batch.NewRunner(opts.Store, manager, dispatcher, meter, func(o *batch.Options) {
		o.MaxConcurrency = opts.BatchMaxConcurrency
		o.Logger = opts.Logger
	})
	loop := orchestrator.New(provider(core.AgentTypeOrchestrator), opts.Store, manager, runner, opts.Backend, func(o *orchestrator.Options) {
		o.MaxTurns = opts.SessionMaxTurns
		o.MaxConsecutiveFailures = opts.MaxConsecutiveFailures
		o.DefaultTaskMaxTurns = opts.DefaultTaskMaxTurns
		o.Policy = opts.Policy
		o.Logger = opts.Logger
	})

	return &TaskMesh{opts: opts, store: opts.Store, manager: manager, loop: loop}
}

// RunSession drives a full session against the objective and returns its
// terminal result. Work completed before an abort survives in the store.
func (m *TaskMesh) RunSession(ctx context.Context, objective string) (*orchestrator.SessionResult, error) {
	return m.loop.Run(ctx, objective)
}

// Store returns the session context store.
func (m *TaskMesh) Store() core.ContextStore { return m.store }

// Tasks returns the task manager for inspection.
func (m *TaskMesh) Tasks() *task.Manager { return m.manager }

// rejectingBackend refuses every environment verb. It is the default so a
// TaskMesh without an explicit backend cannot touch the host.
type rejectingBackend struct{}

func (rejectingBackend) Execute(_ context.Context, action core.Action) (string, error) {
	return "", &core.BackendError{
		Kind: core.BackendPermissionDenied,
		Op:   string(action.Verb()),
		Err:  fmt.Errorf("no backend configured"),
	}
}
