package subagent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/taskmesh/budget"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/policy"
	"github.com/hupe1980/taskmesh/protocol"
)

// Options configures a Dispatcher.
type Options struct {
	// Policy is the capability table enforced per turn.
	Policy *policy.Table
	// Logger receives turn-level diagnostics.
	Logger logging.Logger
	// MaxConsecutiveFailures bounds back-to-back non-productive turns
	// (protocol errors, capability violations, bare reasoning) before a
	// terminal report is forced.
	MaxConsecutiveFailures int
	// FinalTurnWarning controls whether the worker is told when only one
	// turn remains.
	FinalTurnWarning bool
}

// Dispatcher executes one task at a time: a fresh context snapshot in, a
// terminal report out. It never touches task records; lifecycle transitions
// belong to the task manager and are driven by the batch runner.
type Dispatcher struct {
	provider core.StrategyProvider
	backend  core.Backend
	meter    *budget.Meter
	opts     Options
}

// New creates a Dispatcher. The provider selects a strategy per agent type;
// the backend executes environment verbs; the meter enforces turn budgets.
func New(provider core.StrategyProvider, backend core.Backend, meter *budget.Meter, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		Policy:                 policy.Default(),
		Logger:                 logging.NoOpLogger{},
		MaxConsecutiveFailures: 3,
		FinalTurnWarning:       true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{provider: provider, backend: backend, meter: meter, opts: opts}
}

// Run executes the turn loop for t against the given context snapshot and
// returns the task's terminal report. Every failure mode degrades to a
// report; an error is only returned for wiring problems such as a task that
// was never registered with the budget meter.
func (d *Dispatcher) Run(ctx context.Context, t *core.Task, snap core.Snapshot) (*core.Report, error) {
	strategy := d.provider(t.AgentType)
	if strategy == nil {
		return nil, fmt.Errorf("subagent: no strategy for agent type %q", t.AgentType)
	}

	contexts, err := snap.Resolve(t.ContextRefs)
	if err != nil {
		return nil, fmt.Errorf("subagent: task %s: %w", t.ID, err)
	}

	state := &core.TurnState{
		Task:      *t.Clone(),
		Objective: t.Description,
		Contexts:  contexts,
	}
	d.bootstrap(ctx, t, state)

	consecutiveFailures := 0

	for {
		if ctx.Err() != nil {
			return d.syntheticReport(t, core.ReasonCancelled, "cancelled at turn boundary"), nil
		}

		remaining, err := d.meter.Remaining(t.ID)
		if err != nil {
			return nil, fmt.Errorf("subagent: task %s: %w", t.ID, err)
		}
		if remaining <= 0 {
			return d.forceReport(ctx, strategy, state, t, core.ReasonMaxTurns), nil
		}
		if remaining == 1 && d.opts.FinalTurnWarning {
			state.Observations = append(state.Observations, core.Observation{
				Source:  "control",
				Content: "This is your final turn. Submit a report now or your work will be discarded.",
			})
		}
		if consecutiveFailures >= d.opts.MaxConsecutiveFailures {
			return d.forceReport(ctx, strategy, state, t, core.ReasonProtocolErrors), nil
		}

		state.Turn = turnNumber(d.meter, t.ID)
		state.Remaining = remaining

		start := time.Now()
		raw, err := strategy.Next(ctx, state)
		if err != nil {
			if ctx.Err() != nil {
				return d.syntheticReport(t, core.ReasonCancelled, "cancelled at turn boundary"), nil
			}
			d.opts.Logger.Error("strategy call failed", "task_id", t.ID, "error", err)
			return d.syntheticReport(t, core.ReasonStrategyError, err.Error()), nil
		}

		action, decodeErr := protocol.Decode(raw)
		if decodeErr != nil {
			// Malformed output costs a turn and is echoed back as feedback.
			if _, err := d.meter.Consume(t.ID); err != nil {
				return d.forceReport(ctx, strategy, state, t, core.ReasonMaxTurns), nil
			}
			consecutiveFailures++
			state.Observations = append(state.Observations, core.Observation{
				Source:  "protocol",
				Content: decodeErr.Error(),
				IsError: true,
			})
			d.opts.Logger.Warn("protocol error", "task_id", t.ID, "error", decodeErr)
			continue
		}

		verb := action.Verb()
		if err := d.opts.Policy.Check(t.AgentType, verb); err != nil {
			// Policy rejections are free: the effect never ran, so no turn
			// is charged, but they still count against the progress guard.
			consecutiveFailures++
			state.Observations = append(state.Observations, core.Observation{
				Source:  "capability",
				Content: d.opts.Policy.BlockedMessage(t.AgentType, verb),
				IsError: true,
			})
			d.opts.Logger.Warn("capability violation", "task_id", t.ID, "verb", verb)
			continue
		}

		if _, err := d.meter.Consume(t.ID); err != nil {
			return d.forceReport(ctx, strategy, state, t, core.ReasonMaxTurns), nil
		}

		switch a := action.(type) {
		case core.ReportAction:
			if reason := validateReport(t, a); reason != "" {
				d.opts.Logger.Warn("report validation failed", "task_id", t.ID, "reason", reason)
				return d.syntheticReport(t, core.ReasonValidationFailed, reason), nil
			}
			report := &core.Report{
				TaskID:    t.ID,
				Contexts:  a.Contexts,
				Comments:  a.Comments,
				TurnsUsed: turnsUsed(d.meter, t.ID),
				Reason:    core.ReasonCompleted,
			}
			d.opts.Logger.Info("task reported", "task_id", t.ID, "contexts", len(a.Contexts), "turns_used", report.TurnsUsed)
			return report, nil

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
			output, execErr := d.backend.Execute(ctx, action)
			obs := core.Observation{Source: string(verb), Content: output}
			if execErr != nil {
				obs.Content = execErr.Error()
				obs.IsError = true
			}
			state.Observations = append(state.Observations, obs)
			if l, ok := d.opts.Logger.(*logging.TaskMeshLogger); ok {
				l.LogTurn(t.ID, state.Turn, string(verb), time.Since(start), execErr)
			} else {
				d.opts.Logger.Debug("turn executed", "task_id", t.ID, "turn", state.Turn, "verb", verb, "duration", time.Since(start), "error", execErr)
			}
		}
	}
}

// bootstrap reads the task's context_bootstrap resources through the backend
// and seeds them as observations. Failures are reported to the worker rather
// than failing the dispatch.
func (d *Dispatcher) bootstrap(ctx context.Context, t *core.Task, state *core.TurnState) {
	for _, ref := range t.ContextBootstrap {
		var action core.Action
		if strings.HasSuffix(ref.Path, "/") {
			action = core.GlobAction{Pattern: "*", Path: ref.Path}
		} else {
			action = core.ReadAction{FilePath: ref.Path}
		}
		output, err := d.backend.Execute(ctx, action)
		obs := core.Observation{Source: "context"}
		if err != nil {
			obs.Content = fmt.Sprintf("%s (%s): %v", ref.Path, ref.Reason, err)
			obs.IsError = true
		} else {
			obs.Content = fmt.Sprintf("%s (%s):\n%s", ref.Path, ref.Reason, output)
		}
		state.Observations = append(state.Observations, obs)
	}
}

// forceReport gives the strategy one final chance to submit a report. A
// valid report keeps its contexts; anything else degrades to a synthetic
// empty report with the same reason.
func (d *Dispatcher) forceReport(ctx context.Context, strategy core.Strategy, state *core.TurnState, t *core.Task, reason core.ReportReason) *core.Report {
	forced := *state
	forced.ForceReport = true
	forced.Remaining = 0
	forced.Observations = append(append([]core.Observation(nil), state.Observations...), core.Observation{
		Source:  "control",
		Content: forceNotice(reason),
	})

	raw, err := strategy.Next(ctx, &forced)
	if err == nil {
		if action, decodeErr := protocol.Decode(raw); decodeErr == nil {
			if a, ok := action.(core.ReportAction); ok {
				return &core.Report{
					TaskID:    t.ID,
					Contexts:  a.Contexts,
					Comments:  a.Comments,
					TurnsUsed: turnsUsed(d.meter, t.ID),
					Reason:    reason,
					Forced:    true,
				}
			}
		}
	}
	return d.syntheticReport(t, reason, "no valid report produced when one was demanded")
}

// syntheticReport is the engine-fabricated terminal report used when the
// worker cannot or will not produce one.
func (d *Dispatcher) syntheticReport(t *core.Task, reason core.ReportReason, diagnostic string) *core.Report {
	return &core.Report{
		TaskID:    t.ID,
		Comments:  diagnostic,
		TurnsUsed: turnsUsed(d.meter, t.ID),
		Reason:    reason,
		Forced:    true,
	}
}

func forceNotice(reason core.ReportReason) string {
	switch reason {
	case core.ReasonMaxTurns:
		return "Turn budget exhausted. Submit a report now; it is the only action that will be accepted."
	default:
		return "Too many unproductive turns. Submit a report now; it is the only action that will be accepted."
	}
}

// validateReport checks the structural requirements of a voluntary report.
// It returns an empty string when the report is acceptable.
func validateReport(t *core.Task, a core.ReportAction) string {
	if len(a.Contexts) == 0 {
		return "a voluntary report must carry at least one context"
	}
	for _, c := range a.Contexts {
		if c.ID == "" {
			return "report contexts must have non-empty ids"
		}
	}
	if t.AgentType == core.AgentTypeReviewer {
		for _, c := range a.Contexts {
			if c.ID == "review-summary" {
				return ""
			}
		}
		return `reviewer reports must include a "review-summary" context`
	}
	return ""
}

func turnsUsed(m *budget.Meter, taskID string) int {
	used, err := m.Used(taskID)
	if err != nil {
		return 0
	}
	return used
}

func turnNumber(m *budget.Meter, taskID string) int {
	return turnsUsed(m, taskID) + 1
}
