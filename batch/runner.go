package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/taskmesh/budget"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/subagent"
	"github.com/hupe1980/taskmesh/task"
)

// DefaultMaxConcurrency caps how many batch siblings run at once unless
// configured otherwise.
const DefaultMaxConcurrency = 10

// Options configures a Runner.
type Options struct {
	// MaxConcurrency caps simultaneously running siblings.
	MaxConcurrency int
	// Logger receives batch-level diagnostics.
	Logger logging.Logger
}

// Result is the outcome of one batch launch. Reports are ordered by the
// declaration order of the launched task ids, as are the merged context ids.
type Result struct {
	BatchID          string
	Reports          []*core.Report
	MergedContextIDs []string
}

// Runner launches batches of tasks. It owns the pre-launch validation, the
// fan-out under the concurrency cap, and the join-then-merge of results.
type Runner struct {
	store      core.ContextStore
	manager    *task.Manager
	dispatcher *subagent.Dispatcher
	meter      *budget.Meter
	opts       Options
}

// NewRunner creates a Runner bound to the session's store, task manager,
// dispatcher and budget meter.
func NewRunner(store core.ContextStore, manager *task.Manager, dispatcher *subagent.Dispatcher, meter *budget.Meter, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrency: DefaultMaxConcurrency,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Runner{store: store, manager: manager, dispatcher: dispatcher, meter: meter, opts: opts}
}

// Launch runs the named pending tasks as one batch and blocks until every
// sibling reaches a terminal state. All siblings observe the context snapshot
// taken here; none of their writes become visible to each other mid-flight.
//
// Validation happens before anything is dispatched: unknown task ids,
// non-pending tasks, and context refs absent from the snapshot fail the whole
// launch without consuming any turns.
func (r *Runner) Launch(ctx context.Context, taskIDs []string) (*Result, error) {
	if len(taskIDs) == 0 {
		return nil, fmt.Errorf("batch: no task ids given")
	}

	snapshot := r.store.Snapshot()

	tasks := make([]*core.Task, len(taskIDs))
	for i, id := range taskIDs {
		t, err := r.manager.Get(id)
		if err != nil {
			return nil, fmt.Errorf("batch: %w", err)
		}
		if t.Status != core.StatusPending {
			return nil, fmt.Errorf("batch: task %s is %s, only pending tasks can be launched", id, t.Status)
		}
		if _, err := snapshot.Resolve(t.ContextRefs); err != nil {
			return nil, fmt.Errorf("batch: task %s: %w", id, err)
		}
		tasks[i] = t
	}

	batchID := core.NewID()
	start := time.Now()

	for _, t := range tasks {
		if err := r.meter.Register(t.ID, t.MaxTurns); err != nil {
			return nil, fmt.Errorf("batch: %w", err)
		}
		if err := r.manager.Dispatch(t.ID, batchID); err != nil {
			return nil, fmt.Errorf("batch: %w", err)
		}
	}

	r.opts.Logger.Info("batch launched", "batch_id", batchID, "task_count", len(tasks))

	// Fan out under the cap. A sibling's failure never cancels the others:
	// each one runs to its own terminal report.
	reports := make([]*core.Report, len(tasks))
	var g errgroup.Group
	g.SetLimit(r.opts.MaxConcurrency)
	for i, t := range tasks {
		g.Go(func() error {
			if err := r.manager.MarkRunning(t.ID); err != nil {
				return err
			}
			report, err := r.dispatcher.Run(ctx, t, snapshot)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch %s: %w", batchID, err)
	}

	// Join complete: finalize and merge in declaration order so id
	// collisions resolve deterministically, later-declared siblings winning.
	merged := make([]string, 0)
	completed := 0
	for _, report := range reports {
		if err := r.manager.Finalize(report); err != nil {
			return nil, fmt.Errorf("batch %s: finalize %s: %w", batchID, report.TaskID, err)
		}
		if report.Terminal() == core.StatusCompleted {
			completed++
		}
		if !mergeable(report) {
			continue
		}
		for _, item := range report.Contexts {
			if _, err := r.store.Put(item.ID, item.Content, report.TaskID); err != nil {
				return nil, fmt.Errorf("batch %s: merge %q: %w", batchID, item.ID, err)
			}
			merged = append(merged, item.ID)
		}
	}

	if l, ok := r.opts.Logger.(*logging.TaskMeshLogger); ok {
		l.LogBatch(batchID, len(tasks), completed, time.Since(start))
	} else {
		r.opts.Logger.Info("batch completed", "batch_id", batchID, "task_count", len(tasks), "completed", completed, "duration", time.Since(start))
	}

	return &Result{BatchID: batchID, Reports: reports, MergedContextIDs: merged}, nil
}

// mergeable reports whether a terminal report's contexts enter the store.
// Completed reports always merge; a budget-forced report that still carried
// valid contexts merges too, so partial work is not discarded. Failed and
// cancelled tasks publish nothing.
func mergeable(report *core.Report) bool {
	switch report.Terminal() {
	case core.StatusCompleted:
		return true
	case core.StatusTimedOut:
		return len(report.Contexts) > 0
	}
	return false
}
