package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/assetpipe/internal/ctxlog"
)

// Status is the lifecycle state of a task within one run.
type Status int32

const (
	Pending Status = iota
	Running
	Done
	Failed
	Skipped
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the result of one task in a run.
type Outcome struct {
	Name     string
	Status   Status
	Err      error
	Duration time.Duration
}

// Report describes a finished run.
type Report struct {
	Task     string
	Order    []string
	Outcomes map[string]*Outcome
}

// Failed returns the tasks whose action returned an error, in resolution
// order. Skipped tasks are not included.
func (r *Report) Failed() []string {
	var out []string
	for _, name := range r.Order {
		if r.Outcomes[name].Status == Failed {
			out = append(out, name)
		}
	}
	return out
}

// Err returns a *RunError when any task failed, nil otherwise.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make(map[string]error, len(failed))
	for _, name := range failed {
		errs[name] = r.Outcomes[name].Err
	}
	return &RunError{Failed: errs, order: failed}
}

// Executor runs tasks from a Registry. It keeps no per-run state, so the
// watcher may start runs concurrently with an initial build.
type Executor struct {
	registry *Registry
	workers  int
}

// NewExecutor creates an executor with at most workers concurrent actions.
func NewExecutor(r *Registry, workers int) *Executor {
	if workers <= 0 {
		workers = 1
	}
	return &Executor{registry: r, workers: workers}
}

// runNode is the per-run state of a task.
type runNode struct {
	task       *Task
	outcome    *Outcome
	depCount   atomic.Int32
	state      atomic.Int32
	dependents []*runNode
	settleOnce sync.Once
}

// run carries the shared state of one Executor.Run call.
type run struct {
	wg    sync.WaitGroup
	ready chan *runNode
}

// Run executes name and its dependency closure. The returned error is
// non-nil only when the task cannot be resolved; task failures are reported
// in the Report.
func (e *Executor) Run(ctx context.Context, name string) (*Report, error) {
	logger := ctxlog.FromContext(ctx).With("target", name)

	tasks, err := e.registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*runNode, len(tasks))
	report := &Report{Task: name, Outcomes: make(map[string]*Outcome, len(tasks))}
	for _, t := range tasks {
		n := &runNode{task: t, outcome: &Outcome{Name: t.Name, Status: Pending}}
		nodes[t.Name] = n
		report.Order = append(report.Order, t.Name)
		report.Outcomes[t.Name] = n.outcome
	}
	for _, t := range tasks {
		n := nodes[t.Name]
		n.depCount.Store(int32(len(t.DependsOn)))
		for _, dep := range t.DependsOn {
			nodes[dep].dependents = append(nodes[dep].dependents, n)
		}
	}

	r := &run{ready: make(chan *runNode, len(nodes))}
	r.wg.Add(len(nodes))
	for _, t := range tasks {
		if n := nodes[t.Name]; n.depCount.Load() == 0 {
			r.ready <- n
		}
	}

	workers := e.workers
	if workers > len(nodes) {
		workers = len(nodes)
	}
	logger.Debug("Starting task run.", "tasks", len(nodes), "workers", workers)
	for i := 0; i < workers; i++ {
		go e.worker(ctx, r, i)
	}

	r.wg.Wait()
	close(r.ready)

	for _, name := range report.Order {
		o := report.Outcomes[name]
		if o.Status == Failed {
			logger.Error("Task failed.", "task", name, "error", o.Err)
		}
	}
	return report, nil
}

// worker is the processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, r *run, workerID int) {
	logger := ctxlog.FromContext(ctx)

	for n := range r.ready {
		taskLogger := logger.With("workerID", workerID, "task", n.task.Name)
		if Status(n.state.Load()) != Pending {
			continue
		}

		if err := ctx.Err(); err != nil {
			taskLogger.Warn("Context canceled, skipping task.")
			e.settle(r, n, Failed, err, 0)
			e.skipDependents(ctx, r, n)
			continue
		}

		n.state.Store(int32(Running))
		start := time.Now()
		err := e.invoke(ctx, n.task)
		elapsed := time.Since(start)

		if err != nil {
			e.settle(r, n, Failed, err, elapsed)
			e.skipDependents(ctx, r, n)
			continue
		}

		taskLogger.Debug("Task finished.", "duration", elapsed)
		dependents := n.dependents
		e.settle(r, n, Done, nil, elapsed)
		for _, dependent := range dependents {
			if dependent.depCount.Add(-1) == 0 {
				r.ready <- dependent
			}
		}
	}
}

// invoke runs a task's action, turning a panic into an error.
func (e *Executor) invoke(ctx context.Context, t *Task) (err error) {
	if t.Action == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task %q panicked: %v", t.Name, rec)
		}
	}()
	return t.Action(ctxlog.With(ctx, "task", t.Name))
}

// settle records the terminal state of n exactly once.
func (e *Executor) settle(r *run, n *runNode, status Status, err error, elapsed time.Duration) {
	n.settleOnce.Do(func() {
		n.state.Store(int32(status))
		n.outcome.Status = status
		n.outcome.Err = err
		n.outcome.Duration = elapsed
		r.wg.Done()
	})
}

// skipDependents recursively marks all downstream tasks as skipped.
func (e *Executor) skipDependents(ctx context.Context, r *run, n *runNode) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.dependents {
		if Status(dependent.state.Load()) != Pending {
			continue
		}
		logger.Warn("Skipping dependent task due to upstream failure.", "task", dependent.task.Name, "dependency", n.task.Name)
		dependent.state.Store(int32(Skipped))
		e.settle(r, dependent, Skipped, &SkippedError{Dependency: n.task.Name}, 0)
		e.skipDependents(ctx, r, dependent)
	}
}
