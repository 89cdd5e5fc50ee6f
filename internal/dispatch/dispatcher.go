// Package dispatch schedules a validated plan across the worker pool. It
// owns the canonical task status table and the per-task retry counters,
// walks the dependency graph, enforces the one-active-worker-kind-per-turn
// policy, and hands the fully terminal plan to the conflict resolver
// exactly once.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/awela-ai/awela/internal/graph"
	"github.com/awela-ai/awela/internal/review"
	"github.com/awela-ai/awela/internal/session"
	"github.com/awela-ai/awela/internal/worker"
	"github.com/awela-ai/awela/pkg/models"
)

// ErrDeadlock indicates no task is ready, none is in flight, and
// non-terminal tasks remain. Unreachable on a validated DAG; if it fires,
// the remaining tasks are failed and the request degrades to the fallback.
var ErrDeadlock = errors.New("dispatch deadlock: no ready tasks but plan is not terminal")

// Reviewer validates one worker output against its evidence.
type Reviewer interface {
	Review(ctx context.Context, req review.Request) models.ReviewVerdict
}

// Resolver merges the terminal plan state into the final reply.
type Resolver interface {
	Resolve(ctx context.Context, outputs []*models.WorkerOutput, failed []string) *models.ConflictResolution
}

// Config bounds one dispatch run.
type Config struct {
	// TaskTimeout caps a single worker attempt. A timed-out attempt counts
	// as a reviewer rejection consuming one retry.
	TaskTimeout time.Duration
	// RetryBound is the number of rejections absorbed per task before it
	// is forced to failed.
	RetryBound int
	// EventBuffer sizes the event channel.
	EventBuffer int
}

// DefaultConfig returns the standard dispatch bounds.
func DefaultConfig() Config {
	return Config{
		TaskTimeout: 45 * time.Second,
		RetryBound:  2,
		EventBuffer: 64,
	}
}

// Dispatcher runs one plan to completion. It is single-use: create one
// per request. Re-running a finished dispatcher returns the recorded
// resolution without invoking any worker again.
type Dispatcher struct {
	workers  *worker.Registry
	reviewer Reviewer
	resolver Resolver
	cfg      Config
	logger   *DebugLogger
	emitter  *eventEmitter

	// mu guards the tables below; the event consumer may snapshot status
	// while the loop is running.
	mu         sync.Mutex
	status     map[string]models.TaskStatus
	retries    map[string]int
	critiques  map[string]string
	outputs    map[string]*models.WorkerOutput
	evidence   map[string]models.ToolEvidence
	lastKind   models.WorkerKind
	resolution *models.ConflictResolution
}

// New creates a dispatcher for one request. Logger may be nil.
func New(workers *worker.Registry, reviewer Reviewer, resolver Resolver, cfg Config, logger *DebugLogger) *Dispatcher {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	if cfg.RetryBound <= 0 {
		cfg.RetryBound = DefaultConfig().RetryBound
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Dispatcher{
		workers:   workers,
		reviewer:  reviewer,
		resolver:  resolver,
		cfg:       cfg,
		logger:    logger,
		emitter:   newEventEmitter(cfg.EventBuffer),
		status:    make(map[string]models.TaskStatus),
		retries:   make(map[string]int),
		critiques: make(map[string]string),
		outputs:   make(map[string]*models.WorkerOutput),
		evidence:  make(map[string]models.ToolEvidence),
	}
}

// Events returns the observation channel. It is never closed; consumers
// stop reading when Run returns.
func (d *Dispatcher) Events() <-chan Event {
	return d.emitter.events
}

// Status returns the current status of a task.
func (d *Dispatcher) Status(id string) models.TaskStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status[id]
}

// Retries returns the rejections consumed by a task so far.
func (d *Dispatcher) Retries(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retries[id]
}

// Run executes the plan to full termination and returns the resolved
// reply. Calling Run again on a finished dispatcher performs no worker
// invocations and returns the same resolution.
func (d *Dispatcher) Run(ctx context.Context, req *session.Request, plan *models.Plan) (*models.ConflictResolution, error) {
	d.mu.Lock()
	if d.resolution != nil {
		res := d.resolution
		d.mu.Unlock()
		return res, nil
	}
	for _, id := range plan.IDs() {
		if _, seen := d.status[id]; !seen {
			d.status[id] = models.TaskStatusPending
		}
	}
	d.mu.Unlock()

	g := graph.New()
	if err := g.Build(plan); err != nil {
		return nil, fmt.Errorf("build dependency graph: %w", err)
	}
	d.logger.Log("request %s: dispatching %d task(s)", req.ID, plan.Len())

	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	for !g.Complete() {
		// Propagate failure before scheduling: anything downstream of a
		// failed dependency can never run.
		for _, id := range g.Blocked() {
			d.failTask(g, plan, id, "dependency failed")
		}
		if g.Complete() {
			break
		}

		if ctx.Err() != nil {
			d.logger.Log("request %s: deadline expired, short-circuiting to resolver", req.ID)
			d.failRemaining(g, plan, "request deadline expired before the task could run")
			break
		}

		ready := d.pendingReady(g)
		if len(ready) == 0 {
			d.logger.Log("request %s: %v", req.ID, ErrDeadlock)
			d.failRemaining(g, plan, ErrDeadlock.Error())
			break
		}

		id := d.pickTurn(plan, ready)
		task := plan.Get(id)
		d.setLastKind(task.Kind)
		d.emitter.emit(Event{Type: EventTaskReady, TaskID: id, Kind: task.Kind})
		d.runTask(ctx, req, g, plan, task)
	}

	return d.resolve(ctx, req, g, plan), nil
}

// pendingReady filters the graph's ready set to tasks not yet attempted
// or awaiting their next attempt.
func (d *Dispatcher) pendingReady(g *graph.DependencyGraph) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ready []string
	for _, id := range g.Ready() {
		if d.status[id] == models.TaskStatusPending || d.status[id] == models.TaskStatusInProgress {
			ready = append(ready, id)
		}
	}
	return ready
}

// pickTurn applies the turn policy: prefer the most recently active
// worker kind so its work batches, otherwise take the lowest ready id.
// Ready ids arrive sorted, so both branches are deterministic.
func (d *Dispatcher) pickTurn(plan *models.Plan, ready []string) string {
	d.mu.Lock()
	last := d.lastKind
	d.mu.Unlock()

	if last != "" {
		for _, id := range ready {
			if task := plan.Get(id); task != nil && task.Kind == last {
				return id
			}
		}
	}
	return ready[0]
}

func (d *Dispatcher) setLastKind(kind models.WorkerKind) {
	d.mu.Lock()
	d.lastKind = kind
	d.mu.Unlock()
}

// runTask drives one task to a terminal state: execute, review, and
// either approve, consume a retry, or fail. Holding the turn until the
// task is terminal keeps verdicts for a task strictly ordered.
func (d *Dispatcher) runTask(ctx context.Context, req *session.Request, g *graph.DependencyGraph, plan *models.Plan, task *models.Task) {
	w, err := d.workers.Get(task.Kind)
	if err != nil {
		// Unreachable after plan validation.
		d.failTask(g, plan, task.ID, err.Error())
		return
	}

	for {
		d.mu.Lock()
		attempt := d.retries[task.ID] + 1
		critique := d.critiques[task.ID]
		prior := d.evidence[task.ID]
		priorOutputs := d.approvedDeps(plan, task)
		d.status[task.ID] = models.TaskStatusInProgress
		d.mu.Unlock()

		d.logger.Log("task %s (%s): attempt %d", task.ID, task.Kind, attempt)
		d.emitter.emit(Event{Type: EventTaskStarted, TaskID: task.ID, Kind: task.Kind, Attempt: attempt})

		out, verdict := d.attempt(ctx, req, w, worker.Assignment{
			Task:          task,
			Critique:      critique,
			Attempt:       attempt,
			PriorOutputs:  priorOutputs,
			PriorEvidence: prior,
		})

		if out != nil {
			d.mu.Lock()
			d.evidence[task.ID] = out.Evidence
			d.mu.Unlock()
		}

		if verdict.Approved {
			d.mu.Lock()
			d.status[task.ID] = models.TaskStatusApproved
			d.outputs[task.ID] = out
			d.mu.Unlock()
			g.MarkApproved(task.ID)
			d.logger.Log("task %s: approved on attempt %d", task.ID, attempt)
			d.emitter.emit(Event{Type: EventTaskApproved, TaskID: task.ID, Kind: task.Kind, Attempt: attempt})
			return
		}

		d.mu.Lock()
		exhausted := d.retries[task.ID] >= d.cfg.RetryBound
		if !exhausted {
			d.retries[task.ID]++
			d.critiques[task.ID] = verdict.Critique
			d.status[task.ID] = models.TaskStatusInProgress
		}
		d.mu.Unlock()

		if exhausted {
			d.failTask(g, plan, task.ID, verdict.Critique)
			return
		}
		d.logger.Log("task %s: rejected on attempt %d: %s", task.ID, attempt, verdict.Critique)
		d.emitter.emit(Event{Type: EventTaskRetried, TaskID: task.ID, Kind: task.Kind, Attempt: attempt, Message: verdict.Critique})
	}
}

// attempt runs one bounded worker execution and reviews the output. An
// execution error or timeout is converted into a rejection so it consumes
// a retry instead of stalling the loop.
func (d *Dispatcher) attempt(ctx context.Context, req *session.Request, w worker.Worker, a worker.Assignment) (*models.WorkerOutput, models.ReviewVerdict) {
	taskCtx, cancel := context.WithTimeout(ctx, d.cfg.TaskTimeout)
	defer cancel()

	out, err := w.Execute(taskCtx, req, a)
	if err != nil {
		critique := fmt.Sprintf("execution failed: %v; retry with the same task", err)
		if errors.Is(err, context.DeadlineExceeded) {
			critique = "execution timed out; respond with whatever the tools already returned"
		}
		return out, models.Reject(critique)
	}

	d.emitter.emit(Event{Type: EventTaskReviewing, TaskID: a.Task.ID, Kind: a.Task.Kind, Attempt: a.Attempt})
	d.mu.Lock()
	d.status[a.Task.ID] = models.TaskStatusReviewing
	d.mu.Unlock()

	verdict := d.reviewer.Review(ctx, review.Request{
		Task:     a.Task,
		Kind:     a.Task.Kind,
		Output:   out,
		Evidence: out.Evidence,
		Attempt:  a.Attempt,
	})
	return out, verdict
}

// approvedDeps collects the approved outputs of a task's dependencies.
// Callers hold d.mu.
func (d *Dispatcher) approvedDeps(plan *models.Plan, task *models.Task) map[string]*models.WorkerOutput {
	if len(task.DependsOn) == 0 {
		return nil
	}
	deps := make(map[string]*models.WorkerOutput, len(task.DependsOn))
	for _, dep := range task.DependsOn {
		if out, ok := d.outputs[dep]; ok {
			deps[dep] = out
		}
	}
	return deps
}

func (d *Dispatcher) failTask(g *graph.DependencyGraph, plan *models.Plan, id, reason string) {
	d.mu.Lock()
	d.status[id] = models.TaskStatusFailed
	d.mu.Unlock()
	g.MarkFailed(id)
	d.logger.Log("task %s: failed: %s", id, reason)

	var kind models.WorkerKind
	if task := plan.Get(id); task != nil {
		kind = task.Kind
	}
	d.emitter.emit(Event{Type: EventTaskFailed, TaskID: id, Kind: kind, Message: reason})
}

// failRemaining terminates every non-terminal task, used on deadline
// expiry and deadlock.
func (d *Dispatcher) failRemaining(g *graph.DependencyGraph, plan *models.Plan, reason string) {
	d.mu.Lock()
	var remaining []string
	for _, id := range plan.IDs() {
		if !d.status[id].Terminal() {
			remaining = append(remaining, id)
		}
	}
	d.mu.Unlock()
	sort.Strings(remaining)
	for _, id := range remaining {
		d.failTask(g, plan, id, reason)
	}
}

// resolve invokes the conflict resolver exactly once over the terminal
// plan. Approved outputs are passed in dependency order so the final
// reply reads in execution order.
func (d *Dispatcher) resolve(ctx context.Context, req *session.Request, g *graph.DependencyGraph, plan *models.Plan) *models.ConflictResolution {
	order, err := g.TopologicalSort()
	if err != nil {
		order = plan.IDs()
	}

	d.mu.Lock()
	var approved []*models.WorkerOutput
	var failed []string
	for _, id := range order {
		switch d.status[id] {
		case models.TaskStatusApproved:
			approved = append(approved, d.outputs[id])
		default:
			failed = append(failed, id)
		}
	}
	d.mu.Unlock()

	resolution := d.resolver.Resolve(ctx, approved, failed)

	d.mu.Lock()
	d.resolution = resolution
	d.mu.Unlock()

	d.logger.Log("request %s: resolved with %d approved, %d failed", req.ID, len(approved), len(failed))
	d.emitter.emit(Event{Type: EventPlanResolved, Message: resolution.FinalText})
	return resolution
}
