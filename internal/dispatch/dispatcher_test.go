package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/awela-ai/awela/internal/resolve"
	"github.com/awela-ai/awela/internal/review"
	"github.com/awela-ai/awela/internal/session"
	"github.com/awela-ai/awela/internal/worker"
	"github.com/awela-ai/awela/pkg/models"
)

// scriptWorker executes instantly, records every assignment, and can be
// told to fail its first n executions.
type scriptWorker struct {
	kind models.WorkerKind

	mu       sync.Mutex
	calls    []worker.Assignment
	failNext int
}

func (w *scriptWorker) Kind() models.WorkerKind { return w.kind }

func (w *scriptWorker) Execute(ctx context.Context, req *session.Request, a worker.Assignment) (*models.WorkerOutput, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, a)
	if w.failNext > 0 {
		w.failNext--
		return nil, fmt.Errorf("capability unavailable")
	}
	return &models.WorkerOutput{
		TaskID: a.Task.ID,
		Kind:   w.kind,
		Text:   a.Task.ID + " done",
		Evidence: models.ToolEvidence{
			{Capability: "catalog.search", Result: "stub result for " + a.Task.ID},
		},
	}, nil
}

func (w *scriptWorker) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

// scriptReviewer replays queued verdicts per task id, approving once the
// queue is empty.
type scriptReviewer struct {
	mu       sync.Mutex
	verdicts map[string][]models.ReviewVerdict
	seen     []review.Request
}

func (r *scriptReviewer) Review(ctx context.Context, req review.Request) models.ReviewVerdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, req)
	queue := r.verdicts[req.Task.ID]
	if len(queue) == 0 {
		return models.Approve()
	}
	r.verdicts[req.Task.ID] = queue[1:]
	return queue[0]
}

// countingResolver wraps the real resolver to assert exactly-once.
type countingResolver struct {
	inner *resolve.Resolver
	mu    sync.Mutex
	calls int
}

func (c *countingResolver) Resolve(ctx context.Context, outputs []*models.WorkerOutput, failed []string) *models.ConflictResolution {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Resolve(ctx, outputs, failed)
}

type fixture struct {
	dispatcher *Dispatcher
	commerce   *scriptWorker
	billing    *scriptWorker
	operations *scriptWorker
	support    *scriptWorker
	reviewer   *scriptReviewer
	resolver   *countingResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		commerce:   &scriptWorker{kind: models.KindCommerce},
		billing:    &scriptWorker{kind: models.KindBilling},
		operations: &scriptWorker{kind: models.KindOperations},
		support:    &scriptWorker{kind: models.KindSupport},
		reviewer:   &scriptReviewer{verdicts: make(map[string][]models.ReviewVerdict)},
		resolver:   &countingResolver{inner: resolve.New(nil)},
	}
	registry, err := worker.NewRegistry(f.commerce, f.billing, f.operations, f.support)
	if err != nil {
		t.Fatal(err)
	}
	f.dispatcher = New(registry, f.reviewer, f.resolver, Config{TaskTimeout: time.Second}, nil)
	return f
}

func plan(t *testing.T, tasks ...*models.Task) *models.Plan {
	t.Helper()
	p, err := models.NewPlan(tasks)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func task(id string, kind models.WorkerKind, deps ...string) *models.Task {
	return &models.Task{
		ID:               id,
		Kind:             kind,
		Description:      "work for " + id,
		DependsOn:        deps,
		RequiresEvidence: true,
	}
}

func TestDependencyOrderExecution(t *testing.T) {
	f := newFixture(t)
	p := plan(t,
		task("step1", models.KindCommerce),
		task("step2", models.KindBilling, "step1"),
		task("step3", models.KindSupport, "step2"),
	)

	res, err := f.dispatcher.Run(context.Background(), session.New("u1", "cli", "hi"), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if f.commerce.callCount() != 1 || f.billing.callCount() != 1 || f.support.callCount() != 1 {
		t.Errorf("each worker should run once: %d %d %d",
			f.commerce.callCount(), f.billing.callCount(), f.support.callCount())
	}
	// step2 must see step1's approved output, step3 step2's.
	if got := f.billing.calls[0].PriorOutputs["step1"]; got == nil || got.Text != "step1 done" {
		t.Errorf("step2 did not receive step1's output: %+v", got)
	}
	if got := f.support.calls[0].PriorOutputs["step2"]; got == nil {
		t.Error("step3 did not receive step2's output")
	}
	if len(res.FailedTasks) != 0 {
		t.Errorf("failed tasks: %v", res.FailedTasks)
	}
	if f.resolver.calls != 1 {
		t.Errorf("resolver invoked %d times", f.resolver.calls)
	}
}

func TestSingleTaskApprovedOutputPassesThrough(t *testing.T) {
	f := newFixture(t)
	p := plan(t, task("only", models.KindCommerce))

	res, err := f.dispatcher.Run(context.Background(), session.New("u1", "cli", "hi"), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.FinalText != "only done" {
		t.Errorf("single approved output must pass through, got %q", res.FinalText)
	}
	if f.dispatcher.Status("only") != models.TaskStatusApproved {
		t.Errorf("status = %s", f.dispatcher.Status("only"))
	}
}

func TestRetryBoundThenFailed(t *testing.T) {
	f := newFixture(t)
	f.reviewer.verdicts["only"] = []models.ReviewVerdict{
		models.Reject("the price is unsupported; quote the catalog figure"),
		models.Reject("still unsupported"),
		models.Reject("still unsupported"),
	}
	p := plan(t, task("only", models.KindCommerce))

	res, err := f.dispatcher.Run(context.Background(), session.New("u1", "cli", "hi"), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Two rejections are absorbed as retries; the third forces failed.
	if got := f.commerce.callCount(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if f.dispatcher.Retries("only") != 2 {
		t.Errorf("retries = %d, want 2", f.dispatcher.Retries("only"))
	}
	if f.dispatcher.Status("only") != models.TaskStatusFailed {
		t.Errorf("status = %s", f.dispatcher.Status("only"))
	}
	if res.FinalText != resolve.FallbackReply {
		t.Errorf("all-failed plan must produce the fallback, got %q", res.FinalText)
	}
}

func TestCritiqueReachesNextAttempt(t *testing.T) {
	f := newFixture(t)
	critique := "the reply names ₦9,500 which no tool result supports"
	f.reviewer.verdicts["only"] = []models.ReviewVerdict{models.Reject(critique)}
	p := plan(t, task("only", models.KindCommerce))

	if _, err := f.dispatcher.Run(context.Background(), session.New("u1", "cli", "hi"), p); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(f.commerce.calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(f.commerce.calls))
	}
	if f.commerce.calls[0].Critique != "" {
		t.Errorf("first attempt must carry no critique, got %q", f.commerce.calls[0].Critique)
	}
	if f.commerce.calls[1].Critique != critique {
		t.Errorf("second attempt critique = %q", f.commerce.calls[1].Critique)
	}
	if f.commerce.calls[1].Attempt != 2 {
		t.Errorf("attempt number = %d", f.commerce.calls[1].Attempt)
	}
	if f.dispatcher.Status("only") != models.TaskStatusApproved {
		t.Errorf("status = %s", f.dispatcher.Status("only"))
	}
}

func TestFailedDependencyBlocksOnlyDownstream(t *testing.T) {
	f := newFixture(t)
	f.reviewer.verdicts["step1"] = []models.ReviewVerdict{
		models.Reject("bad"), models.Reject("bad"), models.Reject("bad"),
	}
	p := plan(t,
		task("step1", models.KindCommerce),
		task("step2", models.KindSupport),
		task("step3", models.KindBilling, "step1"),
	)

	res, err := f.dispatcher.Run(context.Background(), session.New("u1", "cli", "hi"), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.billing.callCount() != 0 {
		t.Error("task downstream of a failed dependency must never execute")
	}
	if f.support.callCount() != 1 {
		t.Error("independent sibling must still run")
	}
	if !strings.Contains(res.FinalText, "step2 done") {
		t.Errorf("approved sibling output must survive, got %q", res.FinalText)
	}
	for _, id := range []string{"step1", "step3"} {
		if f.dispatcher.Status(id) != models.TaskStatusFailed {
			t.Errorf("status[%s] = %s", id, f.dispatcher.Status(id))
		}
	}
	if len(res.FailedTasks) != 2 {
		t.Errorf("failed tasks = %v", res.FailedTasks)
	}
}

func TestRerunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := plan(t, task("only", models.KindCommerce))
	req := session.New("u1", "cli", "hi")

	first, err := f.dispatcher.Run(context.Background(), req, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	second, err := f.dispatcher.Run(context.Background(), req, p)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if first != second {
		t.Error("rerun must return the recorded resolution")
	}
	if f.commerce.callCount() != 1 {
		t.Errorf("rerun must not invoke workers, count = %d", f.commerce.callCount())
	}
	if f.resolver.calls != 1 {
		t.Errorf("resolver invoked %d times", f.resolver.calls)
	}
}

func TestTurnPolicyBatchesActiveKind(t *testing.T) {
	f := newFixture(t)
	p := plan(t,
		task("a", models.KindCommerce),
		task("b", models.KindBilling),
		task("c", models.KindCommerce),
	)

	if _, err := f.dispatcher.Run(context.Background(), session.New("u1", "cli", "hi"), p); err != nil {
		t.Fatalf("run: %v", err)
	}
	// Lowest id starts, then the active kind batches its other ready
	// task before billing gets a turn.
	if got := f.commerce.calls[0].Task.ID; got != "a" {
		t.Errorf("first task = %s, want a", got)
	}
	if got := f.commerce.calls[1].Task.ID; got != "c" {
		t.Errorf("second commerce task = %s, want c", got)
	}
	if f.billing.callCount() != 1 {
		t.Errorf("billing ran %d times", f.billing.callCount())
	}
}

func TestWorkerErrorConsumesOneRetry(t *testing.T) {
	f := newFixture(t)
	f.commerce.failNext = 1
	p := plan(t, task("only", models.KindCommerce))

	if _, err := f.dispatcher.Run(context.Background(), session.New("u1", "cli", "hi"), p); err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.dispatcher.Status("only") != models.TaskStatusApproved {
		t.Errorf("status = %s", f.dispatcher.Status("only"))
	}
	if f.dispatcher.Retries("only") != 1 {
		t.Errorf("retries = %d, want 1", f.dispatcher.Retries("only"))
	}
	if f.commerce.callCount() != 2 {
		t.Errorf("attempts = %d, want 2", f.commerce.callCount())
	}
}

// stallingWorker blocks until the attempt context expires for its first
// n executions, then completes instantly.
type stallingWorker struct {
	mu         sync.Mutex
	calls      []worker.Assignment
	blockFirst int
}

func (w *stallingWorker) Kind() models.WorkerKind { return models.KindCommerce }

func (w *stallingWorker) Execute(ctx context.Context, req *session.Request, a worker.Assignment) (*models.WorkerOutput, error) {
	w.mu.Lock()
	w.calls = append(w.calls, a)
	block := len(w.calls) <= w.blockFirst
	w.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &models.WorkerOutput{TaskID: a.Task.ID, Kind: models.KindCommerce, Text: a.Task.ID + " done"}, nil
}

func TestTaskTimeoutConsumesRetry(t *testing.T) {
	w := &stallingWorker{blockFirst: 1}
	registry, err := worker.NewRegistry(w)
	if err != nil {
		t.Fatal(err)
	}
	reviewer := &scriptReviewer{verdicts: make(map[string][]models.ReviewVerdict)}
	resolver := &countingResolver{inner: resolve.New(nil)}
	d := New(registry, reviewer, resolver, Config{TaskTimeout: 20 * time.Millisecond}, nil)

	p := plan(t, task("only", models.KindCommerce))
	if _, err := d.Run(context.Background(), session.New("u1", "cli", "hi"), p); err != nil {
		t.Fatalf("run: %v", err)
	}
	if d.Status("only") != models.TaskStatusApproved {
		t.Errorf("status = %s", d.Status("only"))
	}
	if d.Retries("only") != 1 {
		t.Errorf("retries = %d, want 1", d.Retries("only"))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.calls) != 2 {
		t.Fatalf("attempts = %d, want 2", len(w.calls))
	}
	if !strings.Contains(w.calls[1].Critique, "timed out") {
		t.Errorf("second attempt missing timeout critique, got %q", w.calls[1].Critique)
	}
}

func TestExpiredDeadlineShortCircuitsToResolver(t *testing.T) {
	f := newFixture(t)
	p := plan(t,
		task("step1", models.KindCommerce),
		task("step2", models.KindBilling, "step1"),
	)
	req := session.New("u1", "cli", "hi")
	req.Deadline = time.Now().Add(-time.Second)

	res, err := f.dispatcher.Run(context.Background(), req, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.commerce.callCount() != 0 || f.billing.callCount() != 0 {
		t.Error("expired deadline must not start any worker")
	}
	if res.FinalText != resolve.FallbackReply {
		t.Errorf("expected fallback reply, got %q", res.FinalText)
	}
	if len(res.FailedTasks) != 2 {
		t.Errorf("failed tasks = %v", res.FailedTasks)
	}
	if f.resolver.calls != 1 {
		t.Errorf("resolver invoked %d times", f.resolver.calls)
	}
}

func TestEventsObserveLifecycle(t *testing.T) {
	f := newFixture(t)
	p := plan(t, task("only", models.KindCommerce))

	if _, err := f.dispatcher.Run(context.Background(), session.New("u1", "cli", "hi"), p); err != nil {
		t.Fatalf("run: %v", err)
	}

	var types []EventType
	for {
		select {
		case ev := <-f.dispatcher.Events():
			types = append(types, ev.Type)
			continue
		default:
		}
		break
	}
	want := []EventType{EventTaskReady, EventTaskStarted, EventTaskReviewing, EventTaskApproved, EventPlanResolved}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestEmitterDropsWhenSubscriberStalls(t *testing.T) {
	e := newEventEmitter(1)
	start := time.Now()
	for i := 0; i < 3; i++ {
		e.emit(Event{Type: EventTaskReady})
	}
	if got := e.DroppedCount(); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("emit stalled the producer for %v", elapsed)
	}
}
