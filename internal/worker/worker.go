// Package worker implements the four specialized executors. Each worker
// runs one task at a time, invokes capabilities through the shared
// registry, and records every invocation as tool evidence before
// returning.
package worker

import (
	"context"
	"fmt"

	"github.com/awela-ai/awela/internal/capability"
	"github.com/awela-ai/awela/internal/llm"
	"github.com/awela-ai/awela/internal/session"
	"github.com/awela-ai/awela/pkg/models"
)

// Assignment carries everything a worker needs for one attempt.
type Assignment struct {
	// Task is the plan step to execute.
	Task *models.Task
	// Critique is the reviewer's feedback from the rejected previous
	// attempt, empty on the first attempt.
	Critique string
	// Attempt is 1 for the first execution, incremented per retry.
	Attempt int
	// PriorOutputs maps dependency task ids to their approved outputs.
	PriorOutputs map[string]*models.WorkerOutput
	// PriorEvidence is the evidence gathered by earlier attempts of this
	// same task. Workers consult it to keep effectful capabilities
	// idempotent across retries.
	PriorEvidence models.ToolEvidence
}

// Worker executes tasks of one fixed kind.
type Worker interface {
	Kind() models.WorkerKind
	Execute(ctx context.Context, req *session.Request, a Assignment) (*models.WorkerOutput, error)
}

// Registry is the closed mapping from worker kind to executor. The
// dispatcher switches on the task's kind tag; an unregistered kind is a
// wiring error, not a runtime fallback.
type Registry struct {
	workers map[models.WorkerKind]Worker
}

// NewRegistry builds a registry from the given workers.
func NewRegistry(workers ...Worker) (*Registry, error) {
	r := &Registry{workers: make(map[models.WorkerKind]Worker, len(workers))}
	for _, w := range workers {
		kind := w.Kind()
		if !kind.Valid() {
			return nil, fmt.Errorf("worker has invalid kind %q", kind)
		}
		if _, dup := r.workers[kind]; dup {
			return nil, fmt.Errorf("duplicate worker for kind %q", kind)
		}
		r.workers[kind] = w
	}
	return r, nil
}

// Get returns the worker for a kind.
func (r *Registry) Get(kind models.WorkerKind) (Worker, error) {
	w, ok := r.workers[kind]
	if !ok {
		return nil, fmt.Errorf("no worker registered for kind %q", kind)
	}
	return w, nil
}

// Kinds returns the registered kinds.
func (r *Registry) Kinds() []models.WorkerKind {
	kinds := make([]models.WorkerKind, 0, len(r.workers))
	for _, k := range models.AllKinds() {
		if _, ok := r.workers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// NewDefaultRegistry wires the standard four workers.
func NewDefaultRegistry(caps *capability.Registry, gen llm.Generator) (*Registry, error) {
	return NewRegistry(
		NewCommerce(caps, gen),
		NewBilling(caps, gen),
		NewOperations(caps, gen),
		NewSupport(caps, gen),
	)
}

// toolLog wraps the capability registry so that every invocation, success
// or failure, lands in the task's evidence in call order.
type toolLog struct {
	caps     *capability.Registry
	evidence models.ToolEvidence
}

func newToolLog(caps *capability.Registry) *toolLog {
	return &toolLog{caps: caps}
}

// invoke calls a capability and records the outcome.
func (l *toolLog) invoke(ctx context.Context, name string, args capability.Args) (string, error) {
	result, err := l.caps.Invoke(ctx, name, args)
	inv := models.Invocation{Capability: name, Args: args.String(), Result: result}
	if err != nil {
		inv.Err = err.Error()
	}
	l.evidence = append(l.evidence, inv)
	return result, err
}
