package dispatch

import (
	"time"

	"github.com/awela-ai/awela/pkg/models"
)

// EventType represents the type of dispatch event.
type EventType string

const (
	// EventTaskReady indicates a task's dependencies are all approved.
	EventTaskReady EventType = "task_ready"
	// EventTaskStarted indicates a worker attempt has begun.
	EventTaskStarted EventType = "task_started"
	// EventTaskReviewing indicates a worker output was handed to the reviewer.
	EventTaskReviewing EventType = "task_reviewing"
	// EventTaskApproved indicates the reviewer approved the output.
	EventTaskApproved EventType = "task_approved"
	// EventTaskRetried indicates a rejection consumed one retry.
	EventTaskRetried EventType = "task_retried"
	// EventTaskFailed indicates the task reached the failed terminal state.
	EventTaskFailed EventType = "task_failed"
	// EventPlanResolved indicates the conflict resolver produced the reply.
	EventPlanResolved EventType = "plan_resolved"
)

// Event is one observable step of the scheduling loop. The CLI consumes
// these to show progress; nothing in the pipeline depends on them.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the id of the related task, empty for plan-level events.
	TaskID string
	// Kind is the worker kind of the related task.
	Kind models.WorkerKind
	// Attempt is the execution attempt number, starting at 1.
	Attempt int
	// Message carries additional context, such as the reviewer critique.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
