package models

import (
	"fmt"
	"sort"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates a worker is executing the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusReviewing indicates the worker returned and review is underway.
	TaskStatusReviewing TaskStatus = "reviewing"
	// TaskStatusApproved indicates the reviewer accepted the output. Terminal.
	TaskStatusApproved TaskStatus = "approved"
	// TaskStatusFailed indicates the retry bound was exhausted. Terminal.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusReviewing,
		TaskStatusApproved, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusApproved || s == TaskStatusFailed
}

// Task is a unit of work in a plan. Tasks are immutable after plan
// validation; status, retry count, and critique are tracked by the
// dispatcher, not on the task itself.
type Task struct {
	// ID is the plan-scoped identifier for this task.
	ID string `json:"id"`
	// Kind is the worker kind assigned to execute the task.
	Kind WorkerKind `json:"worker"`
	// Description is the natural-language statement of the work.
	Description string `json:"task"`
	// DependsOn lists task IDs that must be approved before this task runs.
	DependsOn []string `json:"dependencies,omitempty"`
	// Reason records why the planner included this step.
	Reason string `json:"reason,omitempty"`
	// RequiresEvidence is false for tasks that are valid without fresh tool
	// evidence, such as a confirmed-purchase continuation.
	RequiresEvidence bool `json:"requires_evidence"`
}

// Plan is a validated DAG of tasks for one request. Exactly one plan exists
// per request and it is immutable once built.
type Plan struct {
	// Tasks holds the plan steps in planner order.
	Tasks []*Task `json:"tasks"`

	byID map[string]*Task
}

// NewPlan builds a plan from tasks and verifies id uniqueness and
// dependency referential integrity. Cycle detection is the graph package's
// job and runs during planner validation.
func NewPlan(tasks []*Task) (*Plan, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("plan has no tasks")
	}
	byID := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("task with empty id")
		}
		if !t.Kind.Valid() {
			return nil, fmt.Errorf("task %s: unknown worker kind %q", t.ID, t.Kind)
		}
		if _, dup := byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %s", t.ID)
		}
		byID[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
			}
			if dep == t.ID {
				return nil, fmt.Errorf("task %s depends on itself", t.ID)
			}
		}
	}
	return &Plan{Tasks: tasks, byID: byID}, nil
}

// Get returns the task with the given id, or nil.
func (p *Plan) Get(id string) *Task {
	return p.byID[id]
}

// Len returns the number of tasks in the plan.
func (p *Plan) Len() int {
	return len(p.Tasks)
}

// IDs returns all task ids in sorted order.
func (p *Plan) IDs() []string {
	ids := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}
