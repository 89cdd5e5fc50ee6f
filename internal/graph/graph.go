// Package graph provides the dependency DAG used to schedule plan tasks.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/awela-ai/awela/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the plan.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of plan tasks. Tasks are
// nodes, edges point at the tasks they are blocked by.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task id to the task itself.
	nodes map[string]*models.Task
	// edges maps task id to the ids of tasks it depends on.
	edges map[string][]string
	// approved tracks which tasks have been approved by review.
	approved map[string]bool
	// terminal tracks tasks that reached any terminal status.
	terminal map[string]bool
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]*models.Task),
		edges:    make(map[string][]string),
		approved: make(map[string]bool),
		terminal: make(map[string]bool),
	}
}

// Build constructs the graph from a plan. Returns an error if a dependency
// references an unknown task or a cycle exists.
func (g *DependencyGraph) Build(plan *models.Plan) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range plan.Tasks {
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
	}
	for _, task := range plan.Tasks {
		for _, dep := range task.DependsOn {
			if _, exists := g.nodes[dep]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, dep)
			}
			g.edges[task.ID] = append(g.edges[task.ID], dep)
		}
	}
	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked walks the graph with DFS coloring looking for back edges.
// Color states: 0 unvisited, 1 on the current path, 2 fully processed.
func (g *DependencyGraph) hasCycleLocked() bool {
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, dep := range g.edges[id] {
			switch colors[dep] {
			case 1:
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns task ids ordered so that every dependency comes
// before the tasks that depend on it. Ids at the same depth come out in
// lexical order so the result is deterministic.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	visited := make(map[string]bool, len(g.nodes))
	var result []string
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		deps := append([]string(nil), g.edges[id]...)
		sort.Strings(deps)
		for _, dep := range deps {
			visit(dep)
		}
		result = append(result, id)
	}
	for _, id := range ids {
		visit(id)
	}
	return result, nil
}

// MarkApproved records that a task's output was approved.
func (g *DependencyGraph) MarkApproved(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approved[id] = true
	g.terminal[id] = true
}

// MarkFailed records that a task exhausted its retries.
func (g *DependencyGraph) MarkFailed(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminal[id] = true
}

// Ready returns the ids of tasks whose dependencies are all approved and
// that have not themselves reached a terminal state, in sorted order.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id := range g.nodes {
		if g.terminal[id] {
			continue
		}
		eligible := true
		for _, dep := range g.edges[id] {
			if !g.approved[dep] {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// Blocked returns ids of non-terminal tasks that can never run because a
// dependency reached a terminal state without approval.
func (g *DependencyGraph) Blocked() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var blocked []string
	for id := range g.nodes {
		if g.terminal[id] {
			continue
		}
		for _, dep := range g.edges[id] {
			if g.terminal[dep] && !g.approved[dep] {
				blocked = append(blocked, id)
				break
			}
		}
	}
	sort.Strings(blocked)
	return blocked
}

// Complete returns true when every task has reached a terminal state.
func (g *DependencyGraph) Complete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for id := range g.nodes {
		if !g.terminal[id] {
			return false
		}
	}
	return true
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependents returns the ids of tasks that depend on the given task.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for node, deps := range g.edges {
		for _, dep := range deps {
			if dep == id {
				dependents = append(dependents, node)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}
