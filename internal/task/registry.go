package task

import (
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/assetpipe/internal/dag"
)

// Registry holds named tasks and the dependency graph between them.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	graph *dag.Graph
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
		graph: dag.New(),
	}
}

// Register adds a task. Every dependency must already be registered.
func (r *Registry) Register(name string, deps []string, action Action) error {
	if name == "" {
		return errors.New("task name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[name]; exists {
		return &DuplicateTaskError{Name: name}
	}
	seen := make(map[string]bool, len(deps))
	for _, dep := range deps {
		if _, ok := r.tasks[dep]; !ok {
			return &UnknownDependencyError{Task: name, Dependency: dep}
		}
		if seen[dep] {
			return fmt.Errorf("task %q lists dependency %q more than once", name, dep)
		}
		seen[dep] = true
	}

	r.graph.AddNode(name)
	for _, dep := range deps {
		if err := r.graph.AddEdge(dep, name); err != nil {
			return fmt.Errorf("registering task %q: %w", name, err)
		}
	}

	r.tasks[name] = &Task{
		Name:      name,
		DependsOn: append([]string(nil), deps...),
		Action:    action,
	}
	return nil
}

// Get returns the task registered under name.
func (r *Registry) Get(name string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Names returns all task names in registration order.
func (r *Registry) Names() []string {
	return r.graph.Nodes()
}

// Resolve returns the dependency closure of name in topological order; the
// task itself is the last element.
func (r *Registry) Resolve(name string) ([]*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.tasks[name]; !ok {
		return nil, &UnknownTaskError{Name: name}
	}
	if err := r.graph.DetectCycles(); err != nil {
		return nil, asCycle(name, err)
	}
	order, err := r.graph.Closure(name)
	if err != nil {
		return nil, asCycle(name, err)
	}

	out := make([]*Task, len(order))
	for i, id := range order {
		out[i] = r.tasks[id]
	}
	return out, nil
}

func asCycle(name string, err error) error {
	var cycleErr *dag.CycleError
	if errors.As(err, &cycleErr) {
		return &CycleError{Task: name, Node: cycleErr.Node}
	}
	return err
}
