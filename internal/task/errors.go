package task

import (
	"fmt"
	"strings"
)

// DuplicateTaskError is returned when a task name is registered twice.
type DuplicateTaskError struct {
	Name string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %q already registered", e.Name)
}

// UnknownDependencyError is returned when a task depends on a name that has
// not been registered before it.
type UnknownDependencyError struct {
	Task       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on %q, which is not registered (dependencies must be declared first)", e.Task, e.Dependency)
}

// UnknownTaskError is returned when resolving or running an unregistered task.
type UnknownTaskError struct {
	Name string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("task %q not found", e.Name)
}

// CycleError is returned when the dependency closure of a task cannot be
// ordered.
type CycleError struct {
	Task string
	Node string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("resolving task %q: dependency cycle through %q", e.Task, e.Node)
}

// SkippedError marks a task that did not run because a dependency failed.
type SkippedError struct {
	Dependency string
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("skipped due to upstream failure of '%s'", e.Dependency)
}

// RunError summarises the failed tasks of a run.
type RunError struct {
	Failed map[string]error
	order  []string
}

func (e *RunError) Error() string {
	parts := make([]string, 0, len(e.order))
	for _, name := range e.order {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failed[name]))
	}
	return fmt.Sprintf("%d task(s) failed:\n- %s", len(e.order), strings.Join(parts, "\n- "))
}
