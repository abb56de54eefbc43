package task

import "context"

// Action performs a task's work. A nil Action marks an aggregation point
// whose only purpose is to pull in its dependencies.
type Action func(ctx context.Context) error

// Task is a named, possibly dependent unit of build work.
type Task struct {
	Name      string
	DependsOn []string
	Action    Action
}
