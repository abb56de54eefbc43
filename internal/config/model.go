package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Kind identifies what a task does when it runs.
type Kind string

const (
	KindPipeline Kind = "pipeline"
	KindServe    Kind = "serve"
	KindWatch    Kind = "watch"
	KindGroup    Kind = "group"
)

// Model is a complete build configuration.
type Model struct {
	Name string
	// Source names where the model came from, a file path or preset name.
	Source string
	Paths  Paths
	// Tasks are kept in declaration order.
	Tasks []*Task
	// Default is the task run when none is named on the command line.
	Default string
}

// Paths are the named directories that build files interpolate.
type Paths struct {
	Src   string
	Build string
}

// Task is one declared task. Exactly one of Pipeline, Serve and Watch is set
// for the matching kinds; group tasks only aggregate their dependencies.
type Task struct {
	Name      string
	Kind      Kind
	DependsOn []string
	Pipeline  *PipelineSpec
	Serve     *ServeSpec
	Watch     *WatchSpec
	// Pos is a human readable declaration position, e.g. "v3.hcl:12,1".
	Pos string
}

// PipelineSpec is the configuration of a pipeline task.
type PipelineSpec struct {
	Src    []string
	Dest   string
	Steps  []*StepSpec
	Bundle *StepSpec
	Reload string
	Cache  bool
}

// StepSpec names a registered step and carries its raw option values.
type StepSpec struct {
	Name    string
	Options map[string]cty.Value
	Pos     string
}

// ServeSpec is the configuration of the dev server task.
type ServeSpec struct {
	Root string
	Host string
	Port int
	// SocketIO also publishes reload events over socket.io.
	SocketIO bool
}

// WatchSpec is the configuration of the watch task.
type WatchSpec struct {
	Debounce time.Duration
	Bindings []*BindingSpec
}

// BindingSpec maps glob patterns to the tasks run when a match changes.
type BindingSpec struct {
	Pattern []string
	Run     []string
}

// Task returns the task declared with name, or nil.
func (m *Model) Task(name string) *Task {
	for _, t := range m.Tasks {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Names returns the task names in declaration order.
func (m *Model) Names() []string {
	out := make([]string, len(m.Tasks))
	for i, t := range m.Tasks {
		out[i] = t.Name
	}
	return out
}

// Validate checks the parts of a model that do not need the task registry:
// every task has the body its kind requires, watch bindings only run declared
// tasks, and the default task exists.
func (m *Model) Validate() error {
	var errs []string
	seen := make(map[string]bool, len(m.Tasks))
	for _, t := range m.Tasks {
		if seen[t.Name] {
			// The registry reports duplicates with their own error type.
			continue
		}
		seen[t.Name] = true

		switch t.Kind {
		case KindPipeline:
			if t.Pipeline == nil || len(t.Pipeline.Src) == 0 {
				errs = append(errs, fmt.Sprintf("task %q: no source patterns", t.Name))
			}
		case KindServe:
			if t.Serve == nil || t.Serve.Root == "" {
				errs = append(errs, fmt.Sprintf("serve %q: no root directory", t.Name))
			} else if t.Serve.Port < 0 || t.Serve.Port > 65535 {
				errs = append(errs, fmt.Sprintf("serve %q: port %d out of range", t.Name, t.Serve.Port))
			}
		case KindWatch:
			if t.Watch == nil || len(t.Watch.Bindings) == 0 {
				errs = append(errs, fmt.Sprintf("watch %q: no bindings", t.Name))
			}
		case KindGroup:
		default:
			errs = append(errs, fmt.Sprintf("task %q: unknown kind %q", t.Name, t.Kind))
		}
	}

	for _, t := range m.Tasks {
		if t.Kind != KindWatch || t.Watch == nil {
			continue
		}
		for i, b := range t.Watch.Bindings {
			if len(b.Pattern) == 0 {
				errs = append(errs, fmt.Sprintf("watch %q: binding %d has no pattern", t.Name, i+1))
			}
			if len(b.Run) == 0 {
				errs = append(errs, fmt.Sprintf("watch %q: binding %d runs no task", t.Name, i+1))
			}
			for _, name := range b.Run {
				if !seen[name] {
					errs = append(errs, fmt.Sprintf("watch %q: binding %d runs unknown task %q", t.Name, i+1, name))
				}
			}
		}
	}

	if m.Default != "" && !seen[m.Default] {
		errs = append(errs, fmt.Sprintf("default task %q is not declared", m.Default))
	}

	if len(errs) > 0 {
		return &ConfigurationError{
			Subject: m.Source,
			Err:     fmt.Errorf("invalid configuration:\n- %s", strings.Join(errs, "\n- ")),
		}
	}
	return nil
}
