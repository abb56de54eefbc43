package registry

import (
	"sort"
)

// Module is implemented by every package that contributes steps.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered step and bundler constructors for a single
// application instance.
type Registry struct {
	steps    map[string]*RegisteredStep
	bundlers map[string]*RegisteredBundler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		steps:    make(map[string]*RegisteredStep),
		bundlers: make(map[string]*RegisteredBundler),
	}
}

// StepNames returns the registered step names, sorted.
func (r *Registry) StepNames() []string {
	out := make([]string, 0, len(r.steps))
	for name := range r.steps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// BundlerNames returns the registered bundler names, sorted.
func (r *Registry) BundlerNames() []string {
	out := make([]string, 0, len(r.bundlers))
	for name := range r.bundlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
