package registry

import (
	"fmt"
	"log/slog"

	"github.com/specialistvlad/assetpipe/internal/pipeline"
)

// RegisteredStep builds a pipeline step from decoded options.
type RegisteredStep struct {
	// NewOptions returns a pointer to an options struct pre-filled with
	// defaults. Fields are bound by their `option:"name"` tag. Nil means the
	// step takes no options.
	NewOptions func() any
	Build      func(opts any) (pipeline.Step, error)
}

// RegisteredBundler builds a pipeline bundler from decoded options.
type RegisteredBundler struct {
	NewOptions func() any
	Build      func(opts any) (pipeline.Bundler, error)
}

// RegisterStep registers a step constructor under name.
func (r *Registry) RegisterStep(name string, handler *RegisteredStep) {
	if _, exists := r.steps[name]; exists {
		panic(fmt.Sprintf("step with name '%s' already registered", name))
	}
	slog.Debug("Registering step.", "name", name)
	r.steps[name] = handler
}

// RegisterBundler registers a bundler constructor under name.
func (r *Registry) RegisterBundler(name string, handler *RegisteredBundler) {
	if _, exists := r.bundlers[name]; exists {
		panic(fmt.Sprintf("bundler with name '%s' already registered", name))
	}
	slog.Debug("Registering bundler.", "name", name)
	r.bundlers[name] = handler
}
