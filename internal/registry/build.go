package registry

import (
	"fmt"

	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/specialistvlad/assetpipe/internal/pipeline"
)

// BuildStep constructs the step named by spec, decoding its options.
func (r *Registry) BuildStep(spec *config.StepSpec) (pipeline.Step, error) {
	h, ok := r.steps[spec.Name]
	if !ok {
		return nil, fmt.Errorf("unknown step %q", spec.Name)
	}
	opts, err := newOptions(spec, h.NewOptions)
	if err != nil {
		return nil, err
	}
	step, err := h.Build(opts)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", spec.Name, err)
	}
	return step, nil
}

// BuildBundler constructs the bundler named by spec, decoding its options.
func (r *Registry) BuildBundler(spec *config.StepSpec) (pipeline.Bundler, error) {
	h, ok := r.bundlers[spec.Name]
	if !ok {
		return nil, fmt.Errorf("unknown bundler %q", spec.Name)
	}
	opts, err := newOptions(spec, h.NewOptions)
	if err != nil {
		return nil, err
	}
	b, err := h.Build(opts)
	if err != nil {
		return nil, fmt.Errorf("bundler %q: %w", spec.Name, err)
	}
	return b, nil
}

func newOptions(spec *config.StepSpec, factory func() any) (any, error) {
	if factory == nil {
		if len(spec.Options) > 0 {
			return nil, fmt.Errorf("step %q takes no options", spec.Name)
		}
		return nil, nil
	}
	opts := factory()
	if err := DecodeOptions(spec.Options, opts); err != nil {
		return nil, fmt.Errorf("step %q: %w", spec.Name, err)
	}
	return opts, nil
}
