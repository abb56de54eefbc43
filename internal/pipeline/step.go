package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/specialistvlad/assetpipe/internal/reload"
)

// Step is a per-file transform. Apply may return the file unchanged, a
// renamed copy, several files (e.g. a source map next to its CSS) or none
// (e.g. a Sass partial). Steps must not keep state across files.
type Step interface {
	Name() string
	Formats() (in, out Format)
	Apply(ctx context.Context, f *File) ([]*File, error)
}

// Bundler reduces all transformed files of a run into a single output.
// Files that cannot be bundled are returned in rejected and left out of the
// output; out is nil when no file could be bundled. err is reserved for a
// failure of the bundle as a whole.
type Bundler interface {
	Name() string
	Format() Format
	Bundle(ctx context.Context, files []*File) (out *File, rejected []*TransformError, err error)
}

// Spec describes a pipeline before validation.
type Spec struct {
	Task string
	// Src are glob patterns relative to the working directory. A pattern
	// prefixed with "!" excludes matches.
	Src []string
	// Dest is the output directory relative to the working directory. An
	// empty Dest makes the pipeline reload-only.
	Dest   string
	Steps  []Step
	Bundle Bundler
	Reload reload.Scope
	// Cache reuses transformed outputs for unchanged inputs.
	Cache bool
}

// Pipeline is a validated Spec.
type Pipeline struct {
	spec Spec
}

// New validates that each step accepts what the previous one produces.
func New(spec Spec) (*Pipeline, error) {
	var errs []string
	if len(spec.Src) == 0 {
		errs = append(errs, "no source patterns")
	}
	if spec.Bundle != nil && spec.Dest == "" {
		errs = append(errs, fmt.Sprintf("bundle %q needs a destination", spec.Bundle.Name()))
	}

	have, from := FormatAny, "source"
	for _, s := range spec.Steps {
		in, out := s.Formats()
		if !in.Accepts(have) {
			errs = append(errs, fmt.Sprintf("step %q expects %s input but %s produces %s", s.Name(), in, from, have))
		}
		if out != FormatAny {
			have, from = out, fmt.Sprintf("step %q", s.Name())
		}
	}
	if spec.Bundle != nil && !spec.Bundle.Format().Accepts(have) {
		errs = append(errs, fmt.Sprintf("bundle %q expects %s input but %s produces %s", spec.Bundle.Name(), spec.Bundle.Format(), from, have))
	}

	if len(errs) > 0 {
		return nil, &config.ConfigurationError{
			Subject: fmt.Sprintf("task %q", spec.Task),
			Err:     fmt.Errorf("invalid pipeline:\n- %s", strings.Join(errs, "\n- ")),
		}
	}
	return &Pipeline{spec: spec}, nil
}

// Task returns the name of the task owning the pipeline.
func (p *Pipeline) Task() string { return p.spec.Task }

// Src returns the source patterns.
func (p *Pipeline) Src() []string { return p.spec.Src }

// Dest returns the destination directory.
func (p *Pipeline) Dest() string { return p.spec.Dest }

// Reload returns the reload scope published after a productive run.
func (p *Pipeline) Reload() reload.Scope { return p.spec.Reload }
