// Package sourcemaps provides the sourcemaps_init and sourcemaps_write steps.
// Init seeds a version 3 map that maps every line of the original source to
// itself; steps in between rebase it onto their output (the scss step also
// adds imported partials); write serialises the map next to the output and
// links it from the file.
package sourcemaps

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/specialistvlad/assetpipe/internal/pipeline"
	"github.com/specialistvlad/assetpipe/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// InitOptions are the options of sourcemaps_init.
type InitOptions struct {
	IncludeContent bool `option:"include_content"`
}

// WriteOptions are the options of sourcemaps_write.
type WriteOptions struct {
	// Dir is where the map is written, relative to the output file.
	Dir        string `option:"dir"`
	SourceRoot string `option:"source_root"`
}

// Register registers the steps with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("sourcemaps_init", &registry.RegisteredStep{
		NewOptions: func() any { return &InitOptions{IncludeContent: true} },
		Build: func(opts any) (pipeline.Step, error) {
			return &initStep{opts: *opts.(*InitOptions)}, nil
		},
	})
	r.RegisterStep("sourcemaps_write", &registry.RegisteredStep{
		NewOptions: func() any { return &WriteOptions{Dir: "."} },
		Build: func(opts any) (pipeline.Step, error) {
			o := *opts.(*WriteOptions)
			if path.IsAbs(o.Dir) {
				return nil, fmt.Errorf("dir %q must be relative", o.Dir)
			}
			return &writeStep{opts: o}, nil
		},
	})
}

type initStep struct {
	opts InitOptions
}

func (s *initStep) Name() string { return "sourcemaps_init" }

func (s *initStep) Formats() (pipeline.Format, pipeline.Format) {
	return pipeline.FormatAny, pipeline.FormatAny
}

func (s *initStep) Apply(_ context.Context, f *pipeline.File) ([]*pipeline.File, error) {
	out := f.Clone()
	out.SourceMap = &pipeline.SourceMap{
		Version: 3,
		File:    path.Base(f.Path),
		Sources: []string{path.Base(f.Path)},
		Names:   []string{},
	}
	out.SourceMap.SetSegments(pipeline.LineSegments(f.Contents))
	if s.opts.IncludeContent {
		out.SourceMap.SourcesContent = []string{string(f.Contents)}
	}
	return []*pipeline.File{out}, nil
}

type writeStep struct {
	opts WriteOptions
}

func (s *writeStep) Name() string { return "sourcemaps_write" }

func (s *writeStep) Formats() (pipeline.Format, pipeline.Format) {
	return pipeline.FormatAny, pipeline.FormatAny
}

func (s *writeStep) Apply(_ context.Context, f *pipeline.File) ([]*pipeline.File, error) {
	if f.SourceMap == nil {
		return []*pipeline.File{f}, nil
	}

	base := path.Base(f.Path)
	ref := path.Join(s.opts.Dir, base+".map")

	sm := *f.SourceMap
	sm.File = base
	if s.opts.SourceRoot != "" {
		sm.SourceRoot = s.opts.SourceRoot
	}
	data, err := json.Marshal(&sm)
	if err != nil {
		return nil, fmt.Errorf("encoding source map: %w", err)
	}

	out := f.Clone()
	out.SourceMap = nil
	out.Contents = append(out.Contents, []byte(reference(f.Ext(), ref))...)

	mapFile := &pipeline.File{
		Path:       path.Join(path.Dir(f.Path), ref),
		Source:     f.Source,
		SourcePath: f.SourcePath,
		Contents:   data,
		Mode:       f.Mode,
	}
	return []*pipeline.File{out, mapFile}, nil
}

func reference(ext, ref string) string {
	if ext == ".css" {
		return "\n/*# sourceMappingURL=" + ref + " */\n"
	}
	return "\n//# sourceMappingURL=" + ref + "\n"
}
