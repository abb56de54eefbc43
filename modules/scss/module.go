// Package scss provides the scss step, compiling SCSS sources to CSS with
// the internal/scss compiler. Partials (files starting with "_") produce no
// output of their own.
package scss

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/assetpipe/internal/pipeline"
	"github.com/specialistvlad/assetpipe/internal/registry"
	"github.com/specialistvlad/assetpipe/internal/scss"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Options are the options of the scss step.
type Options struct {
	// LoadPaths are extra import directories.
	LoadPaths []string `option:"load_paths"`
}

// Register registers the step with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("scss", &registry.RegisteredStep{
		NewOptions: func() any { return &Options{} },
		Build: func(opts any) (pipeline.Step, error) {
			return &step{opts: *opts.(*Options)}, nil
		},
	})
}

type step struct {
	opts Options
}

func (s *step) Name() string { return "scss" }

func (s *step) Formats() (pipeline.Format, pipeline.Format) {
	return pipeline.FormatSCSS, pipeline.FormatCSS
}

func (s *step) Apply(_ context.Context, f *pipeline.File) ([]*pipeline.File, error) {
	if strings.HasPrefix(path.Base(f.Path), "_") {
		return nil, nil
	}

	filename := f.SourcePath
	if filename == "" {
		filename = filepath.FromSlash(f.Source)
	}
	res, err := scss.Compile(filename, f.Contents, scss.Options{LoadPaths: s.opts.LoadPaths, ReadFile: os.ReadFile})
	if err != nil {
		return nil, err
	}

	css, marks := res.Sheet.Render()
	out := f.WithExt(".css")
	out.Contents = []byte(css)
	if out.SourceMap != nil {
		if err := s.mapSources(out.SourceMap, filename, res.Imports, marks); err != nil {
			return nil, err
		}
	}
	return []*pipeline.File{out}, nil
}

// mapSources points the map at the compiled rules. Rules from the file
// itself are translated through the incoming map; rules from imports refer
// to the imported files, which are appended to the map's sources.
func (s *step) mapSources(sm *pipeline.SourceMap, filename string, imports []string, marks []scss.Mark) error {
	dir := filepath.Dir(filename)
	index := make(map[string]int, len(imports))
	for _, imp := range imports {
		rel, err := filepath.Rel(dir, imp)
		if err != nil {
			rel = imp
		}
		index[imp] = len(sm.Sources)
		sm.Sources = append(sm.Sources, filepath.ToSlash(rel))
		if len(sm.SourcesContent) > 0 {
			data, _ := os.ReadFile(imp)
			sm.SourcesContent = append(sm.SourcesContent, string(data))
		}
	}

	var own, imported []pipeline.Segment
	for _, m := range marks {
		seg := pipeline.Segment{GenLine: m.GenLine, GenCol: m.GenCol, Line: m.Line - 1}
		if m.File == filename {
			own = append(own, seg)
			continue
		}
		i, ok := index[m.File]
		if !ok {
			continue
		}
		seg.Source = i
		imported = append(imported, seg)
	}
	if err := sm.Rebase(own); err != nil {
		return err
	}
	return sm.Add(imported...)
}
