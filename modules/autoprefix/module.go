// Package autoprefix provides the autoprefix step: it inserts vendor
// prefixed copies of declarations from a fixed table of properties that
// still need them in the browsers the presets target.
package autoprefix

import (
	"context"
	"fmt"

	"github.com/specialistvlad/assetpipe/internal/pipeline"
	"github.com/specialistvlad/assetpipe/internal/registry"
	"github.com/specialistvlad/assetpipe/internal/scss"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Options are the options of the autoprefix step.
type Options struct {
	// Prefixes limits the vendors prefixes are added for.
	Prefixes []string `option:"prefixes"`
}

var vendors = []string{"webkit", "moz", "ms"}

// properties maps a property to the vendors that need a prefixed copy.
var properties = map[string][]string{
	"appearance":           {"webkit", "moz"},
	"backdrop-filter":      {"webkit"},
	"box-decoration-break": {"webkit"},
	"clip-path":            {"webkit"},
	"hyphens":              {"webkit", "ms"},
	"mask":                 {"webkit"},
	"mask-image":           {"webkit"},
	"tab-size":             {"moz"},
	"text-size-adjust":     {"webkit", "moz", "ms"},
	"user-select":          {"webkit", "moz", "ms"},
}

// values maps property/value pairs to vendors whose value needs a prefix.
var values = map[[2]string][]string{
	{"position", "sticky"}: {"webkit"},
}

// Register registers the step with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("autoprefix", &registry.RegisteredStep{
		NewOptions: func() any { return &Options{Prefixes: vendors} },
		Build: func(opts any) (pipeline.Step, error) {
			o := opts.(*Options)
			enabled := make(map[string]bool, len(o.Prefixes))
			for _, p := range o.Prefixes {
				if !knownVendor(p) {
					return nil, fmt.Errorf("unknown vendor prefix %q", p)
				}
				enabled[p] = true
			}
			return &step{enabled: enabled}, nil
		},
	})
}

func knownVendor(p string) bool {
	for _, v := range vendors {
		if v == p {
			return true
		}
	}
	return false
}

type step struct {
	enabled map[string]bool
}

func (s *step) Name() string { return "autoprefix" }

func (s *step) Formats() (pipeline.Format, pipeline.Format) {
	return pipeline.FormatCSS, pipeline.FormatCSS
}

func (s *step) Apply(_ context.Context, f *pipeline.File) ([]*pipeline.File, error) {
	sheet, err := scss.Parse(f.Source, f.Contents)
	if err != nil {
		return nil, err
	}
	sheet.Walk(func(n *scss.Node) {
		if len(n.Decls) > 0 {
			n.Decls = s.prefix(n.Decls)
		}
	})
	css, marks := sheet.Render()
	out := f.Clone()
	out.Contents = []byte(css)
	if out.SourceMap != nil {
		next := make([]pipeline.Segment, 0, len(marks))
		for _, m := range marks {
			next = append(next, pipeline.Segment{GenLine: m.GenLine, GenCol: m.GenCol, Line: m.Line - 1})
		}
		if err := out.SourceMap.Rebase(next); err != nil {
			return nil, err
		}
	}
	return []*pipeline.File{out}, nil
}

// prefix returns decls with prefixed copies inserted before each
// declaration that needs them. Copies already present are not repeated.
func (s *step) prefix(decls []scss.Decl) []scss.Decl {
	have := make(map[[2]string]bool, len(decls))
	for _, d := range decls {
		have[[2]string{d.Property, d.Value}] = true
	}

	out := make([]scss.Decl, 0, len(decls))
	for _, d := range decls {
		for _, v := range properties[d.Property] {
			p := scss.Decl{Property: "-" + v + "-" + d.Property, Value: d.Value, File: d.File, Line: d.Line}
			if s.enabled[v] && !hasProperty(decls, p.Property) {
				out = append(out, p)
			}
		}
		for _, v := range values[[2]string{d.Property, d.Value}] {
			p := scss.Decl{Property: d.Property, Value: "-" + v + "-" + d.Value, File: d.File, Line: d.Line}
			if s.enabled[v] && !have[[2]string{p.Property, p.Value}] {
				out = append(out, p)
			}
		}
		out = append(out, d)
	}
	return out
}

func hasProperty(decls []scss.Decl, property string) bool {
	for _, d := range decls {
		if d.Property == property {
			return true
		}
	}
	return false
}
