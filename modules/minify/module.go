// Package minify provides the minify_css, minify_html, minify_js and
// minify_svg steps backed by tdewolff/minify.
package minify

import (
	"bytes"
	"context"
	"fmt"
	"regexp"

	"github.com/specialistvlad/assetpipe/internal/pipeline"
	"github.com/specialistvlad/assetpipe/internal/registry"
	"github.com/specialistvlad/assetpipe/internal/scss"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// CSSOptions are the options of minify_css and minify_svg.
type CSSOptions struct {
	// Precision is the number of significant digits kept in numbers, 0 keeps
	// all of them.
	Precision int `option:"precision"`
}

// HTMLOptions are the options of minify_html.
type HTMLOptions struct {
	KeepWhitespace bool `option:"keep_whitespace"`
	KeepComments   bool `option:"keep_comments"`
}

// JSOptions are the options of minify_js.
type JSOptions struct {
	KeepVarNames bool `option:"keep_var_names"`
}

var scriptTypes = regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$")

// Register registers the steps with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStep("minify_css", &registry.RegisteredStep{
		NewOptions: func() any { return &CSSOptions{} },
		Build: func(opts any) (pipeline.Step, error) {
			o := opts.(*CSSOptions)
			mm := minify.New()
			mm.Add("text/css", &css.Minifier{Precision: o.Precision})
			return &step{name: "minify_css", mime: "text/css", format: pipeline.FormatCSS, m: mm}, nil
		},
	})
	r.RegisterStep("minify_html", &registry.RegisteredStep{
		NewOptions: func() any { return &HTMLOptions{} },
		Build: func(opts any) (pipeline.Step, error) {
			o := opts.(*HTMLOptions)
			mm := minify.New()
			mm.Add("text/html", &html.Minifier{
				KeepDocumentTags: true,
				KeepEndTags:      true,
				KeepWhitespace:   o.KeepWhitespace,
				KeepComments:     o.KeepComments,
			})
			mm.AddFunc("text/css", css.Minify)
			mm.AddFunc("image/svg+xml", svg.Minify)
			mm.AddFuncRegexp(scriptTypes, js.Minify)
			return &step{name: "minify_html", mime: "text/html", format: pipeline.FormatHTML, m: mm}, nil
		},
	})
	r.RegisterStep("minify_js", &registry.RegisteredStep{
		NewOptions: func() any { return &JSOptions{} },
		Build: func(opts any) (pipeline.Step, error) {
			o := opts.(*JSOptions)
			mm := minify.New()
			mm.Add("application/javascript", &js.Minifier{KeepVarNames: o.KeepVarNames})
			return &step{name: "minify_js", mime: "application/javascript", format: pipeline.FormatJS, m: mm}, nil
		},
	})
	r.RegisterStep("minify_svg", &registry.RegisteredStep{
		NewOptions: func() any { return &CSSOptions{} },
		Build: func(opts any) (pipeline.Step, error) {
			o := opts.(*CSSOptions)
			mm := minify.New()
			mm.Add("image/svg+xml", &svg.Minifier{Precision: o.Precision})
			mm.AddFunc("text/css", css.Minify)
			return &step{name: "minify_svg", mime: "image/svg+xml", format: pipeline.FormatSVG, m: mm}, nil
		},
	})
}

type step struct {
	name   string
	mime   string
	format pipeline.Format
	m      *minify.M
}

func (s *step) Name() string { return s.name }

func (s *step) Formats() (pipeline.Format, pipeline.Format) { return s.format, s.format }

func (s *step) Apply(_ context.Context, f *pipeline.File) ([]*pipeline.File, error) {
	if f.SourceMap != nil && s.format == pipeline.FormatCSS {
		if out, ok, err := s.mappedCSS(f); ok || err != nil {
			return out, err
		}
	}

	data, err := s.m.Bytes(s.mime, f.Contents)
	if err != nil {
		return nil, fmt.Errorf("minifying %s: %w", f.Path, err)
	}
	out := f.Clone()
	out.Contents = data
	if out.SourceMap != nil {
		if err := out.SourceMap.Rebase([]pipeline.Segment{{}}); err != nil {
			return nil, err
		}
	}
	return []*pipeline.File{out}, nil
}

// mappedCSS minifies each top-level rule on its own so the source map keeps
// one segment per rule. ok is false when the stylesheet cannot be parsed
// into rules; the caller then minifies it as a whole.
func (s *step) mappedCSS(f *pipeline.File) (out []*pipeline.File, ok bool, err error) {
	sheet, err := scss.Parse(f.Source, f.Contents)
	if err != nil {
		return nil, false, nil
	}

	var (
		buf  bytes.Buffer
		next []pipeline.Segment
	)
	for _, n := range sheet.Nodes {
		rule := (&scss.Stylesheet{Nodes: []*scss.Node{n}}).String()
		if rule == "" {
			continue
		}
		data, err := s.m.String(s.mime, rule)
		if err != nil {
			return nil, true, fmt.Errorf("minifying %s: %w", f.Path, err)
		}
		if n.Line > 0 {
			next = append(next, pipeline.Segment{GenCol: buf.Len(), Line: n.Line - 1})
		}
		buf.WriteString(data)
	}

	c := f.Clone()
	c.Contents = buf.Bytes()
	if err := c.SourceMap.Rebase(next); err != nil {
		return nil, true, err
	}
	return []*pipeline.File{c}, true, nil
}
