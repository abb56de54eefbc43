package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/specialistvlad/assetpipe/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

const (
	DefaultSrc   = "src"
	DefaultBuild = "build"
	DefaultHost  = "localhost"
	DefaultPort  = 3000
)

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load reads and translates the build file at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &config.ConfigurationError{Subject: path, Err: err}
	}
	return Parse(ctx, path, data)
}

// Parse translates build file source. filename is used for positions and
// as the model's Source.
func Parse(ctx context.Context, filename string, src []byte) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "file", filename)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fail(filename, diags)
	}
	content, diags := file.Body.Content(rootSchema)
	if diags.HasErrors() {
		return nil, fail(filename, diags)
	}

	m := &config.Model{
		Name:   strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
		Source: filename,
		Paths:  config.Paths{Src: DefaultSrc, Build: DefaultBuild},
	}
	if attr, ok := content.Attributes["name"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &m.Name); diags.HasErrors() {
			return nil, fail(filename, diags)
		}
	}
	if attr, ok := content.Attributes["default"]; ok {
		if diags := gohcl.DecodeExpression(attr.Expr, nil, &m.Default); diags.HasErrors() {
			return nil, fail(filename, diags)
		}
	}

	// paths must be known before any other block is evaluated.
	var pathsSeen *hcl.Block
	for _, block := range content.Blocks.OfType(blockPaths) {
		if pathsSeen != nil {
			return nil, fail(filename, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Duplicate paths block",
				Detail:   fmt.Sprintf("A paths block was already declared at %s.", pos(pathsSeen.DefRange)),
				Subject:  block.DefRange.Ptr(),
			}})
		}
		pathsSeen = block
		var p pathsBlock
		if diags := gohcl.DecodeBody(block.Body, nil, &p); diags.HasErrors() {
			return nil, fail(filename, diags)
		}
		if p.Src != "" {
			m.Paths.Src = p.Src
		}
		if p.Build != "" {
			m.Paths.Build = p.Build
		}
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"paths": cty.ObjectVal(map[string]cty.Value{
				"src":   cty.StringVal(m.Paths.Src),
				"build": cty.StringVal(m.Paths.Build),
			}),
		},
	}

	for _, block := range content.Blocks {
		var (
			t     *config.Task
			diags hcl.Diagnostics
		)
		switch block.Type {
		case blockPaths:
			continue
		case blockTask:
			t, diags = translateTask(block, evalCtx)
		case blockServe:
			t, diags = translateServe(block, evalCtx, m.Paths)
		case blockWatch:
			t, diags = translateWatch(block, evalCtx)
		case blockGroup:
			t, diags = translateGroup(block, evalCtx)
		}
		if diags.HasErrors() {
			return nil, fail(filename, diags)
		}
		m.Tasks = append(m.Tasks, t)
	}

	logger.Debug("HCL loading complete.", "file", filename, "tasks", len(m.Tasks), "default", m.Default)
	return m, nil
}

func translateTask(block *hcl.Block, evalCtx *hcl.EvalContext) (*config.Task, hcl.Diagnostics) {
	var b taskBlock
	if diags := gohcl.DecodeBody(block.Body, evalCtx, &b); diags.HasErrors() {
		return nil, diags
	}
	spec := &config.PipelineSpec{
		Src:    b.Src,
		Dest:   b.Dest,
		Reload: b.Reload,
		Cache:  b.Cache,
	}
	for _, s := range b.Steps {
		step, diags := translateStep(s, evalCtx)
		if diags.HasErrors() {
			return nil, diags
		}
		spec.Steps = append(spec.Steps, step)
	}
	if b.Bundle != nil {
		bundle, diags := translateStep(b.Bundle, evalCtx)
		if diags.HasErrors() {
			return nil, diags
		}
		spec.Bundle = bundle
	}
	return &config.Task{
		Name:      block.Labels[0],
		Kind:      config.KindPipeline,
		DependsOn: b.DependsOn,
		Pipeline:  spec,
		Pos:       pos(block.DefRange),
	}, nil
}

// translateStep evaluates every attribute of the step body. Which options
// exist and what types they take is checked when the step is built.
func translateStep(s *stepBlock, evalCtx *hcl.EvalContext) (*config.StepSpec, hcl.Diagnostics) {
	attrs, diags := s.Options.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	opts := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, diags
		}
		opts[name] = val
	}
	return &config.StepSpec{
		Name:    s.Name,
		Options: opts,
		Pos:     pos(s.Options.MissingItemRange()),
	}, nil
}

func translateServe(block *hcl.Block, evalCtx *hcl.EvalContext, paths config.Paths) (*config.Task, hcl.Diagnostics) {
	var b serveBlock
	if diags := gohcl.DecodeBody(block.Body, evalCtx, &b); diags.HasErrors() {
		return nil, diags
	}
	spec := &config.ServeSpec{
		Root:     b.Root,
		Host:     b.Host,
		Port:     DefaultPort,
		SocketIO: b.SocketIO,
	}
	if spec.Root == "" {
		spec.Root = paths.Build
	}
	if spec.Host == "" {
		spec.Host = DefaultHost
	}
	if b.Port != nil {
		spec.Port = *b.Port
	}
	return &config.Task{
		Name:      block.Labels[0],
		Kind:      config.KindServe,
		DependsOn: b.DependsOn,
		Serve:     spec,
		Pos:       pos(block.DefRange),
	}, nil
}

func translateWatch(block *hcl.Block, evalCtx *hcl.EvalContext) (*config.Task, hcl.Diagnostics) {
	var b watchBlock
	if diags := gohcl.DecodeBody(block.Body, evalCtx, &b); diags.HasErrors() {
		return nil, diags
	}
	spec := &config.WatchSpec{}
	if b.Debounce != "" {
		d, err := time.ParseDuration(b.Debounce)
		if err != nil || d < 0 {
			return nil, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Invalid debounce",
				Detail:   fmt.Sprintf("%q is not a valid non-negative duration.", b.Debounce),
				Subject:  block.DefRange.Ptr(),
			}}
		}
		spec.Debounce = d
	}
	for _, bb := range b.Bindings {
		spec.Bindings = append(spec.Bindings, &config.BindingSpec{Pattern: bb.Pattern, Run: bb.Run})
	}
	return &config.Task{
		Name:      block.Labels[0],
		Kind:      config.KindWatch,
		DependsOn: b.DependsOn,
		Watch:     spec,
		Pos:       pos(block.DefRange),
	}, nil
}

func translateGroup(block *hcl.Block, evalCtx *hcl.EvalContext) (*config.Task, hcl.Diagnostics) {
	var b groupBlock
	if diags := gohcl.DecodeBody(block.Body, evalCtx, &b); diags.HasErrors() {
		return nil, diags
	}
	return &config.Task{
		Name:      block.Labels[0],
		Kind:      config.KindGroup,
		DependsOn: b.DependsOn,
		Pos:       pos(block.DefRange),
	}, nil
}

func pos(r hcl.Range) string {
	return fmt.Sprintf("%s:%d,%d", r.Filename, r.Start.Line, r.Start.Column)
}

func fail(filename string, diags hcl.Diagnostics) error {
	return &config.ConfigurationError{Subject: filename, Err: diags}
}
