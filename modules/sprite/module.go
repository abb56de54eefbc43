// Package sprite provides the svg_sprite bundler, which merges SVG icons
// into a single sprite with one <symbol> per icon.
package sprite

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/specialistvlad/assetpipe/internal/pipeline"
	"github.com/specialistvlad/assetpipe/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Options are the options of svg_sprite.
type Options struct {
	// File is the sprite path relative to the destination.
	File string `option:"file"`
	// Prefix is prepended to every symbol id.
	Prefix string `option:"prefix"`
}

// Register registers the bundler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterBundler("svg_sprite", &registry.RegisteredBundler{
		NewOptions: func() any { return &Options{File: "sprite.svg"} },
		Build: func(opts any) (pipeline.Bundler, error) {
			o := *opts.(*Options)
			if o.File == "" || path.IsAbs(o.File) {
				return nil, fmt.Errorf("file %q must be a relative path", o.File)
			}
			return &bundler{opts: o}, nil
		},
	})
}

type bundler struct {
	opts Options
}

func (b *bundler) Name() string { return "svg_sprite" }

func (b *bundler) Format() pipeline.Format { return pipeline.FormatSVG }

// Bundle builds the sprite. Symbols are ordered by icon path. An icon that
// cannot be parsed, or whose id is already taken by an earlier icon, is
// rejected and the remaining icons are still bundled.
func (b *bundler) Bundle(_ context.Context, files []*pipeline.File) (*pipeline.File, []*pipeline.TransformError, error) {
	sorted := append([]*pipeline.File(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("svg")
	root.CreateAttr("xmlns", "http://www.w3.org/2000/svg")
	root.CreateAttr("style", "display: none")

	var rejected []*pipeline.TransformError
	reject := func(f *pipeline.File, err error) {
		name := f.Source
		if name == "" {
			name = f.Path
		}
		rejected = append(rejected, &pipeline.TransformError{File: name, Step: b.Name(), Err: err})
	}

	ids := make(map[string]string, len(sorted))
	for _, f := range sorted {
		if f.Ext() != ".svg" {
			continue
		}
		id := b.opts.Prefix + f.Stem()
		if prev, ok := ids[id]; ok {
			reject(f, fmt.Errorf("symbol id %q already used by %s", id, prev))
			continue
		}

		symbol, err := symbolFor(f, id)
		if err != nil {
			reject(f, err)
			continue
		}
		ids[id] = f.Path
		root.AddChild(symbol)
	}
	if len(ids) == 0 {
		return nil, rejected, nil
	}

	doc.Indent(2)
	data, err := doc.WriteToBytes()
	if err != nil {
		return nil, rejected, fmt.Errorf("writing sprite: %w", err)
	}
	return &pipeline.File{Path: b.opts.File, Source: "svg_sprite", Contents: data, Mode: 0o644}, rejected, nil
}

func symbolFor(f *pipeline.File, id string) (*etree.Element, error) {
	icon := etree.NewDocument()
	if err := icon.ReadFromBytes(f.Contents); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.Path, err)
	}
	svg := icon.Root()
	if svg == nil || svg.Tag != "svg" {
		return nil, fmt.Errorf("%s: root element is not <svg>", f.Path)
	}

	symbol := etree.NewElement("symbol")
	symbol.CreateAttr("id", id)
	if vb := viewBox(svg); vb != "" {
		symbol.CreateAttr("viewBox", vb)
	}
	for _, attr := range []string{"preserveAspectRatio", "fill", "stroke"} {
		if v := svg.SelectAttrValue(attr, ""); v != "" {
			symbol.CreateAttr(attr, v)
		}
	}
	for _, child := range svg.ChildElements() {
		symbol.AddChild(child.Copy())
	}
	return symbol, nil
}

// viewBox returns the icon's viewBox, derived from width and height when
// missing.
func viewBox(svg *etree.Element) string {
	if vb := svg.SelectAttrValue("viewBox", ""); vb != "" {
		return vb
	}
	w := strings.TrimSuffix(svg.SelectAttrValue("width", ""), "px")
	h := strings.TrimSuffix(svg.SelectAttrValue("height", ""), "px")
	if w == "" || h == "" {
		return ""
	}
	return "0 0 " + w + " " + h
}
