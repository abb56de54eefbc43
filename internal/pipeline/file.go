package pipeline

import (
	"io/fs"
	"path"
	"strings"
)

// Format names the kind of content a step consumes or produces.
type Format string

const (
	FormatAny    Format = "any"
	FormatSCSS   Format = "scss"
	FormatCSS    Format = "css"
	FormatHTML   Format = "html"
	FormatJS     Format = "js"
	FormatRaster Format = "raster"
	FormatSVG    Format = "svg"
)

// Accepts reports whether content of format have can feed a consumer of want.
// Plain CSS is valid SCSS, so a SCSS consumer also accepts CSS.
func (want Format) Accepts(have Format) bool {
	if want == FormatAny || have == FormatAny || want == have {
		return true
	}
	return want == FormatSCSS && have == FormatCSS
}

// SourceMap is a version 3 source map attached to a file between the
// sourcemaps_init and sourcemaps_write steps.
type SourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// File is one unit flowing through a pipeline.
type File struct {
	// Path is the slash-separated output path relative to the destination.
	Path string
	// Source is the slash-separated path of the originating source file,
	// relative to the working directory.
	Source string
	// SourcePath is the file system path of the source file.
	SourcePath string
	Contents   []byte
	Mode       fs.FileMode
	// SourceMap is nil unless a sourcemaps_init step ran.
	SourceMap *SourceMap
}

// Clone returns a deep copy of f.
func (f *File) Clone() *File {
	c := *f
	c.Contents = append([]byte(nil), f.Contents...)
	if f.SourceMap != nil {
		sm := *f.SourceMap
		sm.Sources = append([]string(nil), f.SourceMap.Sources...)
		sm.SourcesContent = append([]string(nil), f.SourceMap.SourcesContent...)
		sm.Names = append([]string(nil), f.SourceMap.Names...)
		c.SourceMap = &sm
	}
	return &c
}

// Ext returns the lower-cased extension of the output path, including the dot.
func (f *File) Ext() string {
	return strings.ToLower(path.Ext(f.Path))
}

// Stem returns the output base name without extension.
func (f *File) Stem() string {
	base := path.Base(f.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}

// WithExt returns a copy of f whose output path has its extension replaced.
func (f *File) WithExt(ext string) *File {
	c := f.Clone()
	c.Path = strings.TrimSuffix(f.Path, path.Ext(f.Path)) + ext
	return c
}
