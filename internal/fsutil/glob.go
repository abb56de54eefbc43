// Package fsutil provides the file system helpers shared by the pipeline
// runner and the watcher: glob expansion rooted at a working directory and
// atomic file writes.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Match is a single file selected by a set of glob patterns.
type Match struct {
	// Path is the slash-separated path relative to the working directory.
	Path string
	// Base is the static prefix of the pattern that selected the file.
	Base string
	// Rel is Path relative to Base. Outputs keep this relative path.
	Rel string
}

// ErrBaseMissing is returned by Glob when the static base directory of a
// pattern does not exist.
var ErrBaseMissing = errors.New("glob base directory does not exist")

// CleanPattern normalises a pattern: slashes, a leading "./" and repeated
// separators are cleaned up and a "!" prefix is split off as negated.
func CleanPattern(pattern string) (clean string, negated bool) {
	p := strings.TrimSpace(filepath.ToSlash(pattern))
	if strings.HasPrefix(p, "!") {
		negated, p = true, strings.TrimPrefix(p, "!")
	}
	if p == "" {
		return "", negated
	}
	return path.Clean(p), negated
}

// SplitPattern separates the static directory prefix of a pattern from its
// wildcard part, e.g. "src/style/**/*.scss" -> "src/style", "**/*.scss".
func SplitPattern(pattern string) (base, rest string) {
	clean, _ := CleanPattern(pattern)
	base, rest = doublestar.SplitPattern(clean)
	if base == "" {
		base = "."
	}
	return base, rest
}

// Glob expands patterns relative to root. Patterns starting with "!" exclude
// files matched by earlier patterns. Results are sorted by path. A pattern
// whose base directory is missing yields ErrBaseMissing; a base directory that
// exists but matches nothing is not an error.
func Glob(root string, patterns []string) ([]Match, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]Match)
	var excludes []string

	for _, raw := range patterns {
		p, negated := CleanPattern(raw)
		if negated {
			excludes = append(excludes, p)
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", raw)
		}

		base, _ := SplitPattern(p)
		if info, err := fs.Stat(fsys, base); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrBaseMissing, filepath.Join(root, filepath.FromSlash(base)))
		}

		paths, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", raw, err)
		}
		for _, match := range paths {
			if _, ok := seen[match]; ok {
				continue
			}
			rel := match
			if base != "." {
				rel = strings.TrimPrefix(strings.TrimPrefix(match, base), "/")
			}
			seen[match] = Match{Path: match, Base: base, Rel: rel}
		}
	}

	out := make([]Match, 0, len(seen))
	for p, m := range seen {
		if excluded(p, excludes) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// MatchAny reports whether the slash-separated relative path name matches
// one of the patterns, honouring "!" exclusions.
func MatchAny(patterns []string, name string) bool {
	name = path.Clean(filepath.ToSlash(name))
	matched := false
	for _, raw := range patterns {
		p, negated := CleanPattern(raw)
		if negated {
			if ok, _ := doublestar.Match(p, name); ok {
				return false
			}
			continue
		}
		if ok, _ := doublestar.Match(p, name); ok {
			matched = true
		}
	}
	return matched
}

func excluded(name string, excludes []string) bool {
	for _, p := range excludes {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
