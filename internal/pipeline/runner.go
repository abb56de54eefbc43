package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/assetpipe/internal/ctxlog"
	"github.com/specialistvlad/assetpipe/internal/fsutil"
	"github.com/specialistvlad/assetpipe/internal/reload"
)

const defaultCacheSize = 512

// Options configures a Runner.
type Options struct {
	// Root is the working directory source patterns and destinations are
	// resolved against.
	Root string
	// ServeRoot is the directory the dev server publishes. Reload event paths
	// are relative to it.
	ServeRoot string
	// Workers bounds the number of files transformed at once. Zero means
	// GOMAXPROCS.
	Workers int
	// CacheSize is the number of cached file transforms. Zero picks a default.
	CacheSize int
}

// Runner executes pipelines. It is safe for concurrent use.
type Runner struct {
	root      string
	serveRoot string
	workers   int
	cache     *lru.Cache[string, []*File]
}

// NewRunner creates a runner.
func NewRunner(opts Options) (*Runner, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	serveRoot := opts.ServeRoot
	if serveRoot == "" {
		serveRoot = root
	} else if !filepath.IsAbs(serveRoot) {
		serveRoot = filepath.Join(root, serveRoot)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, []*File](size)
	if err != nil {
		return nil, fmt.Errorf("creating transform cache: %w", err)
	}
	return &Runner{root: root, serveRoot: serveRoot, workers: workers, cache: cache}, nil
}

// Result is the outcome of one pipeline run.
type Result struct {
	Task     string
	Matched  int
	Cached   int
	Written  []string
	Failures []*TransformError
	// Err is set when the run as a whole failed.
	Err error
	// Event is the reload event to publish, nil when nothing was produced.
	Event    *reload.Event
	Duration time.Duration
}

// Run executes p once.
func (r *Runner) Run(ctx context.Context, p *Pipeline) *Result {
	start := time.Now()
	logger := ctxlog.FromContext(ctx)
	res := &Result{Task: p.spec.Task}
	defer func() { res.Duration = time.Since(start) }()

	matches, err := fsutil.Glob(r.root, p.spec.Src)
	if err != nil {
		res.Err = &IOError{Op: "glob", Path: strings.Join(p.spec.Src, ","), Err: err}
		logger.Error("Cannot enumerate sources.", "error", res.Err)
		return res
	}
	res.Matched = len(matches)
	if len(matches) == 0 {
		logger.Debug("No files matched.", "src", p.spec.Src)
		return res
	}

	if p.spec.Dest == "" {
		paths := make([]string, 0, len(matches))
		for _, m := range matches {
			paths = append(paths, r.servePath(filepath.Join(r.root, filepath.FromSlash(m.Path))))
		}
		res.Event = r.event(p, paths)
		return res
	}

	outputs, failures, cached, err := r.transformAll(ctx, logger, p, matches)
	res.Failures = failures
	res.Cached = cached
	if err != nil {
		res.Err = err
		return res
	}

	if p.spec.Bundle != nil && len(outputs) > 0 {
		bundled, rejected, err := p.spec.Bundle.Bundle(ctx, outputs)
		if err != nil {
			res.Err = &TransformError{File: p.spec.Dest, Step: p.spec.Bundle.Name(), Err: err}
			logger.Error("Bundle failed.", "step", p.spec.Bundle.Name(), "error", err)
			return res
		}
		for _, te := range rejected {
			logger.Error("Transform failed.", "file", te.File, "step", te.Step, "error", te.Err)
		}
		res.Failures = append(res.Failures, rejected...)
		outputs = nil
		if bundled != nil {
			outputs = []*File{bundled}
		}
	}

	var written []string
	for _, f := range outputs {
		name, err := r.write(p, f)
		if err != nil {
			te := &TransformError{File: f.Source, Step: "write", Err: err}
			res.Failures = append(res.Failures, te)
			logger.Error("Write failed.", "file", f.Source, "error", err)
			continue
		}
		written = append(written, name)
	}
	res.Written = written

	if len(written) == 0 && len(res.Failures) > 0 {
		res.Err = &FailedError{Task: p.spec.Task, Failures: res.Failures}
		return res
	}
	if len(written) > 0 {
		res.Event = r.event(p, r.eventPaths(p, written))
	}
	logger.Info("Pipeline finished.", "matched", res.Matched, "written", len(written), "failed", len(res.Failures), "cached", cached)
	return res
}

// transformAll runs every matched file through the steps. Outputs are
// returned in match order regardless of completion order.
func (r *Runner) transformAll(ctx context.Context, logger *slog.Logger, p *Pipeline, matches []fsutil.Match) ([]*File, []*TransformError, int, error) {
	perFile := make([][]*File, len(matches))
	errs := make([]*TransformError, len(matches))
	var (
		mu     sync.Mutex
		cached int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, m := range matches {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, hit, err := r.transform(gctx, p, m)
			if err != nil {
				var te *TransformError
				if !errors.As(err, &te) {
					te = &TransformError{File: m.Path, Step: "read", Err: err}
				}
				errs[i] = te
				logger.Error("Transform failed.", "file", te.File, "step", te.Step, "error", te.Err)
				return nil
			}
			if hit {
				mu.Lock()
				cached++
				mu.Unlock()
			}
			perFile[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, 0, err
	}

	var (
		outputs  []*File
		failures []*TransformError
	)
	for i := range matches {
		if errs[i] != nil {
			failures = append(failures, errs[i])
			continue
		}
		outputs = append(outputs, perFile[i]...)
	}
	return outputs, failures, cached, nil
}

func (r *Runner) transform(ctx context.Context, p *Pipeline, m fsutil.Match) ([]*File, bool, error) {
	abs := filepath.Join(r.root, filepath.FromSlash(m.Path))
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, false, &TransformError{File: m.Path, Step: "read", Err: &IOError{Op: "read", Path: abs, Err: err}}
	}

	var key string
	if p.spec.Cache {
		sum := sha256.Sum256(data)
		key = p.spec.Task + "\x00" + m.Path + "\x00" + hex.EncodeToString(sum[:])
		if out, ok := r.cache.Get(key); ok {
			return cloneAll(out), true, nil
		}
	}

	info, err := os.Stat(abs)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	files := []*File{{Path: m.Rel, Source: m.Path, SourcePath: abs, Contents: data, Mode: mode}}
	for _, step := range p.spec.Steps {
		var next []*File
		for _, f := range files {
			out, err := step.Apply(ctx, f)
			if err != nil {
				return nil, false, &TransformError{File: m.Path, Step: step.Name(), Err: err}
			}
			next = append(next, out...)
		}
		files = next
		if len(files) == 0 {
			break
		}
	}

	if p.spec.Cache {
		r.cache.Add(key, cloneAll(files))
	}
	return files, false, nil
}

func (r *Runner) write(p *Pipeline, f *File) (string, error) {
	clean := path.Clean("/" + f.Path)[1:]
	if clean == "" {
		return "", fmt.Errorf("empty output path for %s", f.Source)
	}
	name := filepath.Join(r.root, filepath.FromSlash(p.spec.Dest), filepath.FromSlash(clean))
	mode := f.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := fsutil.WriteFileAtomic(name, f.Contents, mode); err != nil {
		return "", &IOError{Op: "write", Path: name, Err: err}
	}
	return name, nil
}

// eventPaths picks the paths a client should act on. Style-only events only
// carry stylesheets; source maps and other siblings are left out.
func (r *Runner) eventPaths(p *Pipeline, written []string) []string {
	var out []string
	for _, name := range written {
		if p.spec.Reload == reload.ScopeStyleOnly && strings.ToLower(filepath.Ext(name)) != ".css" {
			continue
		}
		out = append(out, r.servePath(name))
	}
	sort.Strings(out)
	return out
}

func (r *Runner) event(p *Pipeline, paths []string) *reload.Event {
	if p.spec.Reload == reload.ScopeNone {
		return nil
	}
	e := reload.NewEvent(p.spec.Reload, p.spec.Task, paths...)
	return &e
}

// servePath returns name relative to the serve root, slash separated. Files
// outside the serve root keep their path relative to the working directory.
func (r *Runner) servePath(name string) string {
	if rel, err := filepath.Rel(r.serveRoot, name); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	if rel, err := filepath.Rel(r.root, name); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(name)
}

func cloneAll(files []*File) []*File {
	out := make([]*File, len(files))
	for i, f := range files {
		out[i] = f.Clone()
	}
	return out
}
