package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/specialistvlad/assetpipe/internal/ctxlog"
	"github.com/specialistvlad/assetpipe/internal/devserver"
	"github.com/specialistvlad/assetpipe/internal/pipeline"
	"github.com/specialistvlad/assetpipe/internal/reload"
	"github.com/specialistvlad/assetpipe/internal/task"
	"github.com/specialistvlad/assetpipe/internal/watch"
)

// pipelineAction builds the task's steps and returns an action running the
// pipeline once. Per-file failures are logged by the runner and do not fail
// the task; only a failure of the whole run is returned.
func (a *App) pipelineAction(t *config.Task) (task.Action, error) {
	spec := t.Pipeline
	scope, ok := reload.ParseScope(spec.Reload)
	if !ok {
		return nil, fmt.Errorf("reload %q is not one of full-page, style-only, none", spec.Reload)
	}

	ps := pipeline.Spec{
		Task:   t.Name,
		Src:    spec.Src,
		Dest:   spec.Dest,
		Reload: scope,
		Cache:  spec.Cache,
	}
	for _, s := range spec.Steps {
		step, err := a.steps.BuildStep(s)
		if err != nil {
			return nil, fmt.Errorf("step %q at %s: %w", s.Name, s.Pos, err)
		}
		ps.Steps = append(ps.Steps, step)
	}
	if spec.Bundle != nil {
		bundle, err := a.steps.BuildBundler(spec.Bundle)
		if err != nil {
			return nil, fmt.Errorf("bundle %q at %s: %w", spec.Bundle.Name, spec.Bundle.Pos, err)
		}
		ps.Bundle = bundle
	}
	p, err := pipeline.New(ps)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		res := a.runner.Run(ctx, p)
		if res.Event != nil {
			a.notifier.Notify(*res.Event)
		}
		return res.Err
	}, nil
}

// server is a dev server started at most once per App.
type server struct {
	name    string
	srv     *devserver.Server
	started bool
}

func (a *App) serveAction(t *config.Task) task.Action {
	spec := t.Serve
	port := spec.Port
	if a.config.Port > 0 {
		port = a.config.Port
	}
	opts := devserver.Options{
		Root:   a.abs(spec.Root),
		Host:   spec.Host,
		Port:   port,
		Reload: a.hub,
	}
	if spec.SocketIO && a.socketIO != nil {
		opts.SocketIO = a.socketIO.Handler()
	}
	s := &server{name: t.Name, srv: devserver.New(opts)}

	a.mu.Lock()
	a.servers = append(a.servers, s)
	a.mu.Unlock()

	return func(ctx context.Context) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		if s.started {
			ctxlog.FromContext(ctx).Debug("Dev server already running.", "url", s.srv.URL())
			return nil
		}
		if err := os.MkdirAll(opts.Root, 0o755); err != nil {
			return fmt.Errorf("cannot create serve root: %w", err)
		}
		if err := s.srv.Serve(ctx); err != nil {
			return err
		}
		s.started = true
		ctxlog.FromContext(ctx).Info("Serving build output.", "url", s.srv.URL(), "root", opts.Root)
		return nil
	}
}

// watcher is a file watch started at most once per App.
type watcher struct {
	name       string
	spec       *config.WatchSpec
	dispatcher *watch.Dispatcher
}

func (a *App) watchAction(t *config.Task) task.Action {
	w := &watcher{name: t.Name, spec: t.Watch}
	bindings := make([]watch.Binding, 0, len(t.Watch.Bindings))
	for _, b := range t.Watch.Bindings {
		bindings = append(bindings, watch.Binding{Pattern: b.Pattern, Tasks: b.Run})
	}

	a.mu.Lock()
	a.watchers = append(a.watchers, w)
	a.mu.Unlock()

	return func(ctx context.Context) error {
		logger := ctxlog.FromContext(ctx)

		a.mu.Lock()
		defer a.mu.Unlock()
		if w.dispatcher != nil {
			logger.Debug("Watcher already running.")
			return nil
		}

		source, err := watch.NewFSSource(a.root)
		if err != nil {
			return fmt.Errorf("cannot start file watcher: %w", err)
		}
		dirs := watch.Dirs(bindings)
		for _, dir := range dirs {
			// Output directories may not exist before the first build.
			if err := os.MkdirAll(a.abs(dir), 0o755); err != nil {
				_ = source.Close()
				return fmt.Errorf("cannot create watched directory %s: %w", dir, err)
			}
			if err := source.AddRecursive(dir); err != nil {
				_ = source.Close()
				return fmt.Errorf("cannot watch %s: %w", dir, err)
			}
		}

		w.dispatcher = watch.NewDispatcher(source, bindings, a.runWatched, w.spec.Debounce)
		w.dispatcher.Start(ctx)
		logger.Info("Watching for changes.", "dirs", dirs, "bindings", len(bindings))
		return nil
	}
}

// runWatched runs a task triggered by a file change, including its
// dependencies.
func (a *App) runWatched(ctx context.Context, name string) error {
	report, err := a.exec.Run(ctx, name)
	if err != nil {
		return err
	}
	return report.Err()
}

func (a *App) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.root, filepath.FromSlash(p))
}
