package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/specialistvlad/assetpipe/internal/ctxlog"
	"github.com/specialistvlad/assetpipe/internal/hcl"
	"github.com/specialistvlad/assetpipe/internal/pipeline"
	"github.com/specialistvlad/assetpipe/internal/presets"
	"github.com/specialistvlad/assetpipe/internal/registry"
	"github.com/specialistvlad/assetpipe/internal/reload"
	"github.com/specialistvlad/assetpipe/internal/task"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	root     string
	model    *config.Model
	steps    *registry.Registry
	tasks    *task.Registry
	exec     *task.Executor
	runner   *pipeline.Runner
	hub      *reload.Hub
	socketIO *reload.SocketIO
	notifier reload.Notifier

	mu        sync.Mutex
	servers   []*server
	watchers  []*watcher
	closeOnce sync.Once
}

// NewApp loads the build model and registers every task. loader may be nil,
// in which case cfg.ConfigPath selects the HCL loader and anything else the
// embedded presets. Modules default to all compiled-in step modules. Any
// problem with the model is returned as a *config.ConfigurationError.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	root, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve project directory %q: %w", cfg.Dir, err)
	}

	target := cfg.Preset
	if cfg.ConfigPath != "" {
		target = cfg.ConfigPath
	}
	if loader == nil {
		if cfg.ConfigPath != "" {
			loader = hcl.NewLoader()
		} else {
			loader = presets.Loader{}
		}
	}
	model, err := loader.Load(ctx, target)
	if err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded.", "source", model.Source, "tasks", len(model.Tasks))

	steps := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(steps)
	}
	logger.Debug("All step modules registered.", "count", len(modules))

	runner, err := pipeline.NewRunner(pipeline.Options{
		Root:      root,
		ServeRoot: serveRoot(model),
		Workers:   cfg.Workers,
		CacheSize: cfg.CacheSize,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		root:   root,
		model:  model,
		steps:  steps,
		tasks:  task.NewRegistry(),
		runner: runner,
		hub:    reload.NewHub(ctx),
	}
	notifiers := reload.Multi{a.hub}
	if wantsSocketIO(model) {
		a.socketIO = reload.NewSocketIO(ctx)
		notifiers = append(notifiers, a.socketIO)
	}
	a.notifier = notifiers

	if err := a.registerTasks(ctx); err != nil {
		a.hub.Close()
		if a.socketIO != nil {
			a.socketIO.Close()
		}
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = len(model.Tasks)
	}
	a.exec = task.NewExecutor(a.tasks, workers)

	logger.Info("Step handlers registered:", "count", len(steps.StepNames()), "keys", steps.StepNames())
	logger.Info("Bundlers registered:", "count", len(steps.BundlerNames()), "keys", steps.BundlerNames())
	return a, nil
}

// registerTasks turns every declared task into a registered task with its
// action, in declaration order.
func (a *App) registerTasks(ctx context.Context) error {
	for _, t := range a.model.Tasks {
		var (
			action task.Action
			err    error
		)
		switch t.Kind {
		case config.KindPipeline:
			action, err = a.pipelineAction(t)
		case config.KindServe:
			action = a.serveAction(t)
		case config.KindWatch:
			action = a.watchAction(t)
		case config.KindGroup:
		}
		if err == nil {
			err = a.tasks.Register(t.Name, t.DependsOn, action)
		}
		if err != nil {
			var cfgErr *config.ConfigurationError
			if errors.As(err, &cfgErr) {
				return err
			}
			return &config.ConfigurationError{Subject: fmt.Sprintf("task %q (%s)", t.Name, t.Pos), Err: err}
		}
		ctxlog.FromContext(ctx).Debug("Task registered.", "task", t.Name, "kind", t.Kind, "depends_on", t.DependsOn)
	}
	return nil
}

// Model returns the loaded build model.
func (a *App) Model() *config.Model {
	return a.model
}

// Registry returns the application's step registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.steps
}

// Tasks returns the application's task registry.
func (a *App) Tasks() *task.Registry {
	return a.tasks
}

// Notifier returns the fan-out of every reload transport.
func (a *App) Notifier() reload.Notifier {
	return a.notifier
}

// serveRoot is the directory reload event paths are relative to.
func serveRoot(m *config.Model) string {
	for _, t := range m.Tasks {
		if t.Kind == config.KindServe && t.Serve != nil {
			return t.Serve.Root
		}
	}
	return m.Paths.Build
}

func wantsSocketIO(m *config.Model) bool {
	for _, t := range m.Tasks {
		if t.Kind == config.KindServe && t.Serve != nil && t.Serve.SocketIO {
			return true
		}
	}
	return false
}
