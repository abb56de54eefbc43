package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/specialistvlad/assetpipe/internal/config"
	"github.com/specialistvlad/assetpipe/internal/ctxlog"
	"github.com/specialistvlad/assetpipe/internal/devserver"
)

// Run executes name and its dependencies; an empty name runs the model's
// default task. Failing tasks are logged and skip their dependents only.
//
// A *devserver.ServerError is fatal and returned. When a dev server or a
// watcher was started, Run blocks until ctx is cancelled, shuts everything
// down and returns nil. Otherwise it returns the failures of the run, if any.
func (a *App) Run(ctx context.Context, name string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if name == "" {
		name = a.model.Default
	}
	if name == "" {
		return &config.ConfigurationError{Subject: a.model.Source, Err: errors.New("no task given and no default task declared")}
	}

	a.logger.Info("Starting tasks...", "task", name)
	report, err := a.exec.Run(ctx, name)
	if err != nil {
		a.shutdown(ctx)
		return err
	}

	for _, n := range report.Order {
		var srvErr *devserver.ServerError
		if errors.As(report.Outcomes[n].Err, &srvErr) {
			a.logger.Error("Dev server could not start.", "task", n, "error", srvErr)
			a.shutdown(ctx)
			return srvErr
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		a.logger.Warn("Some tasks failed.", "failed", failed)
	} else {
		a.logger.Info("Tasks finished.", "task", name)
	}

	if !a.longRunning() {
		a.shutdown(ctx)
		return report.Err()
	}

	<-ctx.Done()
	a.logger.Info("Shutdown requested.")
	a.shutdown(ctx)
	a.logger.Debug("App.Run method finished.")
	return nil
}

// longRunning reports whether a dev server or a watcher is active.
func (a *App) longRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.servers {
		if s.started {
			return true
		}
	}
	for _, w := range a.watchers {
		if w.dispatcher != nil {
			return true
		}
	}
	return false
}

// shutdown stops watchers first so no new runs start, then the servers and
// the reload transports. It is safe to call more than once.
func (a *App) shutdown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	a.mu.Lock()
	var dispatchers []*watcher
	for _, w := range a.watchers {
		if w.dispatcher != nil {
			dispatchers = append(dispatchers, w)
		}
	}
	servers := append([]*server(nil), a.servers...)
	a.mu.Unlock()

	for _, w := range dispatchers {
		if err := w.dispatcher.Stop(); err != nil {
			a.logger.Warn("Watcher did not stop cleanly.", "task", w.name, "error", err)
		}
	}
	for _, s := range servers {
		if err := s.srv.Shutdown(ctx); err != nil {
			a.logger.Warn("Dev server did not shut down cleanly.", "task", s.name, "error", err)
		}
	}
	a.closeOnce.Do(func() {
		a.hub.Close()
		if a.socketIO != nil {
			a.socketIO.Close()
		}
	})
}

// List writes the declared tasks, their kinds and dependencies.
func (a *App) List(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tKIND\tDEPENDS ON")
	for _, t := range a.model.Tasks {
		name := t.Name
		if name == a.model.Default {
			name += " (default)"
		}
		deps := "-"
		if len(t.DependsOn) > 0 {
			deps = strings.Join(t.DependsOn, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, t.Kind, deps)
	}
	return tw.Flush()
}

// Close releases the reload transports of an App that was never run.
func (a *App) Close() {
	a.shutdown(context.Background())
}

// URLs returns the base URLs of the running dev servers.
func (a *App) URLs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, s := range a.servers {
		if s.started {
			out = append(out, s.srv.URL())
		}
	}
	return out
}
