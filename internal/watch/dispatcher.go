package watch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/specialistvlad/assetpipe/internal/ctxlog"
	"github.com/specialistvlad/assetpipe/internal/fsutil"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 100 * time.Millisecond

// Binding maps glob patterns to the tasks run, in order, when a matching
// path changes.
type Binding struct {
	Pattern []string
	Tasks   []string
}

// RunFunc runs a single task.
type RunFunc func(ctx context.Context, task string) error

// Dispatcher routes events from a Source to bindings.
type Dispatcher struct {
	source   Source
	run      RunFunc
	debounce time.Duration
	bindings []*binding

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup
	loopWg  sync.WaitGroup
}

type binding struct {
	Binding
	mu    sync.Mutex
	timer *time.Timer
	// gen identifies the latest armed timer; a timer that fires with an
	// older generation was superseded.
	gen     uint64
	running bool
	pending bool
}

// NewDispatcher creates a dispatcher. A zero debounce uses DefaultDebounce.
func NewDispatcher(source Source, bindings []Binding, run RunFunc, debounce time.Duration) *Dispatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	d := &Dispatcher{source: source, run: run, debounce: debounce}
	for _, b := range bindings {
		d.bindings = append(d.bindings, &binding{Binding: b})
	}
	return d
}

// Start begins consuming events. It returns immediately.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil || d.stopped {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.loopWg.Add(1)
	go d.loop()
}

// Stop cancels pending triggers, closes the source and waits for running
// tasks to finish. It is safe to call more than once.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	for _, b := range d.bindings {
		b.mu.Lock()
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
		b.gen++
		b.pending = false
		b.mu.Unlock()
	}

	err := d.source.Close()
	d.loopWg.Wait()
	d.wg.Wait()
	return err
}

func (d *Dispatcher) loop() {
	defer d.loopWg.Done()
	logger := ctxlog.FromContext(d.ctx)
	for {
		select {
		case <-d.ctx.Done():
			return
		case ev, ok := <-d.source.Events():
			if !ok {
				return
			}
			d.dispatch(ev)
		case err, ok := <-d.source.Errors():
			if !ok {
				return
			}
			logger.Warn("File watcher error.", "error", err)
		}
	}
}

func (d *Dispatcher) dispatch(ev Event) {
	logger := ctxlog.FromContext(d.ctx)
	for _, b := range d.bindings {
		if !fsutil.MatchAny(b.Pattern, ev.Path) {
			continue
		}
		logger.Debug("Change matched binding.", "path", ev.Path, "op", ev.Op.String(), "tasks", b.Tasks)
		b.mu.Lock()
		if b.timer != nil {
			b.timer.Stop()
		}
		b.gen++
		gen := b.gen
		b.timer = time.AfterFunc(d.debounce, func() { d.fire(b, gen) })
		b.mu.Unlock()
	}
}

// fire runs when a binding's debounce window closes.
func (d *Dispatcher) fire(b *binding, gen uint64) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	if b.running {
		b.pending = true
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		for {
			d.runTasks(b)

			b.mu.Lock()
			if b.pending && d.ctx.Err() == nil {
				b.pending = false
				b.mu.Unlock()
				continue
			}
			b.running = false
			b.pending = false
			b.mu.Unlock()
			return
		}
	}()
}

// runTasks runs the binding's tasks in order. A failing task is logged and
// the remaining tasks still run.
func (d *Dispatcher) runTasks(b *binding) {
	logger := ctxlog.FromContext(d.ctx)
	for _, task := range b.Tasks {
		if d.ctx.Err() != nil {
			return
		}
		if err := d.run(d.ctx, task); err != nil {
			logger.Error("Watched task failed.", "task", task, "error", err)
		}
	}
}

// Dirs returns the distinct static base directories of the bindings'
// patterns, sorted. These are the directories a Source must watch.
func Dirs(bindings []Binding) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range bindings {
		for _, p := range b.Pattern {
			if _, negated := fsutil.CleanPattern(p); negated {
				continue
			}
			base, _ := fsutil.SplitPattern(p)
			if !seen[base] {
				seen[base] = true
				out = append(out, base)
			}
		}
	}
	sort.Strings(out)
	return out
}
