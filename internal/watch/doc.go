// Package watch turns file system changes into task runs.
//
// A Dispatcher owns a set of bindings, each mapping glob patterns to an
// ordered list of tasks. Changes are debounced per binding, so a burst of
// writes triggers a single run. Each binding runs independently of the
// others; a change arriving while its binding is running queues one rerun.
package watch
