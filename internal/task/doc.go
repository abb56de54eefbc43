// Package task holds the task registry and the executor that runs a task
// together with its dependencies.
//
// Tasks must be registered after everything they depend on, so forward
// references are rejected at registration time instead of silently resolving
// to nothing later. Resolution still checks the graph for cycles.
//
// The executor starts a task only after all of its dependencies finished,
// runs unrelated tasks concurrently on a bounded number of workers and keeps
// going when one task fails: only the failed task's dependents are skipped.
package task
