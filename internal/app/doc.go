// Package app wires a build model into a running tool: it registers every
// task with its action, owns the pipeline runner, the reload notifiers, the
// dev servers and the watchers, and drives a run from the first task to
// shutdown. It is decoupled from any specific entrypoint like the CLI.
package app
