// Package pipeline runs a task's files through an ordered list of steps and
// writes the results into the build tree.
//
// Every matched file is transformed independently: a step failing on one file
// only drops that file's outputs, siblings are still written. Outputs are
// written atomically. When the run produced anything, the Result carries the
// reload event the caller should publish; the runner never notifies clients
// itself.
package pipeline
