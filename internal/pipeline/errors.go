package pipeline

import "fmt"

// TransformError reports a single file failing a step. It never aborts the
// rest of the run.
type TransformError struct {
	File string
	Step string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%s: step %s: %v", e.File, e.Step, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// IOError reports a file system failure that is not tied to one transform,
// such as a missing source directory.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// FailedError is returned for a run in which files matched but none could
// be produced.
type FailedError struct {
	Task     string
	Failures []*TransformError
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("task %s: all %d file(s) failed; first: %v", e.Task, len(e.Failures), e.Failures[0])
}
