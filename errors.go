package acceptor

import (
	"errors"
	"fmt"
)

// RuntimeError reports an operational failure outside any module: bad
// configuration, an unreadable scenario directory, a runner that could not
// start. It maps to exit code 2.
type RuntimeError struct {
	Op  string // phase that failed, e.g. "config" or "run"
	Err error
}

func (e *RuntimeError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("runtime error: %v", e.Err)
	}
	return fmt.Sprintf("runtime error (%s): %v", e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError wraps err as a RuntimeError for the given phase
func NewRuntimeError(op string, err error) *RuntimeError {
	return &RuntimeError{Op: op, Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError reports a run that completed with failing modules (exit
// code 1). It carries the run ID so the full report can be pulled from the
// status server or the logs.
type TestFailureError struct {
	RunID   string
	Summary string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("run %s did not pass: %s", e.RunID, e.Summary)
}

// NewTestFailureError creates a new TestFailureError for the given run
func NewTestFailureError(runID, summary string) *TestFailureError {
	return &TestFailureError{RunID: runID, Summary: summary}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
