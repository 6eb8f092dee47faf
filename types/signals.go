package types

import (
	"errors"
	"fmt"
)

// SkipError is the explicit skip signal a module returns when it decides not
// to run. The orchestrator maps it to TestStatusSkip; it is never treated as
// a failure.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skipped: %s", e.Reason)
}

// NewSkipError creates a new SkipError with the supplied reason.
func NewSkipError(reason string) *SkipError {
	return &SkipError{Reason: reason}
}

// IsSkip checks if the error is or wraps a SkipError.
func IsSkip(err error) bool {
	var skipErr *SkipError
	return err != nil && errors.As(err, &skipErr)
}

// AssertionError represents a test expectation that was not met. The
// orchestrator maps it to TestStatusFail; any other error returned by a
// module maps to TestStatusError.
type AssertionError struct {
	Field    string // what was being checked, e.g. "status" or a JSON field path
	Expected any
	Actual   any
	Msg      string // optional extra detail
}

func (e *AssertionError) Error() string {
	s := fmt.Sprintf("assertion failed on %s: expected %v, got %v", e.Field, e.Expected, e.Actual)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

// NewAssertionError creates a new AssertionError.
func NewAssertionError(field string, expected, actual any) *AssertionError {
	return &AssertionError{Field: field, Expected: expected, Actual: actual}
}

// IsAssertionFailure checks if the error is or wraps an AssertionError.
func IsAssertionFailure(err error) bool {
	var assertErr *AssertionError
	return err != nil && errors.As(err, &assertErr)
}
