package types

import "time"

// TestResult captures the outcome of a single module invocation. Exactly one
// TestResult is produced per scheduled module, including modules never
// reached because of fail-fast or cancellation.
type TestResult struct {
	Metadata ModuleDescriptor
	Status   TestStatus
	Error    error         // cause for Error results, assertion detail for Fail
	Reason   string        // reason for Skip results
	Duration time.Duration // wall clock of the invocation
	Start    time.Time
	Attempts int // HTTP attempts issued during the invocation, retries included
}
