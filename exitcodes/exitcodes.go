// Package exitcodes defines the standard exit codes used by svc-acceptor.
package exitcodes

// Exit code constants used by svc-acceptor
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when all modules pass
// * TestFailure (1): Used when one or more modules fail their expectations
// * RuntimeErr (2): Used for runtime errors such as bad configuration, panics or timeouts
const (
	Success     = 0 // All modules pass
	TestFailure = 1 // Module failures
	RuntimeErr  = 2 // Runtime errors or timeouts
)
