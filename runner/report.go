package runner

import (
	"sort"
	"time"

	"github.com/servicelab/svc-acceptor/types"
)

// ResultStats tracks per-status counts at the service and run level.
type ResultStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
	Errored int
}

func (s *ResultStats) record(status types.TestStatus) {
	s.Total++
	switch status {
	case types.TestStatusPass:
		s.Passed++
	case types.TestStatusFail:
		s.Failed++
	case types.TestStatusSkip:
		s.Skipped++
	case types.TestStatusError:
		s.Errored++
	}
}

// ServiceReport collects one service's results in module order.
type ServiceReport struct {
	Name        string
	Results     []*types.TestResult
	Stats       ResultStats
	Status      types.TestStatus
	Duration    time.Duration // sum of module durations for this service
	Unavailable bool          // discovery or client construction failed
	Err         error         // cause when Unavailable
}

// RunReport is the aggregated outcome of one run. It is built incrementally
// as results arrive and finalized when every dispatched service run has
// completed or been cancelled. Once finalized it contains exactly one
// TestResult per discovered module that was scheduled.
type RunReport struct {
	RunID    string
	Services map[string]*ServiceReport
	Stats    ResultStats
	Status   types.TestStatus
	Duration time.Duration // wall clock of the whole run
	Start    time.Time
	Complete bool
}

// ServiceNames returns the report's service names in sorted order, giving
// the report a deterministic iteration order regardless of which workers
// finished first.
func (r *RunReport) ServiceNames() []string {
	names := make([]string, 0, len(r.Services))
	for name := range r.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllPassed reports whether every non-skipped result passed; the external
// CLI maps this to the process exit code.
func (r *RunReport) AllPassed() bool {
	for _, svc := range r.Services {
		if svc.Unavailable {
			return false
		}
	}
	return r.Stats.Failed == 0 && r.Stats.Errored == 0
}

func determineServiceStatus(svc *ServiceReport) types.TestStatus {
	if svc.Unavailable {
		return types.TestStatusError
	}
	if len(svc.Results) == 0 {
		return types.TestStatusSkip
	}

	allSkipped := true
	anyFailed := false
	anyErrored := false
	for _, res := range svc.Results {
		if res.Status != types.TestStatusSkip {
			allSkipped = false
		}
		if res.Status == types.TestStatusFail {
			anyFailed = true
		}
		if res.Status == types.TestStatusError {
			anyErrored = true
		}
	}
	return determineStatusFromFlags(allSkipped, anyFailed, anyErrored)
}

func determineRunStatus(r *RunReport) types.TestStatus {
	if len(r.Services) == 0 {
		return types.TestStatusSkip
	}

	allSkipped := true
	anyFailed := false
	anyErrored := false
	for _, svc := range r.Services {
		if svc.Status != types.TestStatusSkip {
			allSkipped = false
		}
		if svc.Status == types.TestStatusFail {
			anyFailed = true
		}
		if svc.Status == types.TestStatusError {
			anyErrored = true
		}
	}
	return determineStatusFromFlags(allSkipped, anyFailed, anyErrored)
}

func determineStatusFromFlags(allSkipped, anyFailed, anyErrored bool) types.TestStatus {
	if allSkipped {
		return types.TestStatusSkip
	}
	if anyErrored {
		return types.TestStatusError
	}
	if anyFailed {
		return types.TestStatusFail
	}
	return types.TestStatusPass
}
