package acceptor

import (
	"fmt"
	"time"

	"github.com/servicelab/svc-acceptor/reporting"
	"github.com/servicelab/svc-acceptor/runner"
)

// printResults renders the run report to stdout as a console table followed
// by a one-line summary.
func (a *Acceptor) printResults(result *runner.RunReport) error {
	formatter := reporting.NewTableFormatter()
	out, err := formatter.Format(result)
	if err != nil {
		return err
	}
	if err := (reporting.StdoutWriter{}).Write(out); err != nil {
		return err
	}
	fmt.Println(summaryLine(result))
	return nil
}

// summaryLine renders the one-line outcome of a run.
func summaryLine(result *runner.RunReport) string {
	return fmt.Sprintf("run %s: %s", result.RunID, statsLine(result))
}

// statsLine renders the outcome without the run ID, for callers that carry
// the ID separately.
func statsLine(result *runner.RunReport) string {
	return fmt.Sprintf("%s (%d modules: %d passed, %d failed, %d skipped, %d errored) in %s",
		result.Status,
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Stats.Skipped,
		result.Stats.Errored,
		result.Duration.Truncate(time.Millisecond))
}
