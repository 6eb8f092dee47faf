package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"

	"github.com/servicelab/svc-acceptor/runner"
	"github.com/servicelab/svc-acceptor/types"
)

// ReportFormatter renders an aggregated run report into a display format.
type ReportFormatter interface {
	Format(report *runner.RunReport) (string, error)
}

// ReportWriter writes a rendered report to a destination.
type ReportWriter interface {
	Write(content string) error
}

// FileWriter writes reports to a file.
type FileWriter struct {
	path string
}

// NewFileWriter creates a new file writer.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

func (fw *FileWriter) Write(content string) error {
	return os.WriteFile(fw.path, []byte(content), 0644)
}

// StdoutWriter writes reports to stdout.
type StdoutWriter struct{}

func (StdoutWriter) Write(content string) error {
	_, err := fmt.Print(content)
	return err
}

// getStatusDisplay returns human-readable status text.
func getStatusDisplay(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "PASS"
	case types.TestStatusFail:
		return "FAIL"
	case types.TestStatusSkip:
		return "SKIP"
	case types.TestStatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// TableFormatter renders the report as a console table, one row per module
// grouped under its service.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Format renders the report. Services appear in sorted name order; modules
// appear in execution order.
func (f *TableFormatter) Format(report *runner.RunReport) (string, error) {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Acceptance Results %s (%s)", report.RunID, formatDuration(report.Duration)))

	t.AppendHeader(table.Row{
		"Service", "Module", "Duration", "Status", "Detail",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Service", AutoMerge: true},
		{Name: "Module", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Detail", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, name := range report.ServiceNames() {
		svc := report.Services[name]

		if svc.Unavailable {
			detail := ""
			if svc.Err != nil {
				detail = svc.Err.Error()
			}
			t.AppendRow(table.Row{name, "(unavailable)", "-", getStatusDisplay(svc.Status), detail})
			t.AppendSeparator()
			continue
		}

		for i, res := range svc.Results {
			prefix := "├─"
			if i == len(svc.Results)-1 {
				prefix = "└─"
			}
			detail := res.Reason
			if res.Error != nil {
				detail = res.Error.Error()
			}
			t.AppendRow(table.Row{
				name,
				fmt.Sprintf("%s %s", prefix, res.Metadata.Name),
				formatDuration(res.Duration),
				getStatusDisplay(res.Status),
				detail,
			})
		}
		t.AppendRow(table.Row{
			name,
			fmt.Sprintf("total: %d passed, %d failed, %d skipped, %d errored",
				svc.Stats.Passed, svc.Stats.Failed, svc.Stats.Skipped, svc.Stats.Errored),
			formatDuration(svc.Duration),
			getStatusDisplay(svc.Status),
			"",
		})
		t.AppendSeparator()
	}

	switch report.Status {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d modules", report.Stats.Total),
		formatDuration(report.Duration),
		getStatusDisplay(report.Status),
		"",
	})

	return t.Render() + "\n", nil
}

// JSON report schema. Field names are part of the external contract consumed
// by CI tooling; changes here are breaking.
type jsonReport struct {
	RunID      string        `json:"run_id"`
	Status     string        `json:"status"`
	Start      time.Time     `json:"start"`
	DurationMS int64         `json:"duration_ms"`
	Complete   bool          `json:"complete"`
	Stats      jsonStats     `json:"stats"`
	Services   []jsonService `json:"services"`
}

type jsonStats struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

type jsonService struct {
	Name        string       `json:"name"`
	Status      string       `json:"status"`
	DurationMS  int64        `json:"duration_ms"`
	Unavailable bool         `json:"unavailable,omitempty"`
	Error       string       `json:"error,omitempty"`
	Stats       jsonStats    `json:"stats"`
	Modules     []jsonModule `json:"modules"`
}

type jsonModule struct {
	Name       string `json:"name"`
	Ordinal    int    `json:"ordinal"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Attempts   int    `json:"attempts,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// JSONFormatter renders the report as machine-readable JSON with a stable
// schema and deterministic service ordering.
type JSONFormatter struct {
	Indent bool
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{Indent: true}
}

// Format renders the report as JSON.
func (f *JSONFormatter) Format(report *runner.RunReport) (string, error) {
	out := jsonReport{
		RunID:      report.RunID,
		Status:     string(report.Status),
		Start:      report.Start,
		DurationMS: report.Duration.Milliseconds(),
		Complete:   report.Complete,
		Stats:      toJSONStats(report.Stats),
		Services:   make([]jsonService, 0, len(report.Services)),
	}

	for _, name := range report.ServiceNames() {
		svc := report.Services[name]
		js := jsonService{
			Name:        svc.Name,
			Status:      string(svc.Status),
			DurationMS:  svc.Duration.Milliseconds(),
			Unavailable: svc.Unavailable,
			Stats:       toJSONStats(svc.Stats),
			Modules:     make([]jsonModule, 0, len(svc.Results)),
		}
		if svc.Err != nil {
			js.Error = svc.Err.Error()
		}
		for _, res := range svc.Results {
			jm := jsonModule{
				Name:       res.Metadata.Name,
				Ordinal:    res.Metadata.Ordinal,
				Status:     string(res.Status),
				DurationMS: res.Duration.Milliseconds(),
				Attempts:   res.Attempts,
				Reason:     res.Reason,
			}
			if res.Error != nil {
				jm.Error = res.Error.Error()
			}
			js.Modules = append(js.Modules, jm)
		}
		out.Services = append(out.Services, js)
	}

	var data []byte
	var err error
	if f.Indent {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		return "", errors.Wrap(err, "marshaling report")
	}
	return string(data) + "\n", nil
}

func toJSONStats(s runner.ResultStats) jsonStats {
	return jsonStats{
		Total:   s.Total,
		Passed:  s.Passed,
		Failed:  s.Failed,
		Skipped: s.Skipped,
		Errored: s.Errored,
	}
}
