package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gaurav-prasanna/editalpipe/core"
)

// Status is the final state of one record.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// RecordOutcome is the per-record line of a BatchReport.
type RecordOutcome struct {
	Index     int            `json:"index"`
	Name      string         `json:"name"`
	Record    core.Record    `json:"record"`
	Status    Status         `json:"status"`
	Strategy  core.Strategy  `json:"strategy,omitempty"`
	SourceURL string         `json:"source_url,omitempty"`
	Attempts  int            `json:"attempts,omitempty"`
	Kind      core.ErrorKind `json:"kind,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Error     string         `json:"error,omitempty"`
	Outputs   []string       `json:"outputs,omitempty"`
}

func (o RecordOutcome) fail(err error) RecordOutcome {
	o.Status = StatusFailed
	o.Kind = core.KindOf(err)
	o.Reason = core.ReasonOf(err)
	o.Error = err.Error()
	return o
}

// BatchReport aggregates the outcomes of one run.
type BatchReport struct {
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Total       int             `json:"total"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Interrupted bool            `json:"interrupted,omitempty"`
	Outcomes    []RecordOutcome `json:"outcomes"`
}

func (r *BatchReport) add(o RecordOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Status == StatusSucceeded {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// Failures returns the failed outcomes in record order.
func (r *BatchReport) Failures() []RecordOutcome {
	var out []RecordOutcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// WriteReport stores report as dir/<run-id>.json and returns the path.
func WriteReport(dir string, report *BatchReport) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}
	path := filepath.Join(dir, report.RunID+".json")
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// PrintSummary writes the human summary of a run.
func PrintSummary(w io.Writer, report *BatchReport) {
	fmt.Fprintf(w, "\n%d/%d records succeeded, %d failed\n", report.Succeeded, report.Total, report.Failed)
	for _, o := range report.Failures() {
		label := o.Record.ID
		if label == "" {
			label = o.Record.Link
		}
		fmt.Fprintf(w, "  ✗ [%d] %s: %s\n", o.Index, label, o.Error)
	}
	if report.Interrupted {
		fmt.Fprintln(w, "run interrupted before all records were processed")
	}
}
