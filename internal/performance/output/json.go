package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slorun/slorun/internal/performance/engine"
	"github.com/slorun/slorun/internal/performance/executor"
	"github.com/slorun/slorun/internal/performance/metrics"
	"github.com/slorun/slorun/internal/performance/threshold"
)

// Report is the machine-readable result of a run.
type Report struct {
	Name       string                     `json:"name"`
	Passed     bool                       `json:"passed"`
	StartTime  time.Time                  `json:"startTime"`
	EndTime    time.Time                  `json:"endTime"`
	DurationMs float64                    `json:"durationMs"`
	Error      string                     `json:"error,omitempty"`
	Metrics    *metrics.Snapshot          `json:"metrics,omitempty"`
	Scenarios  map[string]*executor.Stats `json:"scenarios,omitempty"`
	Thresholds []threshold.Result         `json:"thresholds,omitempty"`
}

// NewReport builds a report from a result and the error Run returned.
func NewReport(result *engine.Result, runErr error) *Report {
	r := &Report{}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if result == nil {
		return r
	}

	r.Name = result.Name
	r.Passed = result.Passed && runErr == nil
	r.StartTime = result.StartTime
	r.EndTime = result.EndTime
	r.DurationMs = float64(result.Duration) / float64(time.Millisecond)
	r.Metrics = result.Metrics
	r.Scenarios = result.Scenarios
	r.Thresholds = result.Verdict.Results
	return r
}

// WriteJSON writes the report as indented JSON. Durations inside metrics are
// nanoseconds.
func WriteJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
