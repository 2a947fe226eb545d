package metrics

import (
	"time"
)

// Outcome is the terminal state of one scheduled iteration.
type Outcome int

const (
	// OutcomeSuccess means every workflow step succeeded
	OutcomeSuccess Outcome = iota
	// OutcomeFailed means a step failed and the rest were skipped, or the
	// iteration was still running when its graceful stop expired
	OutcomeFailed
	// OutcomeDropped means no worker was free and the iteration never ran
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// IterationRecord describes one scheduled iteration after it reached its
// terminal outcome.
type IterationRecord struct {
	Scenario    string
	Seq         int64
	ScheduledAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcome     Outcome
	Err         error
}

// Duration returns how long the iteration ran. Dropped iterations have no
// duration.
func (r IterationRecord) Duration() time.Duration {
	if r.Outcome == OutcomeDropped || r.StartedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Snapshot contains a point-in-time view of all metrics. It shares nothing
// with the collector and is safe to read from any goroutine.
type Snapshot struct {
	Global    ScenarioStats            `json:"global"`
	Scenarios map[string]ScenarioStats `json:"scenarios"`
	StartTime time.Time                `json:"startTime"`
	Timestamp time.Time                `json:"timestamp"`
	Elapsed   time.Duration            `json:"elapsed"`
}

// Scenario returns the stats of one scenario.
func (s *Snapshot) Scenario(name string) (ScenarioStats, bool) {
	st, ok := s.Scenarios[name]
	return st, ok
}

// ScenarioStats aggregates one scenario, or all scenarios for Global.
type ScenarioStats struct {
	Name string `json:"name"`

	// Iterations counts every scheduled iteration that reached an outcome,
	// including dropped ones.
	Iterations int64 `json:"iterations"`
	Succeeded  int64 `json:"succeeded"`
	// Failed counts every non-successful iteration, dropped ones included.
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	// Missed counts nominal instants the scheduler skipped while behind.
	Missed int64 `json:"missed"`

	FailureRate       float64      `json:"failureRate"`
	IterationRate     float64      `json:"iterationRate"`
	IterationDuration LatencyStats `json:"iterationDuration"`

	Requests           int64                   `json:"requests"`
	RequestsFailed     int64                   `json:"requestsFailed"`
	RequestFailureRate float64                 `json:"requestFailureRate"`
	RequestRate        float64                 `json:"requestRate"`
	RequestDuration    LatencyStats            `json:"requestDuration"`
	Steps              map[string]LatencyStats `json:"steps,omitempty"`
}
