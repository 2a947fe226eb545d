// Package executor drives a single scenario at a constant arrival rate
// (open model): iterations start on a fixed schedule regardless of how long
// earlier iterations take.
package executor

import (
	"fmt"
	"time"

	"github.com/slorun/slorun/internal/performance"
	"github.com/slorun/slorun/internal/performance/workflow"
)

// Backpressure selects what happens to an arrival when no worker is free.
type Backpressure string

const (
	// BackpressureDrop records the arrival as a dropped iteration. It never
	// waits for a worker, so the arrival clock is never delayed.
	BackpressureDrop Backpressure = "drop"
)

// ScenarioSpec describes one scenario. It is copied by the runner and not
// modified once a run starts.
type ScenarioSpec struct {
	// Name is unique within a run
	Name string

	// Rate is the number of iterations started per TimeUnit
	Rate float64

	// TimeUnit is the period Rate is expressed in (default: 1s)
	TimeUnit time.Duration

	// Duration is how long new iterations are scheduled
	Duration time.Duration

	// PreAllocatedWorkers are created before the first arrival
	PreAllocatedWorkers int

	// MaxWorkers bounds the number of concurrently running iterations
	MaxWorkers int

	// Workflow is executed once per iteration
	Workflow *workflow.Workflow

	// Backpressure is the policy for arrivals that find no free worker
	Backpressure Backpressure

	// GracefulStop bounds how long Run waits for in-flight iterations after
	// the schedule ends. Zero waits for all of them. Iterations still running
	// when it expires are recorded as failed.
	GracefulStop time.Duration
}

// withDefaults fills optional fields.
func (s ScenarioSpec) withDefaults() ScenarioSpec {
	if s.TimeUnit == 0 {
		s.TimeUnit = time.Second
	}
	if s.Backpressure == "" {
		s.Backpressure = BackpressureDrop
	}
	return s
}

// Validate validates the scenario specification.
func (s *ScenarioSpec) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Message: "scenario name is required"}
	}
	if s.Rate <= 0 {
		return &ValidationError{Scenario: s.Name, Field: "rate", Message: "rate must be > 0"}
	}
	if s.TimeUnit < 0 {
		return &ValidationError{Scenario: s.Name, Field: "timeUnit", Message: "timeUnit must be > 0"}
	}
	if s.Duration <= 0 {
		return &ValidationError{Scenario: s.Name, Field: "duration", Message: "duration must be > 0"}
	}
	if s.PreAllocatedWorkers < 0 {
		return &ValidationError{Scenario: s.Name, Field: "preAllocatedVUs", Message: "preAllocatedVUs must be >= 0"}
	}
	if s.MaxWorkers < s.PreAllocatedWorkers {
		return &ValidationError{Scenario: s.Name, Field: "maxVUs", Message: "maxVUs must be >= preAllocatedVUs"}
	}
	if s.Backpressure != "" && s.Backpressure != BackpressureDrop {
		return &ValidationError{Scenario: s.Name, Field: "backpressure", Message: "unsupported backpressure policy: " + string(s.Backpressure)}
	}
	if s.GracefulStop < 0 {
		return &ValidationError{Scenario: s.Name, Field: "gracefulStop", Message: "gracefulStop must be >= 0"}
	}
	if err := s.Workflow.Validate(); err != nil {
		return &ValidationError{Scenario: s.Name, Field: "exec", Message: err.Error()}
	}
	return nil
}

// ValidationError represents a scenario validation error.
type ValidationError struct {
	Scenario string
	Field    string
	Message  string
}

func (e *ValidationError) Error() string {
	if e.Scenario == "" {
		return "validation error on field '" + e.Field + "': " + e.Message
	}
	return fmt.Sprintf("scenario %s: validation error on field '%s': %s", e.Scenario, e.Field, e.Message)
}

// Stats contains executor statistics.
type Stats struct {
	Scenario  string        `json:"scenario"`
	StartTime time.Time     `json:"startTime"`
	Elapsed   time.Duration `json:"elapsed"`
	Duration  time.Duration `json:"duration"`

	Rate     float64       `json:"rate"`
	TimeUnit time.Duration `json:"timeUnit"`

	// Schedule
	Planned int64 `json:"planned"`
	Emitted int64 `json:"emitted"`
	Missed  int64 `json:"missed"`
	Late    int64 `json:"late"`

	// Outcomes
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	InFlight  int64 `json:"inFlight"`

	// Interrupted iterations are included in Failed
	Interrupted int64 `json:"interrupted"`

	Pool performance.PoolStats `json:"pool"`
}
