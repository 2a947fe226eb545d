// Package workflow runs an ordered list of dependent requests as one
// iteration, aborting at the first failed step.
package workflow

import (
	"fmt"
	"strconv"
	"time"

	"github.com/slorun/slorun/internal/performance/check"
	"github.com/slorun/slorun/internal/performance/setup"
	"github.com/slorun/slorun/internal/performance/transport"
)

// Workflow is a named, ordered list of steps executed by one worker per
// iteration.
type Workflow struct {
	Name  string
	Steps []Step

	// Prepare seeds the outputs of each iteration before the first step,
	// e.g. with generated credentials (optional). Its keys must not collide
	// with step names.
	Prepare func() Outputs

	// ThinkTime is slept after the last step of a successful iteration and
	// counts toward the iteration duration.
	ThinkTime time.Duration
}

// Step is a single request within a workflow.
type Step struct {
	// Name identifies the step in metrics and errors
	Name string

	// Build creates the request from the shared setup result and the values
	// extracted by earlier steps of the same iteration.
	Build func(setup *setup.Result, prior Outputs) (*transport.Request, error)

	// Expect validates the response (optional)
	Expect check.Expectation

	// Extract pulls a value from the response for later steps (optional).
	// The value is stored under the step name.
	Extract func(resp *transport.Response) (any, error)
}

// Validate checks that a workflow is runnable.
func (w *Workflow) Validate() error {
	if w == nil {
		return fmt.Errorf("workflow is nil")
	}
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", w.Name)
	}
	seen := make(map[string]bool, len(w.Steps))
	for i, s := range w.Steps {
		if s.Name == "" {
			return fmt.Errorf("workflow %q: step %d has no name", w.Name, i+1)
		}
		if seen[s.Name] {
			return fmt.Errorf("workflow %q: duplicate step name %q", w.Name, s.Name)
		}
		seen[s.Name] = true
		if s.Build == nil {
			return fmt.Errorf("workflow %q: step %q has no request builder", w.Name, s.Name)
		}
	}
	if w.ThinkTime < 0 {
		return fmt.Errorf("workflow %q: think time cannot be negative", w.Name)
	}
	return nil
}

// Outputs holds the values extracted by completed steps of one iteration,
// keyed by step name. It is private to the iteration.
type Outputs map[string]any

// String returns the value extracted by step as a string.
func (o Outputs) String(step string) string {
	switch v := o[step].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// ExtractJSON returns an Extract function storing the string at a JSONPath.
func ExtractJSON(path string) func(resp *transport.Response) (any, error) {
	return func(resp *transport.Response) (any, error) {
		return check.ExtractString(resp.Body, path)
	}
}
