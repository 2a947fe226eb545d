package workflow

import "fmt"

// ErrorKind classifies why a step failed.
type ErrorKind string

const (
	// KindBuild means the request could not be constructed
	KindBuild ErrorKind = "build"
	// KindTransport means no response was received
	KindTransport ErrorKind = "transport"
	// KindExpect means the response did not meet the step's expectation
	KindExpect ErrorKind = "expect"
	// KindExtract means a value needed by later steps could not be extracted
	KindExtract ErrorKind = "extract"
)

// StepError is returned by Executor.Execute for a failed iteration. It names
// the first failing step; later steps were not attempted.
type StepError struct {
	Workflow string
	Step     string
	Index    int
	Kind     ErrorKind
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %d (%s) %s failed: %v", e.Workflow, e.Index+1, e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
