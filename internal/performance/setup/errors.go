package setup

import "fmt"

// Phase names the part of an operation that failed.
type Phase string

const (
	PhaseBuild     Phase = "build"
	PhaseTransport Phase = "transport"
	PhaseExpect    Phase = "expect"
	PhaseStore     Phase = "store"
)

// Failure aborts a run before any scenario starts.
type Failure struct {
	Operation string
	Index     int
	Phase     Phase
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("setup operation %d (%s) failed during %s: %v", f.Index+1, f.Operation, f.Phase, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
