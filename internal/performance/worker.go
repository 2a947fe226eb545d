// Package performance provides the virtual worker pool shared by the
// arrival-rate executors.
package performance

import "sync/atomic"

// WorkerState represents the lifecycle state of a Worker.
type WorkerState int32

const (
	// WorkerIdle indicates the worker is parked in its pool, ready to run.
	WorkerIdle WorkerState = iota
	// WorkerBusy indicates the worker is running an iteration.
	WorkerBusy
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Worker is a reusable execution unit (virtual user) that runs one
// iteration at a time on behalf of a single scenario.
//
// Workers are created and owned by a WorkerPool; they are never shared
// across pools. State transitions happen only through Acquire and Release.
type Worker struct {
	// ID is unique within the owning pool, starting at 1
	ID int

	// Scenario is the name of the scenario the owning pool serves
	Scenario string

	state      atomic.Int32
	iterations atomic.Int64
}

func newWorker(id int, scenario string) *Worker {
	return &Worker{
		ID:       id,
		Scenario: scenario,
	}
}

// State returns the current worker state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Iterations returns how many iterations this worker has started.
func (w *Worker) Iterations() int64 {
	return w.iterations.Load()
}

// markBusy transitions Idle -> Busy. It reports false if the worker was not idle.
func (w *Worker) markBusy() bool {
	if !w.state.CompareAndSwap(int32(WorkerIdle), int32(WorkerBusy)) {
		return false
	}
	w.iterations.Add(1)
	return true
}

// markIdle transitions Busy -> Idle. It reports false if the worker was not busy.
func (w *Worker) markIdle() bool {
	return w.state.CompareAndSwap(int32(WorkerBusy), int32(WorkerIdle))
}
