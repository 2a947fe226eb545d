package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/slorun/slorun/internal/performance/setup"
	"github.com/slorun/slorun/internal/performance/transport"
)

// RequestObserver receives one call per request actually sent.
//
// failed follows the usual load-testing convention: a transport error or a
// status of 400 or above. It is independent of the step's own expectation.
type RequestObserver interface {
	ObserveRequest(scenario, step string, latency time.Duration, failed bool)
}

// Executor runs workflows against a Transport. It holds no per-iteration
// state and is safe for concurrent use by every worker of every scenario.
type Executor struct {
	transport transport.Transport
	observer  RequestObserver
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithObserver reports every request to o.
func WithObserver(o RequestObserver) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

// WithLogger sets the executor logger.
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates a workflow executor.
func NewExecutor(tr transport.Transport, opts ...ExecutorOption) *Executor {
	e := &Executor{
		transport: tr,
		logger:    zap.NewNop(),
		sleep:     thinkTime,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one iteration of wf on behalf of scenario.
//
// Steps run strictly in order. The first build error, transport error,
// expectation mismatch, or extraction failure aborts the remaining steps and
// is returned as a *StepError. Completed steps are not rolled back. A nil
// return means every step succeeded.
func (e *Executor) Execute(ctx context.Context, scenario string, wf *Workflow, shared *setup.Result) error {
	outputs := make(Outputs, len(wf.Steps))
	if wf.Prepare != nil {
		for k, v := range wf.Prepare() {
			outputs[k] = v
		}
	}

	for i, step := range wf.Steps {
		if err := e.runStep(ctx, scenario, wf.Name, i, step, shared, outputs); err != nil {
			e.logger.Debug("iteration failed",
				zap.String("scenario", scenario),
				zap.String("step", err.Step),
				zap.String("kind", string(err.Kind)),
				zap.Error(err.Err),
			)
			return err
		}
	}

	if wf.ThinkTime > 0 {
		e.sleep(ctx, wf.ThinkTime)
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, scenario, workflow string, index int, step Step, shared *setup.Result, outputs Outputs) *StepError {
	fail := func(kind ErrorKind, err error) *StepError {
		return &StepError{Workflow: workflow, Step: step.Name, Index: index, Kind: kind, Err: err}
	}

	req, err := step.Build(shared, outputs)
	if err != nil {
		return fail(KindBuild, err)
	}
	if req == nil {
		return fail(KindBuild, fmt.Errorf("builder returned no request"))
	}

	start := time.Now()
	resp, err := e.transport.Send(ctx, req)
	if err != nil {
		e.observe(scenario, step.Name, time.Since(start), true)
		return fail(KindTransport, err)
	}

	latency := resp.Latency
	if latency <= 0 {
		latency = time.Since(start)
	}
	e.observe(scenario, step.Name, latency, resp.Failed())

	if step.Expect != nil {
		if err := step.Expect(resp); err != nil {
			return fail(KindExpect, err)
		}
	}

	if step.Extract != nil {
		value, err := step.Extract(resp)
		if err != nil {
			return fail(KindExtract, err)
		}
		outputs[step.Name] = value
	}

	return nil
}

func (e *Executor) observe(scenario, step string, latency time.Duration, failed bool) {
	if e.observer != nil {
		e.observer.ObserveRequest(scenario, step, latency, failed)
	}
}

// thinkTime waits for d or until ctx is done.
func thinkTime(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
