// Package setup runs the one-time preparation that precedes every scenario:
// acquiring credentials, seeding reference data, and publishing the results
// as an immutable bag shared by all iterations.
package setup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/slorun/slorun/internal/performance/check"
	"github.com/slorun/slorun/internal/performance/transport"
)

// Operation is one setup request.
type Operation struct {
	// Name identifies the operation in logs and failures
	Name string

	// Build creates the request. It may read values stored by earlier operations.
	Build func(values *Values) (*transport.Request, error)

	// Expect validates the response (optional)
	Expect check.Expectation

	// Store copies whatever the scenarios need from the response (optional)
	Store func(resp *transport.Response, values *Values) error
}

// Repeat returns n copies of op, named "name#1".."name#n".
func Repeat(n int, op Operation) []Operation {
	ops := make([]Operation, n)
	for i := range ops {
		ops[i] = op
		ops[i].Name = fmt.Sprintf("%s#%d", op.Name, i+1)
	}
	return ops
}

// Stage is an ordered list of operations run exactly once before load starts.
type Stage struct {
	operations []Operation
	transport  transport.Transport
	timeout    time.Duration
	logger     *zap.Logger
}

// Option configures a Stage.
type Option func(*Stage)

// WithTimeout bounds the whole stage. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) Option {
	return func(s *Stage) { s.timeout = d }
}

// WithLogger sets the stage logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Stage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStage creates a setup stage.
func NewStage(tr transport.Transport, operations []Operation, opts ...Option) *Stage {
	s := &Stage{
		operations: operations,
		transport:  tr,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Operations returns the number of operations in the stage.
func (s *Stage) Operations() int {
	return len(s.operations)
}

// Run executes every operation in order and returns the frozen result.
//
// The first build error, transport error, unexpected response, or store
// error aborts the stage with a *Failure; no partial Result is returned.
func (s *Stage) Run(ctx context.Context) (*Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	values := newValues()
	start := time.Now()

	for i, op := range s.operations {
		if err := s.runOperation(ctx, i, op, values); err != nil {
			s.logger.Error("setup failed",
				zap.String("operation", err.Operation),
				zap.Int("index", err.Index),
				zap.String("phase", string(err.Phase)),
				zap.Error(err.Err),
			)
			return nil, err
		}
	}

	result := values.freeze()
	s.logger.Info("setup complete",
		zap.Int("operations", len(s.operations)),
		zap.Strings("keys", result.Keys()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (s *Stage) runOperation(ctx context.Context, index int, op Operation, values *Values) *Failure {
	fail := func(phase Phase, err error) *Failure {
		return &Failure{Operation: op.Name, Index: index, Phase: phase, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(PhaseTransport, err)
	}
	if op.Build == nil {
		return fail(PhaseBuild, fmt.Errorf("operation has no request builder"))
	}

	req, err := op.Build(values)
	if err != nil {
		return fail(PhaseBuild, err)
	}

	resp, err := s.transport.Send(ctx, req)
	if err != nil {
		return fail(PhaseTransport, err)
	}

	if op.Expect != nil {
		if err := op.Expect(resp); err != nil {
			return fail(PhaseExpect, err)
		}
	}

	if op.Store != nil {
		if err := op.Store(resp, values); err != nil {
			return fail(PhaseStore, err)
		}
	}

	s.logger.Debug("setup operation done",
		zap.String("operation", op.Name),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", resp.Latency),
	)
	return nil
}
