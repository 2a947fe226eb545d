// Package engine is the orchestrator for a load test run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/slorun/slorun/internal/performance/executor"
	"github.com/slorun/slorun/internal/performance/metrics"
	"github.com/slorun/slorun/internal/performance/setup"
	"github.com/slorun/slorun/internal/performance/threshold"
	"github.com/slorun/slorun/internal/performance/transport"
	"github.com/slorun/slorun/internal/performance/workflow"
)

// ErrAlreadyRunning is returned when Run is called while a run is in progress.
var ErrAlreadyRunning = errors.New("engine is already running")

// Plan is everything a run needs. The engine copies it; later changes by
// the caller have no effect.
type Plan struct {
	Name string

	// Setup runs once before any scenario starts
	Setup        []setup.Operation
	SetupTimeout time.Duration

	// Scenarios run concurrently, each with its own schedule and pool
	Scenarios []executor.ScenarioSpec

	// Thresholds are evaluated against the final snapshot
	Thresholds []threshold.Spec
}

// Engine coordinates:
//   - the setup stage
//   - one ScenarioRunner per scenario, all started together
//   - the shared metrics collector
//   - threshold evaluation
//
// Example usage:
//
//	eng, _ := engine.New(plan, transport.NewHTTP(cfg))
//	result, err := eng.Run(ctx)
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	plan      Plan
	transport transport.Transport
	logger    *zap.Logger
	exporter  *metrics.PrometheusExporter

	snapshotInterval time.Duration
	onSnapshot       func(*metrics.Snapshot)

	mu        sync.Mutex
	running   bool
	collector *metrics.Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. It is passed on to every component.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExporter mirrors metrics into Prometheus.
func WithExporter(exp *metrics.PrometheusExporter) Option {
	return func(e *Engine) { e.exporter = exp }
}

// WithSnapshots calls fn with a live snapshot every interval while
// scenarios run.
func WithSnapshots(interval time.Duration, fn func(*metrics.Snapshot)) Option {
	return func(e *Engine) {
		e.snapshotInterval = interval
		e.onSnapshot = fn
	}
}

// Result contains the complete test results.
type Result struct {
	Name      string        `json:"name"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Setup is the shared setup result, nil if setup failed
	Setup *setup.Result `json:"-"`

	// Metrics is the final snapshot, nil if setup failed
	Metrics *metrics.Snapshot `json:"metrics"`

	// Scenarios holds per-scenario runner statistics
	Scenarios map[string]*executor.Stats `json:"scenarios"`

	// Threshold evaluation
	Verdict threshold.Verdict `json:"thresholds"`
	Passed  bool              `json:"passed"`
}

// New validates plan and creates an engine that sends requests through tr.
func New(plan Plan, tr transport.Transport, opts ...Option) (*Engine, error) {
	if tr == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if len(plan.Scenarios) == 0 {
		return nil, fmt.Errorf("at least one scenario is required")
	}

	seen := make(map[string]bool, len(plan.Scenarios))
	for i := range plan.Scenarios {
		sc := &plan.Scenarios[i]
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("invalid plan: %w", err)
		}
		if seen[sc.Name] {
			return nil, fmt.Errorf("invalid plan: duplicate scenario name %q", sc.Name)
		}
		seen[sc.Name] = true
	}
	for _, spec := range plan.Thresholds {
		if spec.Scenario != "" && !seen[spec.Scenario] {
			return nil, fmt.Errorf("invalid plan: threshold %s references unknown scenario %q", spec, spec.Scenario)
		}
	}

	e := &Engine{
		plan: Plan{
			Name:         plan.Name,
			Setup:        append([]setup.Operation(nil), plan.Setup...),
			SetupTimeout: plan.SetupTimeout,
			Scenarios:    append([]executor.ScenarioSpec(nil), plan.Scenarios...),
			Thresholds:   append([]threshold.Spec(nil), plan.Thresholds...),
		},
		transport: tr,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes setup, then all scenarios concurrently, then evaluates
// thresholds.
//
// If setup fails no scenario starts: the returned Result has nil Metrics and
// the error wraps the *setup.Failure. A run whose thresholds fail returns a
// Result with Passed false and a nil error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	result := &Result{
		Name:      e.plan.Name,
		StartTime: time.Now(),
		Scenarios: make(map[string]*executor.Stats, len(e.plan.Scenarios)),
	}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	stage := setup.NewStage(e.transport, e.plan.Setup,
		setup.WithTimeout(e.plan.SetupTimeout),
		setup.WithLogger(e.logger),
	)
	shared, err := stage.Run(ctx)
	if err != nil {
		e.logger.Error("setup failed, no scenario will start", zap.Error(err))
		return result, fmt.Errorf("setup aborted: %w", err)
	}
	result.Setup = shared

	collectorOpts := []metrics.Option{metrics.WithLogger(e.logger)}
	if e.exporter != nil {
		collectorOpts = append(collectorOpts, metrics.WithExporter(e.exporter))
	}
	collector := metrics.NewCollector(collectorOpts...)
	for _, sc := range e.plan.Scenarios {
		collector.Register(sc.Name)
	}

	e.mu.Lock()
	e.collector = collector
	e.mu.Unlock()

	exec := workflow.NewExecutor(e.transport,
		workflow.WithObserver(collector),
		workflow.WithLogger(e.logger),
	)

	runners := make([]*executor.ScenarioRunner, 0, len(e.plan.Scenarios))
	for _, sc := range e.plan.Scenarios {
		r, err := executor.NewScenarioRunner(sc, exec, collector, e.logger)
		if err != nil {
			return result, fmt.Errorf("failed to initialize scenario %s: %w", sc.Name, err)
		}
		runners = append(runners, r)
	}

	collector.Start()

	watchCtx, stopWatch := context.WithCancel(ctx)
	var watchWG sync.WaitGroup
	if e.snapshotInterval > 0 && e.onSnapshot != nil {
		watchWG.Add(1)
		go func() {
			defer watchWG.Done()
			collector.Watch(watchCtx, e.snapshotInterval, e.onSnapshot)
		}()
	}

	e.logger.Info("starting scenarios", zap.String("test", e.plan.Name), zap.Int("scenarios", len(runners)))
	stats := e.runScenariosConcurrently(ctx, runners, shared)

	stopWatch()
	watchWG.Wait()

	for name, st := range stats {
		result.Scenarios[name] = st
	}
	result.Metrics = collector.Snapshot()
	result.Verdict = threshold.Evaluate(e.plan.Thresholds, result.Metrics)
	result.Passed = result.Verdict.Passed

	for _, r := range result.Verdict.Failed() {
		e.logger.Warn("threshold failed",
			zap.String("metric", r.Metric),
			zap.String("expression", r.Expr),
			zap.String("message", r.Message),
		)
	}
	e.logger.Info("test finished",
		zap.Bool("passed", result.Passed),
		zap.Int64("iterations", result.Metrics.Global.Iterations),
		zap.Int64("dropped", result.Metrics.Global.Dropped),
	)

	return result, nil
}

// runScenariosConcurrently runs all scenarios concurrently.
func (e *Engine) runScenariosConcurrently(ctx context.Context, runners []*executor.ScenarioRunner, shared *setup.Result) map[string]*executor.Stats {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]*executor.Stats, len(runners))
	)

	for _, r := range runners {
		wg.Add(1)
		go func(r *executor.ScenarioRunner) {
			defer wg.Done()

			stats, err := r.Run(ctx, shared)
			if err != nil {
				e.logger.Error("scenario failed", zap.String("scenario", r.Spec().Name), zap.Error(err))
				stats = r.Stats()
			}

			mu.Lock()
			results[r.Spec().Name] = stats
			mu.Unlock()
		}(r)
	}

	wg.Wait()
	return results
}

// IsRunning returns true while Run is in progress.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Snapshot returns a live snapshot of the current run, or nil before the
// scenarios start.
func (e *Engine) Snapshot() *metrics.Snapshot {
	e.mu.Lock()
	c := e.collector
	e.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Snapshot()
}

// Plan returns a copy of the plan the engine runs.
func (e *Engine) Plan() Plan {
	p := e.plan
	p.Setup = append([]setup.Operation(nil), e.plan.Setup...)
	p.Scenarios = append([]executor.ScenarioSpec(nil), e.plan.Scenarios...)
	p.Thresholds = append([]threshold.Spec(nil), e.plan.Thresholds...)
	return p
}
