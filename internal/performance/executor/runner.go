package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/slorun/slorun/internal/performance"
	"github.com/slorun/slorun/internal/performance/metrics"
	"github.com/slorun/slorun/internal/performance/rate"
	"github.com/slorun/slorun/internal/performance/setup"
	"github.com/slorun/slorun/internal/performance/workflow"
)

// ErrAlreadyRun is returned when Run is called more than once.
var ErrAlreadyRun = errors.New("scenario runner already run")

// ErrInterrupted is the error of an iteration still running when
// GracefulStop expired.
var ErrInterrupted = errors.New("iteration interrupted: graceful stop expired")

// WorkflowRunner executes one iteration. *workflow.Executor implements it.
type WorkflowRunner interface {
	Execute(ctx context.Context, scenario string, wf *workflow.Workflow, shared *setup.Result) error
}

// Recorder receives terminal iteration outcomes. *metrics.Collector
// implements it.
type Recorder interface {
	RecordIteration(rec metrics.IterationRecord)
	RecordMissed(scenario string, n int64)
}

// ScenarioRunner runs one scenario at a constant arrival rate.
//
// Each arrival emitted by the schedule tries to acquire a worker. If the
// pool is exhausted the arrival is recorded as dropped and the schedule
// moves on; arrivals are never queued. Otherwise the iteration runs on its
// own goroutine and releases the worker when it finishes, whatever the
// outcome. Iterations still running when GracefulStop expires are recorded
// as failed with ErrInterrupted.
//
// Example:
//
//	spec:
//	  rate: 450              # 450 iterations per timeUnit
//	  timeUnit: 1s
//	  duration: 2m
//	  preAllocatedVUs: 450   # Start with 450 workers
//	  maxVUs: 550            # Drop arrivals beyond 550 concurrent iterations
type ScenarioRunner struct {
	spec     ScenarioSpec
	schedule *rate.Schedule
	pool     *performance.WorkerPool
	exec     WorkflowRunner
	recorder Recorder
	logger   *zap.Logger

	started   atomic.Bool
	running   atomic.Bool
	startTime atomic.Pointer[time.Time]

	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	inFlight  atomic.Int64
	wg        sync.WaitGroup

	interrupted atomic.Int64
	activeMu    sync.Mutex
	active      map[int64]*iteration
}

// iteration is one started arrival. Whoever flips recorded first (the
// iteration itself or the graceful stop) records its outcome.
type iteration struct {
	rec      metrics.IterationRecord
	recorded atomic.Bool
}

// NewScenarioRunner validates spec and prepares its schedule and worker pool.
// Preallocated workers exist when it returns.
func NewScenarioRunner(spec ScenarioSpec, exec WorkflowRunner, recorder Recorder, logger *zap.Logger) (*ScenarioRunner, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.withDefaults()

	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("scenario", spec.Name))

	schedule, err := rate.NewSchedule(spec.Rate, spec.TimeUnit, spec.Duration)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", spec.Name, err)
	}

	pool, err := performance.NewWorkerPool(spec.Name, spec.PreAllocatedWorkers, spec.MaxWorkers, logger)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", spec.Name, err)
	}

	return &ScenarioRunner{
		spec:     spec,
		schedule: schedule,
		pool:     pool,
		exec:     exec,
		recorder: recorder,
		logger:   logger,
		active:   make(map[int64]*iteration),
	}, nil
}

// Spec returns the scenario specification with defaults applied.
func (r *ScenarioRunner) Spec() ScenarioSpec {
	return r.spec
}

// Run schedules arrivals until the scenario duration elapses or ctx is
// cancelled, then waits for in-flight iterations.
//
// Iterations run with a context detached from ctx: stopping the schedule
// never cancels work already started. If GracefulStop is set, Run stops
// waiting after that long and records every iteration still running as
// failed, so the returned Stats account for every emitted arrival. Those
// iterations keep going; their late results are not recorded again.
func (r *ScenarioRunner) Run(ctx context.Context, shared *setup.Result) (*Stats, error) {
	if !r.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	r.running.Store(true)
	defer r.running.Store(false)

	start := time.Now()
	r.startTime.Store(&start)

	r.logger.Info("scenario started",
		zap.Float64("rate", r.spec.Rate),
		zap.Duration("timeUnit", r.spec.TimeUnit),
		zap.Duration("duration", r.spec.Duration),
		zap.Int64("planned", r.schedule.Count()),
		zap.Int("preAllocatedVUs", r.spec.PreAllocatedWorkers),
		zap.Int("maxVUs", r.spec.MaxWorkers),
	)

	iterCtx := context.WithoutCancel(ctx)
	schedStats := r.schedule.Run(ctx, start, func(a rate.Arrival) {
		r.dispatch(iterCtx, a, shared)
	})

	if schedStats.Missed > 0 {
		r.recorder.RecordMissed(r.spec.Name, schedStats.Missed)
		r.logger.Warn("scheduler fell behind",
			zap.Int64("missed", schedStats.Missed),
			zap.Int64("late", schedStats.Late),
		)
	}

	if !r.waitInFlight() {
		n := r.interruptInFlight()
		r.logger.Warn("graceful stop expired with iterations in flight",
			zap.Int64("interrupted", n),
			zap.Duration("gracefulStop", r.spec.GracefulStop),
		)
	}

	stats := r.Stats()
	r.logger.Info("scenario finished",
		zap.Int64("succeeded", stats.Succeeded),
		zap.Int64("failed", stats.Failed),
		zap.Int64("dropped", stats.Dropped),
		zap.Int("peakBusy", stats.Pool.PeakBusy),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return stats, nil
}

// dispatch handles one arrival on the scheduling goroutine. It must not block.
func (r *ScenarioRunner) dispatch(ctx context.Context, a rate.Arrival, shared *setup.Result) {
	w, err := r.pool.Acquire()
	if err != nil {
		now := time.Now()
		r.dropped.Add(1)
		r.recorder.RecordIteration(metrics.IterationRecord{
			Scenario:    r.spec.Name,
			Seq:         a.Seq,
			ScheduledAt: a.Scheduled,
			FinishedAt:  now,
			Outcome:     metrics.OutcomeDropped,
			Err:         err,
		})
		return
	}

	it := &iteration{rec: metrics.IterationRecord{
		Scenario:    r.spec.Name,
		Seq:         a.Seq,
		ScheduledAt: a.Scheduled,
		StartedAt:   time.Now(),
	}}
	r.activeMu.Lock()
	r.active[a.Seq] = it
	r.activeMu.Unlock()

	r.wg.Add(1)
	r.inFlight.Add(1)
	go r.runIteration(ctx, w, it, shared)
}

// runIteration runs the workflow on w and records exactly one outcome,
// unless the graceful stop already recorded it.
func (r *ScenarioRunner) runIteration(ctx context.Context, w *performance.Worker, it *iteration, shared *setup.Result) {
	defer r.wg.Done()
	defer r.inFlight.Add(-1)
	defer r.release(w)

	rec := it.rec

	defer func() {
		if p := recover(); p != nil {
			rec.Outcome = metrics.OutcomeFailed
			rec.Err = fmt.Errorf("iteration panicked: %v", p)
			r.logger.Error("iteration panicked", zap.Int64("seq", rec.Seq), zap.Any("panic", p))
		}
		if rec.FinishedAt.IsZero() {
			rec.FinishedAt = time.Now()
		}

		r.activeMu.Lock()
		delete(r.active, rec.Seq)
		r.activeMu.Unlock()

		if it.recorded.CompareAndSwap(false, true) {
			r.finish(rec)
		} else {
			r.logger.Debug("late iteration result discarded", zap.Int64("seq", rec.Seq), zap.Error(rec.Err))
		}
	}()

	err := r.exec.Execute(ctx, r.spec.Name, r.spec.Workflow, shared)
	rec.FinishedAt = time.Now()
	if err != nil {
		rec.Outcome = metrics.OutcomeFailed
		rec.Err = err
	} else {
		rec.Outcome = metrics.OutcomeSuccess
	}
}

func (r *ScenarioRunner) finish(rec metrics.IterationRecord) {
	if rec.Outcome == metrics.OutcomeSuccess {
		r.succeeded.Add(1)
	} else {
		r.failed.Add(1)
	}
	r.recorder.RecordIteration(rec)
}

func (r *ScenarioRunner) release(w *performance.Worker) {
	if err := r.pool.Release(w); err != nil {
		r.logger.Error("failed to release worker", zap.Int("worker", w.ID), zap.Error(err))
	}
}

// waitInFlight waits for running iterations, bounded by GracefulStop. It
// reports whether all of them finished.
func (r *ScenarioRunner) waitInFlight() bool {
	if r.spec.GracefulStop <= 0 {
		r.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(r.spec.GracefulStop)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// interruptInFlight records every iteration still running as failed and
// returns how many it recorded.
func (r *ScenarioRunner) interruptInFlight() int64 {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()

	var n int64
	now := time.Now()
	for seq, it := range r.active {
		if !it.recorded.CompareAndSwap(false, true) {
			continue
		}
		rec := it.rec
		rec.FinishedAt = now
		rec.Outcome = metrics.OutcomeFailed
		rec.Err = ErrInterrupted
		r.finish(rec)
		delete(r.active, seq)
		n++
	}
	r.interrupted.Add(n)
	return n
}

// Wait blocks until every started iteration goroutine has returned,
// ignoring GracefulStop.
func (r *ScenarioRunner) Wait() {
	r.wg.Wait()
}

// IsRunning returns true while Run is scheduling or waiting.
func (r *ScenarioRunner) IsRunning() bool {
	return r.running.Load()
}

// Progress returns schedule progress (0.0 to 1.0).
func (r *ScenarioRunner) Progress() float64 {
	start := r.startTime.Load()
	if start == nil {
		return 0.0
	}
	if !r.running.Load() {
		return 1.0
	}

	progress := float64(time.Since(*start)) / float64(r.spec.Duration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// Stats returns executor statistics.
func (r *ScenarioRunner) Stats() *Stats {
	sched := r.schedule.Stats()

	stats := &Stats{
		Scenario:  r.spec.Name,
		Duration:  r.spec.Duration,
		Rate:      r.spec.Rate,
		TimeUnit:  r.spec.TimeUnit,
		Planned:   sched.Planned,
		Emitted:   sched.Emitted,
		Missed:    sched.Missed,
		Late:      sched.Late,
		Succeeded: r.succeeded.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
		InFlight:  r.inFlight.Load(),
		Pool:      r.pool.Stats(),

		Interrupted: r.interrupted.Load(),
	}
	if start := r.startTime.Load(); start != nil {
		stats.StartTime = *start
		stats.Elapsed = time.Since(*start)
	}
	return stats
}
