// Package metrics aggregates iteration and request outcomes into streaming
// per-scenario and global statistics.
package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Collector collects iteration and request metrics using HDR histograms.
//
// Memory is bounded regardless of run length: latencies are folded into
// fixed-size histograms and records are discarded once counted.
//
// # Thread Safety
//
// Collector is safe for concurrent use. Counters use atomic operations,
// histograms use mutex protection, and the scenario map is guarded by an
// RWMutex that is only write-locked the first time a scenario is seen.
type Collector struct {
	cfg      HistogramConfig
	global   *aggregate
	exporter *PrometheusExporter
	logger   *zap.Logger

	mu        sync.RWMutex
	scenarios map[string]*aggregate

	startMu   sync.RWMutex
	startTime time.Time
	now       func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithHistogramConfig overrides the latency histogram bounds.
func WithHistogramConfig(cfg HistogramConfig) Option {
	return func(c *Collector) { c.cfg = cfg }
}

// WithExporter mirrors every recording into Prometheus collectors.
func WithExporter(e *PrometheusExporter) Option {
	return func(c *Collector) { c.exporter = e }
}

// WithLogger sets the collector logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCollector creates a metrics collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		cfg:       DefaultHistogramConfig(),
		logger:    zap.NewNop(),
		scenarios: make(map[string]*aggregate),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.global = newAggregate("", c.cfg)
	c.startTime = c.now()
	return c
}

// Start resets the clock used for rates to now. The engine calls it when
// the first scenario starts so setup time does not dilute rates.
func (c *Collector) Start() {
	c.startMu.Lock()
	c.startTime = c.now()
	c.startMu.Unlock()
}

// Register makes a scenario visible in snapshots before it records anything.
func (c *Collector) Register(scenario string) {
	c.scenario(scenario)
}

func (c *Collector) scenario(name string) *aggregate {
	c.mu.RLock()
	a, ok := c.scenarios[name]
	c.mu.RUnlock()
	if ok {
		return a
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok = c.scenarios[name]; !ok {
		a = newAggregate(name, c.cfg)
		c.scenarios[name] = a
	}
	return a
}

// RecordIteration folds one finished iteration into its scenario and the
// global aggregate. Dropped iterations count as failures and contribute no
// latency.
func (c *Collector) RecordIteration(rec IterationRecord) {
	c.scenario(rec.Scenario).recordIteration(rec)
	c.global.recordIteration(rec)

	if c.exporter != nil {
		c.exporter.observeIteration(rec)
	}
}

// RecordRequest records one request sent by a workflow step.
func (c *Collector) RecordRequest(scenario, step string, latency time.Duration, failed bool) {
	c.scenario(scenario).recordRequest(step, latency, failed)
	c.global.recordRequest("", latency, failed)

	if c.exporter != nil {
		c.exporter.observeRequest(scenario, step, latency, failed)
	}
}

// ObserveRequest implements workflow.RequestObserver.
func (c *Collector) ObserveRequest(scenario, step string, latency time.Duration, failed bool) {
	c.RecordRequest(scenario, step, latency, failed)
}

// RecordMissed adds n nominal instants the scheduler skipped while behind.
func (c *Collector) RecordMissed(scenario string, n int64) {
	if n <= 0 {
		return
	}
	c.scenario(scenario).missed.Add(n)
	c.global.missed.Add(n)

	if c.exporter != nil {
		c.exporter.missed.WithLabelValues(scenario).Add(float64(n))
	}
}

// Scenarios returns the registered scenario names in sorted order.
func (c *Collector) Scenarios() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.scenarios))
	for name := range c.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a point-in-time copy of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	now := c.now()

	c.startMu.RLock()
	start := c.startTime
	c.startMu.RUnlock()
	elapsed := now.Sub(start)

	c.mu.RLock()
	aggs := make([]*aggregate, 0, len(c.scenarios))
	for _, a := range c.scenarios {
		aggs = append(aggs, a)
	}
	c.mu.RUnlock()

	snap := &Snapshot{
		Global:    c.global.stats(elapsed),
		Scenarios: make(map[string]ScenarioStats, len(aggs)),
		StartTime: start,
		Timestamp: now,
		Elapsed:   elapsed,
	}
	for _, a := range aggs {
		snap.Scenarios[a.name] = a.stats(elapsed)
	}
	return snap
}

// Watch calls fn with a fresh snapshot every interval until ctx is done.
func (c *Collector) Watch(ctx context.Context, interval time.Duration, fn func(*Snapshot)) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.Snapshot()
			c.logger.Debug("metrics snapshot",
				zap.Int64("iterations", snap.Global.Iterations),
				zap.Int64("failed", snap.Global.Failed),
				zap.Int64("dropped", snap.Global.Dropped),
				zap.Duration("p99", snap.Global.IterationDuration.P99),
			)
			fn(snap)
		}
	}
}
