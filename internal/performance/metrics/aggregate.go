package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// aggregate holds the running totals of one scenario, or of the whole run.
//
// Counters are atomics; each histogram has its own mutex so iteration and
// request recording never contend with each other.
type aggregate struct {
	name string
	cfg  HistogramConfig

	iterations atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	dropped    atomic.Int64
	missed     atomic.Int64
	iterHist   *latencyHistogram

	requests       atomic.Int64
	requestsFailed atomic.Int64
	reqHist        *latencyHistogram

	stepsMu sync.RWMutex
	steps   map[string]*latencyHistogram
}

func newAggregate(name string, cfg HistogramConfig) *aggregate {
	return &aggregate{
		name:     name,
		cfg:      cfg,
		iterHist: newLatencyHistogram(cfg),
		reqHist:  newLatencyHistogram(cfg),
		steps:    make(map[string]*latencyHistogram),
	}
}

func (a *aggregate) recordIteration(rec IterationRecord) {
	a.iterations.Add(1)

	switch rec.Outcome {
	case OutcomeSuccess:
		a.succeeded.Add(1)
	case OutcomeDropped:
		a.dropped.Add(1)
		a.failed.Add(1)
		return
	default:
		a.failed.Add(1)
	}

	a.iterHist.Record(rec.Duration())
}

func (a *aggregate) recordRequest(step string, latency time.Duration, failed bool) {
	a.requests.Add(1)
	if failed {
		a.requestsFailed.Add(1)
	}
	a.reqHist.Record(latency)

	if step != "" {
		a.stepHistogram(step).Record(latency)
	}
}

func (a *aggregate) stepHistogram(step string) *latencyHistogram {
	a.stepsMu.RLock()
	h, ok := a.steps[step]
	a.stepsMu.RUnlock()
	if ok {
		return h
	}

	a.stepsMu.Lock()
	defer a.stepsMu.Unlock()
	if h, ok = a.steps[step]; !ok {
		h = newLatencyHistogram(a.cfg)
		a.steps[step] = h
	}
	return h
}

func (a *aggregate) stats(elapsed time.Duration) ScenarioStats {
	st := ScenarioStats{
		Name:              a.name,
		Iterations:        a.iterations.Load(),
		Succeeded:         a.succeeded.Load(),
		Failed:            a.failed.Load(),
		Dropped:           a.dropped.Load(),
		Missed:            a.missed.Load(),
		IterationDuration: a.iterHist.Stats(),
		Requests:          a.requests.Load(),
		RequestsFailed:    a.requestsFailed.Load(),
		RequestDuration:   a.reqHist.Stats(),
	}

	if st.Iterations > 0 {
		st.FailureRate = float64(st.Failed) / float64(st.Iterations)
	}
	if st.Requests > 0 {
		st.RequestFailureRate = float64(st.RequestsFailed) / float64(st.Requests)
	}
	if secs := elapsed.Seconds(); secs > 0 {
		st.IterationRate = float64(st.Iterations) / secs
		st.RequestRate = float64(st.Requests) / secs
	}

	a.stepsMu.RLock()
	if len(a.steps) > 0 {
		st.Steps = make(map[string]LatencyStats, len(a.steps))
		for name, h := range a.steps {
			st.Steps[name] = h.Stats()
		}
	}
	a.stepsMu.RUnlock()

	return st
}
