package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter mirrors collector recordings into Prometheus metrics
// so a long run can be watched live from /metrics.
type PrometheusExporter struct {
	iterations        *prometheus.CounterVec
	iterationDuration *prometheus.HistogramVec
	missed            *prometheus.CounterVec
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// NewPrometheusExporter registers the load-test metrics with reg.
func NewPrometheusExporter(reg prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(reg)

	return &PrometheusExporter{
		iterations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slorun_iterations_total",
				Help: "Scheduled iterations by terminal outcome",
			},
			[]string{"scenario", "outcome"},
		),
		iterationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slorun_iteration_duration_seconds",
				Help:    "Duration of executed iterations",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"scenario"},
		),
		missed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slorun_missed_arrivals_total",
				Help: "Nominal arrival instants skipped while the scheduler was behind",
			},
			[]string{"scenario"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slorun_requests_total",
				Help: "Requests sent to the target",
			},
			[]string{"scenario", "step", "result"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slorun_request_duration_seconds",
				Help:    "Request latency as seen by the load generator",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"scenario", "step"},
		),
	}
}

func (e *PrometheusExporter) observeIteration(rec IterationRecord) {
	e.iterations.WithLabelValues(rec.Scenario, rec.Outcome.String()).Inc()
	if rec.Outcome != OutcomeDropped {
		e.iterationDuration.WithLabelValues(rec.Scenario).Observe(rec.Duration().Seconds())
	}
}

func (e *PrometheusExporter) observeRequest(scenario, step string, latency time.Duration, failed bool) {
	result := "ok"
	if failed {
		result = "failed"
	}
	e.requests.WithLabelValues(scenario, step, result).Inc()
	e.requestDuration.WithLabelValues(scenario, step).Observe(latency.Seconds())
}
