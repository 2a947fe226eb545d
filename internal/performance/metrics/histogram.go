package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// HistogramConfig bounds the streaming latency estimator.
type HistogramConfig struct {
	// Min is the minimum recordable value in microseconds (default: 1)
	Min int64

	// Max is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	Max int64

	// SigFigs is the number of significant figures (default: 3)
	SigFigs int
}

// DefaultHistogramConfig returns the default configuration.
func DefaultHistogramConfig() HistogramConfig {
	return HistogramConfig{
		Min:     1,
		Max:     3600000000, // 1 hour in microseconds
		SigFigs: 3,
	}
}

// latencyHistogram is a mutex-guarded HDR histogram. HDR RecordValue is not
// thread-safe on its own.
type latencyHistogram struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
	cfg  HistogramConfig
}

func newLatencyHistogram(cfg HistogramConfig) *latencyHistogram {
	return &latencyHistogram{
		hist: hdrhistogram.New(cfg.Min, cfg.Max, cfg.SigFigs),
		cfg:  cfg,
	}
}

// Record records d, clamped to the configured range.
func (h *latencyHistogram) Record(d time.Duration) {
	micros := d.Microseconds()
	if micros < h.cfg.Min {
		micros = h.cfg.Min
	}
	if micros > h.cfg.Max {
		micros = h.cfg.Max
	}

	h.mu.Lock()
	_ = h.hist.RecordValue(micros)
	h.mu.Unlock()
}

// Stats returns summary statistics backed by a private copy of the
// histogram, so later recordings do not change them.
func (h *latencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	copied := hdrhistogram.Import(h.hist.Export())
	h.mu.Unlock()

	return newLatencyStats(copied)
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`

	hist *hdrhistogram.Histogram
}

func newLatencyStats(hist *hdrhistogram.Histogram) LatencyStats {
	if hist.TotalCount() == 0 {
		return LatencyStats{hist: hist}
	}

	micros := func(v float64) time.Duration {
		return time.Duration(v * float64(time.Microsecond))
	}

	return LatencyStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   micros(hist.Mean()),
		StdDev: micros(hist.StdDev()),
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
		hist:   hist,
	}
}

// Percentile returns the latency at percentile p (0-100). It returns 0 when
// nothing was recorded.
func (s LatencyStats) Percentile(p float64) time.Duration {
	if s.hist == nil || s.Count == 0 {
		return 0
	}
	return time.Duration(s.hist.ValueAtQuantile(p)) * time.Microsecond
}
