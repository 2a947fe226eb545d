package threshold

import (
	"fmt"
	"time"

	"github.com/slorun/slorun/internal/performance/metrics"
)

// Result is the outcome of one threshold.
type Result struct {
	Spec    Spec    `json:"-"`
	Metric  string  `json:"metric"`
	Expr    string  `json:"expression"`
	Actual  float64 `json:"actual"`
	Value   string  `json:"value"`
	Passed  bool    `json:"passed"`
	Message string  `json:"message,omitempty"`
}

// Verdict is the conjunction of all threshold results.
type Verdict struct {
	Passed  bool     `json:"passed"`
	Results []Result `json:"results"`
}

// Failed returns the results that did not pass.
func (v Verdict) Failed() []Result {
	var failed []Result
	for _, r := range v.Results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Evaluate checks every spec against snap. It has no side effects: the same
// inputs always give the same verdict. A run with no thresholds passes.
func Evaluate(specs []Spec, snap *metrics.Snapshot) Verdict {
	verdict := Verdict{Passed: true, Results: make([]Result, 0, len(specs))}
	for _, spec := range specs {
		r := evaluateOne(spec, snap)
		if !r.Passed {
			verdict.Passed = false
		}
		verdict.Results = append(verdict.Results, r)
	}
	return verdict
}

func evaluateOne(spec Spec, snap *metrics.Snapshot) Result {
	result := Result{
		Spec:   spec,
		Metric: spec.Selector(),
		Expr:   spec.Expression,
	}

	if snap == nil {
		result.Message = "no metrics recorded"
		return result
	}

	stats := snap.Global
	if spec.Scenario != "" {
		var ok bool
		stats, ok = snap.Scenario(spec.Scenario)
		if !ok {
			result.Message = fmt.Sprintf("unknown scenario %q", spec.Scenario)
			return result
		}
	}

	actual, display, err := measure(spec, stats)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	result.Actual = actual
	result.Value = display
	result.Passed = compareValues(actual, spec.Operator, spec.Limit)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s", spec.Aggregation.label(spec), display, spec.Expression)
	}
	return result
}

func (a Aggregation) label(spec Spec) string {
	if a == AggPercentile {
		return fmt.Sprintf("p(%g)", spec.Percentile)
	}
	return string(a)
}

// measure extracts the number a spec compares against its limit.
func measure(spec Spec, st metrics.ScenarioStats) (float64, string, error) {
	switch spec.Metric {
	case IterationDuration, HTTPReqDuration:
		lat := st.IterationDuration
		if spec.Metric == HTTPReqDuration {
			lat = st.RequestDuration
		}
		if spec.Aggregation == AggCount {
			return float64(lat.Count), fmt.Sprintf("%d", lat.Count), nil
		}
		if lat.Count == 0 {
			return 0, "", fmt.Errorf("no %s samples", spec.Metric)
		}

		var d time.Duration
		switch spec.Aggregation {
		case AggPercentile:
			d = lat.Percentile(spec.Percentile)
		case AggAvg:
			d = lat.Mean
		case AggMin:
			d = lat.Min
		case AggMax:
			d = lat.Max
		case AggMed:
			d = lat.Percentile(50)
		}
		return float64(d) / float64(time.Millisecond), d.String(), nil

	case Iterations, HTTPReqs, DroppedIterations:
		count, rate := st.Iterations, st.IterationRate
		switch spec.Metric {
		case HTTPReqs:
			count, rate = st.Requests, st.RequestRate
		case DroppedIterations:
			count = st.Dropped
			rate = 0
			if st.Iterations > 0 {
				rate = st.IterationRate * float64(st.Dropped) / float64(st.Iterations)
			}
		}
		if spec.Aggregation == AggCount {
			return float64(count), fmt.Sprintf("%d", count), nil
		}
		return rate, fmt.Sprintf("%.2f/s", rate), nil

	case IterationFailed, HTTPReqFailed:
		failed, total, rate := st.Failed, st.Iterations, st.FailureRate
		if spec.Metric == HTTPReqFailed {
			failed, total, rate = st.RequestsFailed, st.Requests, st.RequestFailureRate
		}
		if spec.Aggregation == AggCount {
			return float64(failed), fmt.Sprintf("%d", failed), nil
		}
		if total == 0 {
			return 0, "", fmt.Errorf("no %s samples", spec.Metric)
		}
		return rate, fmt.Sprintf("%.4f", rate), nil
	}

	return 0, "", fmt.Errorf("unsupported metric %q", spec.Metric)
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}
