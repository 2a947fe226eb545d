// Package threshold parses pass/fail criteria and evaluates them against a
// metrics snapshot.
//
// Expressions follow the k6 form ("p(99)<100", "rate<0.0001") and the
// spaced form ("p99 < 100ms", "rate < 0.01"). A metric name may select a
// single scenario: "http_req_duration{scenario:pvz_scenario}".
package threshold

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Metric names a measured quantity.
type Metric string

const (
	IterationDuration Metric = "iteration_duration"
	Iterations        Metric = "iterations"
	IterationFailed   Metric = "iteration_failed"
	DroppedIterations Metric = "dropped_iterations"
	HTTPReqDuration   Metric = "http_req_duration"
	HTTPReqFailed     Metric = "http_req_failed"
	HTTPReqs          Metric = "http_reqs"
)

// metricAliases maps accepted spellings to canonical metrics.
var metricAliases = map[string]Metric{
	"iteration_duration": IterationDuration,
	"iterations":         Iterations,
	"iteration_failed":   IterationFailed,
	"failure_rate":       IterationFailed,
	"dropped_iterations": DroppedIterations,
	"http_req_duration":  HTTPReqDuration,
	"http_req_failed":    HTTPReqFailed,
	"http_reqs":          HTTPReqs,
}

// IsDuration reports whether the metric is measured in time.
func (m Metric) IsDuration() bool {
	return m == IterationDuration || m == HTTPReqDuration
}

// Aggregation reduces a metric to one number.
type Aggregation string

const (
	AggPercentile Aggregation = "p"
	AggAvg        Aggregation = "avg"
	AggMin        Aggregation = "min"
	AggMax        Aggregation = "max"
	AggMed        Aggregation = "med"
	AggRate       Aggregation = "rate"
	AggCount      Aggregation = "count"
)

// allowed lists the aggregations each metric supports.
var allowed = map[Metric][]Aggregation{
	IterationDuration: {AggPercentile, AggAvg, AggMin, AggMax, AggMed, AggCount},
	HTTPReqDuration:   {AggPercentile, AggAvg, AggMin, AggMax, AggMed, AggCount},
	Iterations:        {AggCount, AggRate},
	HTTPReqs:          {AggCount, AggRate},
	DroppedIterations: {AggCount, AggRate},
	IterationFailed:   {AggRate, AggCount},
	HTTPReqFailed:     {AggRate, AggCount},
}

// Spec is one parsed threshold.
type Spec struct {
	Metric Metric
	// Scenario restricts the threshold to one scenario; empty means global
	Scenario    string
	Aggregation Aggregation
	// Percentile is set for AggPercentile, in (0, 100]
	Percentile float64
	Operator   string
	// Limit is in milliseconds for duration metrics
	Limit float64
	// Expression is the text the spec was parsed from
	Expression string
}

// Selector returns the metric with its scenario tag, if any.
func (s Spec) Selector() string {
	if s.Scenario == "" {
		return string(s.Metric)
	}
	return fmt.Sprintf("%s{scenario:%s}", s.Metric, s.Scenario)
}

// String returns a canonical form of the threshold.
func (s Spec) String() string {
	agg := string(s.Aggregation)
	if s.Aggregation == AggPercentile {
		agg = "p(" + strconv.FormatFloat(s.Percentile, 'f', -1, 64) + ")"
	}
	return fmt.Sprintf("%s: %s%s%s", s.Selector(), agg, s.Operator, strconv.FormatFloat(s.Limit, 'f', -1, 64))
}

var (
	selectorRe   = regexp.MustCompile(`^(\w+)\s*(?:\{\s*scenario\s*:\s*([\w.-]+)\s*\})?$`)
	expressionRe = regexp.MustCompile(`^(p\(\s*[\d.]+\s*\)|p[\d.]+|\w+)\s*(<=|>=|==|!=|<|>|=)\s*(.+)$`)
)

// ParseError describes an invalid threshold.
type ParseError struct {
	Metric     string
	Expression string
	Reason     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid threshold %s: %q: %s", e.Metric, e.Expression, e.Reason)
}

// Parse parses one threshold expression for a metric selector.
func Parse(metric, expr string) (Spec, error) {
	fail := func(format string, args ...any) (Spec, error) {
		return Spec{}, &ParseError{Metric: metric, Expression: expr, Reason: fmt.Sprintf(format, args...)}
	}

	sel := selectorRe.FindStringSubmatch(strings.TrimSpace(metric))
	if sel == nil {
		return fail("invalid metric selector")
	}
	m, ok := metricAliases[sel[1]]
	if !ok {
		return fail("unknown metric %q", sel[1])
	}

	parts := expressionRe.FindStringSubmatch(strings.TrimSpace(expr))
	if parts == nil {
		return fail("invalid expression format")
	}

	spec := Spec{
		Metric:     m,
		Scenario:   sel[2],
		Operator:   parts[2],
		Expression: strings.TrimSpace(expr),
	}
	if spec.Operator == "=" {
		spec.Operator = "=="
	}

	agg, pct, err := parseAggregation(parts[1])
	if err != nil {
		return fail("%v", err)
	}
	if !supports(m, agg) {
		return fail("%s does not support %q", m, parts[1])
	}
	spec.Aggregation = agg
	spec.Percentile = pct

	limit, err := parseLimit(m, agg, strings.TrimSpace(parts[3]))
	if err != nil {
		return fail("%v", err)
	}
	spec.Limit = limit

	return spec, nil
}

// ParseAll parses a metric → expressions map. Specs are ordered by
// selector, then by expression order within the selector.
func ParseAll(thresholds map[string][]string) ([]Spec, error) {
	selectors := make([]string, 0, len(thresholds))
	for sel := range thresholds {
		selectors = append(selectors, sel)
	}
	sort.Strings(selectors)

	var specs []Spec
	for _, sel := range selectors {
		for _, expr := range thresholds[sel] {
			spec, err := Parse(sel, expr)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
	}
	return specs, nil
}

func parseAggregation(s string) (Aggregation, float64, error) {
	if strings.HasPrefix(s, "p") && len(s) > 1 && (s[1] == '(' || (s[1] >= '0' && s[1] <= '9')) {
		num := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(s, "p"), "("), ")")
		p, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil || p <= 0 || p > 100 {
			return "", 0, fmt.Errorf("percentile must be in (0, 100], got %q", s)
		}
		return AggPercentile, p, nil
	}

	switch agg := Aggregation(s); agg {
	case AggAvg, AggMin, AggMax, AggMed, AggRate, AggCount:
		return agg, 0, nil
	}
	return "", 0, fmt.Errorf("unknown aggregation %q", s)
}

func supports(m Metric, agg Aggregation) bool {
	for _, a := range allowed[m] {
		if a == agg {
			return true
		}
	}
	return false
}

// parseLimit returns the limit in the unit the evaluator compares in:
// milliseconds for time aggregations of duration metrics, plain numbers
// otherwise.
func parseLimit(m Metric, agg Aggregation, s string) (float64, error) {
	if m.IsDuration() && agg != AggCount {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration limit %q", s)
		}
		return float64(d) / float64(time.Millisecond), nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric limit %q", s)
	}
	return v, nil
}
