package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/slorun/slorun/internal/performance/threshold"
	"github.com/slorun/slorun/internal/performance/transport"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a ValidationErrors containing all validation
// errors in a stable order.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if len(c.Scenarios) == 0 {
		errs.Add("scenarios", "at least one scenario is required")
	}

	names := make([]string, 0, len(c.Scenarios))
	for name := range c.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		validateScenario(name, c.Scenarios[name], errs)
	}

	validateThresholds(c.Thresholds, c.Scenarios, errs)
	validateSettings(&c.Settings, errs)
	validateOptions(c.Options, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateScenario validates a single scenario configuration.
func validateScenario(name string, sc *ScenarioConfig, errs *ValidationErrors) {
	prefix := fmt.Sprintf("scenarios.%s", name)

	if sc == nil {
		errs.Add(prefix, "scenario is empty")
		return
	}

	switch sc.Executor {
	case "":
		errs.Add(prefix+".executor", "executor type is required")
	case ExecutorConstantArrivalRate:
	default:
		errs.Add(prefix+".executor", fmt.Sprintf("unsupported executor type: %s (only %s)", sc.Executor, ExecutorConstantArrivalRate))
	}

	if sc.Rate <= 0 {
		errs.Add(prefix+".rate", "rate must be greater than 0")
	}

	if sc.Duration == "" {
		errs.Add(prefix+".duration", "duration is required for constant-arrival-rate executor")
	} else if d, err := ParseDurationString(sc.Duration); err != nil {
		errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
	} else if d <= 0 {
		errs.Add(prefix+".duration", "duration must be greater than 0")
	}

	if sc.TimeUnit != "" {
		if d, err := ParseDurationString(sc.TimeUnit); err != nil {
			errs.Add(prefix+".timeUnit", fmt.Sprintf("invalid timeUnit: %v", err))
		} else if d <= 0 {
			errs.Add(prefix+".timeUnit", "timeUnit must be greater than 0")
		}
	}

	if sc.PreAllocatedVUs < 0 {
		errs.Add(prefix+".preAllocatedVUs", "preAllocatedVUs cannot be negative")
	}
	if sc.MaxVUs < 0 {
		errs.Add(prefix+".maxVUs", "maxVUs cannot be negative")
	}
	if sc.PreAllocatedVUs > sc.MaxVUs {
		errs.Add(prefix+".preAllocatedVUs", "preAllocatedVUs cannot be greater than maxVUs")
	}

	if sc.Exec == "" {
		errs.Add(prefix+".exec", "exec is required")
	}

	if sc.Backpressure != "" && sc.Backpressure != "drop" {
		errs.Add(prefix+".backpressure", fmt.Sprintf("unsupported backpressure policy: %s (arrivals are never queued)", sc.Backpressure))
	}

	if sc.GracefulStop != "" {
		if _, err := ParseDurationString(sc.GracefulStop); err != nil {
			errs.Add(prefix+".gracefulStop", fmt.Sprintf("invalid gracefulStop: %v", err))
		}
	}
	if sc.ThinkTime != "" {
		if _, err := ParseDurationString(sc.ThinkTime); err != nil {
			errs.Add(prefix+".thinkTime", fmt.Sprintf("invalid thinkTime: %v", err))
		}
	}
}

// validateThresholds parses every threshold expression and checks that
// scenario selectors name a configured scenario.
func validateThresholds(thresholds map[string][]string, scenarios map[string]*ScenarioConfig, errs *ValidationErrors) {
	metrics := make([]string, 0, len(thresholds))
	for metric := range thresholds {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	for _, metric := range metrics {
		for i, expr := range thresholds[metric] {
			field := fmt.Sprintf("thresholds.%s[%d]", metric, i)
			spec, err := threshold.Parse(metric, expr)
			if err != nil {
				errs.Add(field, err.Error())
				continue
			}
			if spec.Scenario != "" {
				if _, ok := scenarios[spec.Scenario]; !ok {
					errs.Add(field, fmt.Sprintf("unknown scenario %q", spec.Scenario))
				}
			}
		}
	}
}

// validateSettings validates global settings.
func validateSettings(settings *GlobalSettings, errs *ValidationErrors) {
	if settings.BaseURL != "" {
		u, err := url.Parse(settings.BaseURL)
		if err != nil {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add("settings.baseUrl", "URL must use http or https scheme")
		}
	}

	if settings.Timeout < 0 {
		errs.Add("settings.timeout", "timeout cannot be negative")
	}

	switch transport.Kind(settings.Transport) {
	case "", transport.KindHTTP, transport.KindFastHTTP:
	default:
		errs.Add("settings.transport", fmt.Sprintf("unknown transport: %s", settings.Transport))
	}

	if settings.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if settings.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
}

// validateOptions validates execution options.
func validateOptions(opts *ExecutionOptions, errs *ValidationErrors) {
	if opts == nil {
		return
	}
	if _, err := ParseDurationString(opts.SetupTimeout); err != nil {
		errs.Add("options.setupTimeout", fmt.Sprintf("invalid setupTimeout: %v", err))
	}
	if _, err := ParseDurationString(opts.SnapshotInterval); err != nil {
		errs.Add("options.snapshotInterval", fmt.Sprintf("invalid snapshotInterval: %v", err))
	}
}
