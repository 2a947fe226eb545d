// Package config provides configuration parsing and validation for load test
// files.
package config

import (
	"time"
)

// Executor names accepted in scenario configuration.
const (
	ExecutorConstantArrivalRate = "constant-arrival-rate"
)

// TestConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: "pvz-slo"
//	settings:
//	  baseUrl: "http://localhost:8080"
//	  timeout: 5s
//	scenarios:
//	  pvz_scenario:
//	    executor: constant-arrival-rate
//	    rate: 450
//	    timeUnit: 1s
//	    duration: 2m
//	    preAllocatedVUs: 450
//	    maxVUs: 550
//	    exec: pvzScenario
//	thresholds:
//	  http_req_failed: ["rate<0.0001"]
//	  http_req_duration: ["p(99)<100"]
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains global transport settings for all scenarios
	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Scenarios defines the load profiles to run. Each scenario runs
	// concurrently with its own schedule and worker pool.
	Scenarios map[string]*ScenarioConfig `json:"scenarios" yaml:"scenarios"`

	// Thresholds map a metric selector to pass/fail expressions, e.g.
	// "http_req_duration{scenario:pvz_scenario}": ["p(99)<100"]
	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Options for test execution
	Options *ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// GlobalSettings contains transport settings.
type GlobalSettings struct {
	// BaseURL is prefixed to every request path
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the per-request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Transport selects the client implementation: "http" or "fasthttp"
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty"`

	// MaxConnectionsPerHost limits connections per host (0 = unlimited)
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// Headers are default headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ScenarioConfig defines a single open-model scenario.
type ScenarioConfig struct {
	// Executor specifies the load generation strategy. Only
	// "constant-arrival-rate" is supported.
	Executor string `json:"executor" yaml:"executor"`

	// Rate is iterations per TimeUnit
	Rate float64 `json:"rate" yaml:"rate"`

	// TimeUnit is the period Rate is expressed in (default "1s")
	TimeUnit string `json:"timeUnit,omitempty" yaml:"timeUnit,omitempty"`

	// Duration is how long to schedule arrivals (e.g., "30s", "2m")
	Duration string `json:"duration" yaml:"duration"`

	// PreAllocatedVUs is the number of workers created before the first arrival
	PreAllocatedVUs int `json:"preAllocatedVUs" yaml:"preAllocatedVUs"`

	// MaxVUs bounds concurrently running iterations
	MaxVUs int `json:"maxVUs" yaml:"maxVUs"`

	// Exec names the workflow run by every iteration
	Exec string `json:"exec" yaml:"exec"`

	// Backpressure is the policy for arrivals finding no free worker
	// (default "drop", the only supported value)
	Backpressure string `json:"backpressure,omitempty" yaml:"backpressure,omitempty"`

	// GracefulStop is how long to wait for in-flight iterations
	GracefulStop string `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// ThinkTime overrides the workflow's pause after its last step
	ThinkTime string `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`
}

// ExecutionOptions controls test execution behavior.
type ExecutionOptions struct {
	// SetupTimeout is the maximum time for the setup stage
	SetupTimeout string `json:"setupTimeout,omitempty" yaml:"setupTimeout,omitempty"`

	// MetricsAddr serves Prometheus metrics on this address when set
	MetricsAddr string `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`

	// SnapshotInterval logs a metrics snapshot this often when set
	SnapshotInterval string `json:"snapshotInterval,omitempty" yaml:"snapshotInterval,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
