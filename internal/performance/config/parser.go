package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slorun/slorun/internal/performance/transport"
)

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults applies default values to a TestConfig.
func ApplyDefaults(config *TestConfig) {
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = Duration(30 * time.Second)
	}
	if config.Settings.MaxIdleConnsPerHost == 0 {
		config.Settings.MaxIdleConnsPerHost = 1000
	}
	if config.Settings.Transport == "" {
		config.Settings.Transport = string(transport.KindHTTP)
	}

	if config.Options == nil {
		config.Options = &ExecutionOptions{}
	}
	if config.Options.SetupTimeout == "" {
		config.Options.SetupTimeout = "30s"
	}

	for _, sc := range config.Scenarios {
		if sc == nil {
			continue
		}
		if sc.Executor == "" {
			sc.Executor = ExecutorConstantArrivalRate
		}
		if sc.TimeUnit == "" {
			sc.TimeUnit = "1s"
		}
		if sc.Backpressure == "" {
			sc.Backpressure = "drop"
		}
	}
}

// ScenarioTiming holds the parsed durations of a ScenarioConfig.
type ScenarioTiming struct {
	TimeUnit     time.Duration
	Duration     time.Duration
	GracefulStop time.Duration
	ThinkTime    time.Duration

	// HasThinkTime is set when the scenario overrides the workflow think time
	HasThinkTime bool
}

// ParseScenarioTiming parses the duration fields of a scenario.
func ParseScenarioTiming(sc *ScenarioConfig) (ScenarioTiming, error) {
	var (
		timing ScenarioTiming
		err    error
	)

	if timing.TimeUnit, err = ParseDurationString(sc.TimeUnit); err != nil {
		return timing, fmt.Errorf("invalid timeUnit: %w", err)
	}
	if timing.TimeUnit == 0 {
		timing.TimeUnit = time.Second
	}
	if timing.Duration, err = ParseDurationString(sc.Duration); err != nil {
		return timing, fmt.Errorf("invalid duration: %w", err)
	}
	if timing.GracefulStop, err = ParseDurationString(sc.GracefulStop); err != nil {
		return timing, fmt.Errorf("invalid gracefulStop: %w", err)
	}
	if sc.ThinkTime != "" {
		if timing.ThinkTime, err = ParseDurationString(sc.ThinkTime); err != nil {
			return timing, fmt.Errorf("invalid thinkTime: %w", err)
		}
		timing.HasThinkTime = true
	}

	return timing, nil
}

// TransportConfig converts the global settings into a transport kind and
// client configuration.
func (c *TestConfig) TransportConfig() (transport.Kind, transport.Config) {
	cfg := transport.DefaultConfig()
	cfg.BaseURL = strings.TrimRight(c.Settings.BaseURL, "/")
	cfg.Timeout = c.Settings.Timeout.GetDuration(cfg.Timeout)
	cfg.MaxConnsPerHost = c.Settings.MaxConnectionsPerHost
	if c.Settings.MaxIdleConnsPerHost > 0 {
		cfg.MaxIdleConnsPerHost = c.Settings.MaxIdleConnsPerHost
	}
	cfg.InsecureSkipVerify = c.Settings.InsecureSkipVerify
	if len(c.Settings.Headers) > 0 {
		cfg.Headers = make(map[string]string, len(c.Settings.Headers))
		for k, v := range c.Settings.Headers {
			cfg.Headers[k] = v
		}
	}
	return transport.Kind(c.Settings.Transport), cfg
}

// SetupTimeout returns the parsed setup timeout, or zero if unset or invalid.
func (c *TestConfig) SetupTimeout() time.Duration {
	if c.Options == nil {
		return 0
	}
	d, _ := ParseDurationString(c.Options.SetupTimeout)
	return d
}

// SnapshotInterval returns the parsed snapshot interval, or zero if unset or
// invalid.
func (c *TestConfig) SnapshotInterval() time.Duration {
	if c.Options == nil {
		return 0
	}
	d, _ := ParseDurationString(c.Options.SnapshotInterval)
	return d
}
