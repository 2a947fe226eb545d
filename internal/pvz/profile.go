package pvz

import (
	"time"

	"github.com/slorun/slorun/internal/performance/config"
)

// DefaultBaseURL is the service address inside the compose network.
const DefaultBaseURL = "http://app:8080"

// DefaultConfig returns the standard SLO profile: 1000 iterations per
// second split 10/45/45 across the three scenarios for two minutes, with
// no more than 0.01% failed requests and a p99 under 100ms.
func DefaultConfig() *config.TestConfig {
	scenario := func(rate float64, pre, max int, exec string) *config.ScenarioConfig {
		return &config.ScenarioConfig{
			Executor:        config.ExecutorConstantArrivalRate,
			Rate:            rate,
			TimeUnit:        "1s",
			Duration:        "2m",
			PreAllocatedVUs: pre,
			MaxVUs:          max,
			Exec:            exec,
			Backpressure:    "drop",
		}
	}

	return &config.TestConfig{
		Name:        "pvz-slo",
		Description: "PVZ service throughput and latency SLO",
		Settings: config.GlobalSettings{
			BaseURL:   DefaultBaseURL,
			Timeout:   config.Duration(5 * time.Second),
			Transport: "http",
		},
		Scenarios: map[string]*config.ScenarioConfig{
			"auth_scenario":      scenario(100, 100, 150, ExecAuth),
			"pvz_scenario":       scenario(450, 450, 550, ExecPVZ),
			"reception_scenario": scenario(450, 450, 550, ExecReception),
		},
		Thresholds: map[string][]string{
			"http_req_failed":   {"rate<0.0001"},
			"http_req_duration": {"p(99)<100"},
		},
		Options: &config.ExecutionOptions{
			SetupTimeout: "30s",
		},
	}
}
