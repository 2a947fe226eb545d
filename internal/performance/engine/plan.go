package engine

import (
	"fmt"
	"sort"

	"github.com/slorun/slorun/internal/performance/config"
	"github.com/slorun/slorun/internal/performance/executor"
	"github.com/slorun/slorun/internal/performance/setup"
	"github.com/slorun/slorun/internal/performance/threshold"
	"github.com/slorun/slorun/internal/performance/workflow"
)

// Suite is the code side of a test: the setup operations and the workflows
// that configuration files refer to by name.
type Suite struct {
	Setup     []setup.Operation
	Workflows map[string]*workflow.Workflow
}

// Workflow returns the workflow registered under name.
func (s Suite) Workflow(name string) (*workflow.Workflow, bool) {
	wf, ok := s.Workflows[name]
	return wf, ok && wf != nil
}

// WorkflowNames returns the registered workflow names, sorted.
func (s Suite) WorkflowNames() []string {
	names := make([]string, 0, len(s.Workflows))
	for name := range s.Workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PlanFromConfig validates cfg and resolves it against suite. Scenarios are
// ordered by name.
func PlanFromConfig(cfg *config.TestConfig, suite Suite) (Plan, error) {
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return Plan{}, fmt.Errorf("invalid configuration: %w", err)
	}

	names := make([]string, 0, len(cfg.Scenarios))
	for name := range cfg.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	plan := Plan{
		Name:         cfg.Name,
		Setup:        suite.Setup,
		SetupTimeout: cfg.SetupTimeout(),
	}

	for _, name := range names {
		sc := cfg.Scenarios[name]

		wf, ok := suite.Workflow(sc.Exec)
		if !ok {
			return Plan{}, fmt.Errorf("scenario %s: unknown exec %q (available: %v)", name, sc.Exec, suite.WorkflowNames())
		}

		timing, err := config.ParseScenarioTiming(sc)
		if err != nil {
			return Plan{}, fmt.Errorf("scenario %s: %w", name, err)
		}
		if timing.HasThinkTime {
			override := *wf
			override.ThinkTime = timing.ThinkTime
			wf = &override
		}

		plan.Scenarios = append(plan.Scenarios, executor.ScenarioSpec{
			Name:                name,
			Rate:                sc.Rate,
			TimeUnit:            timing.TimeUnit,
			Duration:            timing.Duration,
			PreAllocatedWorkers: sc.PreAllocatedVUs,
			MaxWorkers:          sc.MaxVUs,
			Workflow:            wf,
			Backpressure:        executor.Backpressure(sc.Backpressure),
			GracefulStop:        timing.GracefulStop,
		})
	}

	specs, err := threshold.ParseAll(cfg.Thresholds)
	if err != nil {
		return Plan{}, err
	}
	plan.Thresholds = specs

	return plan, nil
}
