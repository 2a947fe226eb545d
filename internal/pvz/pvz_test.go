package pvz

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slorun/slorun/internal/performance/engine"
	"github.com/slorun/slorun/internal/performance/setup"
	"github.com/slorun/slorun/internal/performance/transport"
	"github.com/slorun/slorun/internal/performance/workflow"
)

func httpTransport(baseURL string) transport.Transport {
	cfg := transport.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = 5 * time.Second
	return transport.NewHTTP(cfg)
}

func runSetup(t *testing.T, tr transport.Transport, seed int) *setup.Result {
	t.Helper()
	result, err := setup.NewStage(tr, SetupOperations(seed)).Run(context.Background())
	require.NoError(t, err)
	return result
}

func withoutThinkTime(wf *workflow.Workflow) *workflow.Workflow {
	wf.ThinkTime = 0
	return wf
}

func TestSetupOperations(t *testing.T) {
	svc, srv := newFakeService(t)

	ops := SetupOperations(DefaultSeedCount)
	require.Len(t, ops, 2+DefaultSeedCount)
	assert.Equal(t, "dummyLogin employee", ops[0].Name)
	assert.Equal(t, "seed pvz#20", ops[len(ops)-1].Name)

	result := runSetup(t, httpTransport(srv.URL), DefaultSeedCount)
	assert.Equal(t, "token-employee", result.String(KeyEmployeeToken))
	assert.Equal(t, "token-moderator", result.String(KeyModeratorToken))

	ids := result.Strings(KeySeededPVZIDs)
	assert.Len(t, ids, DefaultSeedCount)
	assert.NotEqual(t, ids[0], ids[1], "every seeded pvz has a fresh id")
	assert.Equal(t, DefaultSeedCount, svc.Count("POST /pvz"))
}

func TestSetupOperations_RejectedLoginAborts(t *testing.T) {
	tr := transport.Func(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: http.StatusOK}, nil
	})

	_, err := setup.NewStage(tr, SetupOperations(1)).Run(context.Background())
	var failure *setup.Failure
	require.True(t, errors.As(err, &failure), "error = %v", err)
	assert.Equal(t, "dummyLogin employee", failure.Operation)
	assert.Equal(t, setup.PhaseExpect, failure.Phase, "empty token is an unexpected response")
}

func TestWorkflows_SucceedAgainstService(t *testing.T) {
	svc, srv := newFakeService(t)
	tr := httpTransport(srv.URL)
	shared := runSetup(t, tr, 3)

	exec := workflow.NewExecutor(tr)
	for name, wf := range Workflows() {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, wf.Validate())
			err := exec.Execute(context.Background(), name, withoutThinkTime(wf), shared)
			assert.NoError(t, err)
		})
	}

	assert.Equal(t, 1, svc.Count("POST /register"))
	assert.Equal(t, 1, svc.Count("POST /login"))
	assert.Equal(t, 1, svc.Count("GET /pvz"))
	assert.Equal(t, 1, svc.Count("POST /receptions"))
	assert.Equal(t, 1, svc.Count("POST /products"))
}

func TestAuthWorkflow_FreshCredentialsPerIteration(t *testing.T) {
	_, srv := newFakeService(t)
	tr := httpTransport(srv.URL)
	exec := workflow.NewExecutor(tr)
	wf := withoutThinkTime(AuthWorkflow())

	for i := 0; i < 3; i++ {
		require.NoError(t, exec.Execute(context.Background(), "auth_scenario", wf, nil), "iteration %d", i)
	}
}

func TestPVZWorkflow_EmptyListFails(t *testing.T) {
	_, srv := newFakeService(t)
	tr := httpTransport(srv.URL)
	shared := runSetup(t, tr, 0)

	err := workflow.NewExecutor(tr).Execute(context.Background(), ExecPVZ, withoutThinkTime(PVZWorkflow()), shared)
	var stepErr *workflow.StepError
	require.True(t, errors.As(err, &stepErr), "error = %v", err)
	assert.Equal(t, workflow.KindExpect, stepErr.Kind)
}

func TestAnyPVZID(t *testing.T) {
	tests := []struct {
		body    string
		wantErr bool
	}{
		{`[{"pvz":{"id":"a"}}]`, false},
		{`[{"receptions":[]},{"pvz":{"id":"b"}}]`, false},
		{`[{"pvz":{"id":""}}]`, true},
		{`[]`, true},
	}

	for _, tt := range tests {
		err := anyPVZID(&transport.Response{Body: []byte(tt.body)})
		assert.Equal(t, tt.wantErr, err != nil, tt.body)
	}
}

func TestReceptionWorkflow_StopsAtFirstFailure(t *testing.T) {
	var paths []string
	tr := transport.Func(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		paths = append(paths, req.Path)
		if req.Path == PathPVZ {
			return &transport.Response{StatusCode: http.StatusCreated, Body: []byte(`{"id":"p-1"}`)}, nil
		}
		return &transport.Response{StatusCode: http.StatusForbidden}, nil
	})
	shared := setup.NewResult(map[string]any{KeyEmployeeToken: "e", KeyModeratorToken: "m"})

	err := workflow.NewExecutor(tr).Execute(context.Background(), "reception_scenario", withoutThinkTime(ReceptionWorkflow()), shared)
	var stepErr *workflow.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "create reception", stepErr.Step)
	assert.Equal(t, 1, stepErr.Index)
	assert.Equal(t, []string{PathPVZ, PathReceptions}, paths)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/pvz/p-1/delete_last_product", deleteLastProductPath("p-1"))
	assert.Equal(t, "/pvz/p-1/close_last_reception", closeLastReceptionPath("p-1"))
	assert.True(t, strings.HasPrefix(listPath(), "/pvz?"))
	assert.Contains(t, listPath(), "limit=10")
	assert.Contains(t, listPath(), "page=1")
}

func TestNewCredentials(t *testing.T) {
	a, b := NewCredentials(), NewCredentials()
	assert.NotEqual(t, a.Email, b.Email)
	assert.True(t, strings.HasPrefix(a.Email, "load_test_"))
	assert.True(t, strings.HasSuffix(a.Email, "@test.com"))
	assert.Len(t, a.Password, 6)
	assert.Equal(t, RoleEmployee, a.Role)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	plan, err := engine.PlanFromConfig(cfg, Suite())
	require.NoError(t, err)
	require.Len(t, plan.Scenarios, 3)
	assert.Len(t, plan.Setup, 2+DefaultSeedCount)
	assert.Len(t, plan.Thresholds, 2)

	byName := make(map[string]float64)
	var total float64
	for _, sc := range plan.Scenarios {
		byName[sc.Name] = sc.Rate
		total += sc.Rate
		assert.Equal(t, 2*time.Minute, sc.Duration)
		assert.Equal(t, ThinkTime, sc.Workflow.ThinkTime)
	}
	assert.Equal(t, 1000.0, total)
	assert.Equal(t, 100.0, byName["auth_scenario"])
	assert.Equal(t, 450.0, byName["pvz_scenario"])
}

// TestLoadRun drives all three scenarios against the fake service through
// both transports.
func TestLoadRun(t *testing.T) {
	for _, kind := range []transport.Kind{transport.KindHTTP, transport.KindFastHTTP} {
		t.Run(string(kind), func(t *testing.T) {
			svc, srv := newFakeService(t)

			cfg := DefaultConfig()
			cfg.Settings.BaseURL = srv.URL
			cfg.Settings.Transport = string(kind)
			for _, sc := range cfg.Scenarios {
				sc.Rate = 20
				sc.Duration = "500ms"
				sc.PreAllocatedVUs = 5
				sc.MaxVUs = 10
				sc.ThinkTime = "0s"
			}
			cfg.Thresholds["failure_rate"] = []string{"rate<0.5"}
			cfg.Thresholds["dropped_iterations"] = []string{"count==0"}

			plan, err := engine.PlanFromConfig(cfg, Suite())
			require.NoError(t, err)

			tr, err := transport.New(cfg.TransportConfig())
			require.NoError(t, err)

			eng, err := engine.New(plan, tr)
			require.NoError(t, err)

			result, err := eng.Run(context.Background())
			require.NoError(t, err)

			// The p99 latency threshold depends on the machine; the rest must pass.
			for _, r := range result.Verdict.Results {
				if r.Spec.Metric == "http_req_duration" {
					continue
				}
				assert.True(t, r.Passed, "%s %s: %s", r.Metric, r.Expr, r.Message)
			}

			snap := result.Metrics
			iterations := make(map[string]int64)
			for _, name := range []string{"auth_scenario", "pvz_scenario", "reception_scenario"} {
				s, ok := snap.Scenario(name)
				require.True(t, ok, name)
				assert.Equal(t, int64(10), s.Iterations+s.Missed, name)
				assert.Equal(t, int64(0), s.Failed, name)
				iterations[name] = s.Iterations
			}
			wantRequests := 2*iterations["auth_scenario"] + iterations["pvz_scenario"] + 5*iterations["reception_scenario"]
			assert.Equal(t, wantRequests, snap.Global.Requests)
			assert.Contains(t, snap.Scenarios["reception_scenario"].Steps, "close last reception")
			assert.Equal(t, int(iterations["auth_scenario"]), svc.Count("POST /register"))

			// setup seeds the list, then every reception iteration adds one
			assert.Equal(t, DefaultSeedCount+int(iterations["reception_scenario"]), svc.Count("POST /pvz"))
			assert.Equal(t, int64(0), snap.Global.Dropped)
		})
	}
}
