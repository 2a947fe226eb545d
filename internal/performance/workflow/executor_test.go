package workflow

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slorun/slorun/internal/performance/check"
	"github.com/slorun/slorun/internal/performance/setup"
	"github.com/slorun/slorun/internal/performance/transport"
)

type observed struct {
	scenario string
	step     string
	failed   bool
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []observed
}

func (r *recordingObserver) ObserveRequest(scenario, step string, latency time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, observed{scenario, step, failed})
}

// scriptedTarget answers each path with a fixed status and body and records
// the paths it saw.
type scriptedTarget struct {
	mu      sync.Mutex
	paths   []string
	answers map[string]*transport.Response
}

func (s *scriptedTarget) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	s.mu.Lock()
	s.paths = append(s.paths, req.Path)
	s.mu.Unlock()

	if resp, ok := s.answers[req.Path]; ok {
		return resp, nil
	}
	return nil, errors.New("connection reset by peer")
}

func get(path string) func(*setup.Result, Outputs) (*transport.Request, error) {
	return func(*setup.Result, Outputs) (*transport.Request, error) {
		return transport.NewRequest(http.MethodGet, path, nil), nil
	}
}

func threeSteps() *Workflow {
	return &Workflow{
		Name: "reception",
		Steps: []Step{
			{
				Name:    "create",
				Build:   get("/create"),
				Expect:  check.Status(http.StatusCreated),
				Extract: ExtractJSON("$.id"),
			},
			{
				Name: "open",
				Build: func(shared *setup.Result, prior Outputs) (*transport.Request, error) {
					return transport.NewRequest(http.MethodPost, "/open/"+prior.String("create"), nil).
						WithBearer(shared.String("token")), nil
				},
				Expect: check.Status(http.StatusCreated),
			},
			{
				Name:   "close",
				Build:  get("/close"),
				Expect: check.Status(http.StatusOK),
			},
		},
	}
}

func TestExecutor_AllStepsSucceed(t *testing.T) {
	target := &scriptedTarget{answers: map[string]*transport.Response{
		"/create":  {StatusCode: 201, Body: []byte(`{"id":"p1"}`)},
		"/open/p1": {StatusCode: 201},
		"/close":   {StatusCode: 200},
	}}
	obs := &recordingObserver{}
	exec := NewExecutor(target, WithObserver(obs))

	err := exec.Execute(context.Background(), "reception_scenario", threeSteps(), setup.NewResult(map[string]any{"token": "t"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"/create", "/open/p1", "/close"}, target.paths)
	require.Len(t, obs.calls, 3)
	assert.Equal(t, observed{"reception_scenario", "open", false}, obs.calls[1])
}

func TestExecutor_PrepareSeedsEachIteration(t *testing.T) {
	target := &scriptedTarget{answers: map[string]*transport.Response{
		"/register/u1": {StatusCode: 201},
		"/register/u2": {StatusCode: 201},
	}}

	n := 0
	wf := &Workflow{
		Name: "auth",
		Prepare: func() Outputs {
			n++
			return Outputs{"user": "u" + string(rune('0'+n))}
		},
		Steps: []Step{{
			Name: "register",
			Build: func(_ *setup.Result, prior Outputs) (*transport.Request, error) {
				return transport.NewRequest(http.MethodPost, "/register/"+prior.String("user"), nil), nil
			},
			Expect: check.Status(http.StatusCreated),
		}},
	}

	exec := NewExecutor(target)
	require.NoError(t, exec.Execute(context.Background(), "auth_scenario", wf, nil))
	require.NoError(t, exec.Execute(context.Background(), "auth_scenario", wf, nil))
	assert.Equal(t, []string{"/register/u1", "/register/u2"}, target.paths)
}

func TestExecutor_FailFastOnSecondStep(t *testing.T) {
	target := &scriptedTarget{answers: map[string]*transport.Response{
		"/create":  {StatusCode: 201, Body: []byte(`{"id":"p1"}`)},
		"/open/p1": {StatusCode: 500},
		"/close":   {StatusCode: 200},
	}}
	obs := &recordingObserver{}
	exec := NewExecutor(target, WithObserver(obs))

	err := exec.Execute(context.Background(), "s", threeSteps(), nil)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "open", stepErr.Step)
	assert.Equal(t, 1, stepErr.Index)
	assert.Equal(t, KindExpect, stepErr.Kind)
	assert.Equal(t, []string{"/create", "/open/p1"}, target.paths, "step 3 must not be attempted")

	require.Len(t, obs.calls, 2)
	assert.True(t, obs.calls[1].failed)
}

func TestExecutor_ErrorKinds(t *testing.T) {
	ok := map[string]*transport.Response{"/ok": {StatusCode: 200, Body: []byte(`{}`)}}

	tests := []struct {
		name string
		step Step
		kind ErrorKind
	}{
		{
			name: "build",
			step: Step{Name: "b", Build: func(*setup.Result, Outputs) (*transport.Request, error) {
				return nil, errors.New("missing token")
			}},
			kind: KindBuild,
		},
		{
			name: "nil request",
			step: Step{Name: "n", Build: func(*setup.Result, Outputs) (*transport.Request, error) {
				return nil, nil
			}},
			kind: KindBuild,
		},
		{
			name: "transport",
			step: Step{Name: "t", Build: get("/unreachable")},
			kind: KindTransport,
		},
		{
			name: "extract",
			step: Step{Name: "e", Build: get("/ok"), Extract: ExtractJSON("$.id")},
			kind: KindExtract,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := NewExecutor(&scriptedTarget{answers: ok})
			err := exec.Execute(context.Background(), "s", &Workflow{Name: "w", Steps: []Step{tt.step}}, nil)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.kind, stepErr.Kind)
			assert.Equal(t, 0, stepErr.Index)
			assert.Contains(t, stepErr.Error(), string(tt.kind))
		})
	}
}

func TestExecutor_TransportErrorObservedAsFailed(t *testing.T) {
	obs := &recordingObserver{}
	exec := NewExecutor(&scriptedTarget{}, WithObserver(obs))

	err := exec.Execute(context.Background(), "s", &Workflow{Name: "w", Steps: []Step{{Name: "t", Build: get("/x")}}}, nil)
	require.Error(t, err)
	require.Len(t, obs.calls, 1)
	assert.True(t, obs.calls[0].failed)
}

func TestExecutor_ThinkTimeOnlyAfterSuccess(t *testing.T) {
	target := &scriptedTarget{answers: map[string]*transport.Response{"/ok": {StatusCode: 200}}}
	exec := NewExecutor(target)

	var slept []time.Duration
	exec.sleep = func(ctx context.Context, d time.Duration) { slept = append(slept, d) }

	wf := &Workflow{Name: "w", ThinkTime: time.Second, Steps: []Step{{Name: "ok", Build: get("/ok")}}}
	require.NoError(t, exec.Execute(context.Background(), "s", wf, nil))
	assert.Equal(t, []time.Duration{time.Second}, slept)

	wf.Steps = append(wf.Steps, Step{Name: "bad", Build: get("/bad")})
	require.Error(t, exec.Execute(context.Background(), "s", wf, nil))
	assert.Len(t, slept, 1)
}

func TestThinkTime_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	thinkTime(ctx, time.Minute)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWorkflow_Validate(t *testing.T) {
	assert.NoError(t, threeSteps().Validate())

	var nilWorkflow *Workflow
	assert.Error(t, nilWorkflow.Validate())
	assert.Error(t, (&Workflow{Name: "w"}).Validate())
	assert.Error(t, (&Workflow{Steps: []Step{{Name: "a", Build: get("/")}}}).Validate())
	assert.Error(t, (&Workflow{Name: "w", Steps: []Step{{Name: "a"}}}).Validate())
	assert.Error(t, (&Workflow{Name: "w", Steps: []Step{{Build: get("/")}}}).Validate())
	assert.Error(t, (&Workflow{Name: "w", Steps: []Step{{Name: "a", Build: get("/")}, {Name: "a", Build: get("/")}}}).Validate())
	assert.Error(t, (&Workflow{Name: "w", ThinkTime: -1, Steps: []Step{{Name: "a", Build: get("/")}}}).Validate())
}

func TestOutputs_String(t *testing.T) {
	o := Outputs{"s": "abc", "n": 7, "f": 1.5}
	assert.Equal(t, "abc", o.String("s"))
	assert.Equal(t, "7", o.String("n"))
	assert.Equal(t, "1.5", o.String("f"))
	assert.Equal(t, "", o.String("missing"))
}
