package setup

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slorun/slorun/internal/performance/check"
	"github.com/slorun/slorun/internal/performance/transport"
)

// fakeTarget answers /login with a token and /items with an incrementing id.
func fakeTarget(calls *atomic.Int32) transport.Transport {
	return transport.Func(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		n := calls.Add(1)
		switch req.Path {
		case "/login":
			return &transport.Response{StatusCode: http.StatusOK, Body: []byte("tok-" + string(req.Body))}, nil
		case "/items":
			if req.Headers["Authorization"] != "Bearer tok-admin" {
				return &transport.Response{StatusCode: http.StatusForbidden}, nil
			}
			return &transport.Response{StatusCode: http.StatusCreated, Body: []byte(`{"id":"item-` + string(rune('0'+n)) + `"}`)}, nil
		case "/down":
			return nil, errors.New("connection refused")
		}
		return &transport.Response{StatusCode: http.StatusNotFound}, nil
	})
}

func loginOp(role, key string) Operation {
	return Operation{
		Name: "login " + role,
		Build: func(*Values) (*transport.Request, error) {
			return transport.NewRequest(http.MethodPost, "/login", []byte(role)), nil
		},
		Expect: check.All(check.Status(http.StatusOK), check.NonEmptyBody()),
		Store: func(resp *transport.Response, v *Values) error {
			v.Set(key, strings.TrimSpace(string(resp.Body)))
			return nil
		},
	}
}

func seedOp() Operation {
	return Operation{
		Name: "seed item",
		Build: func(v *Values) (*transport.Request, error) {
			return transport.NewRequest(http.MethodPost, "/items", nil).WithBearer(v.String("adminToken")), nil
		},
		Expect: check.Status(http.StatusCreated),
		Store: func(resp *transport.Response, v *Values) error {
			id, err := check.ExtractString(resp.Body, "$.id")
			if err != nil {
				return err
			}
			v.Append("itemIds", id)
			return nil
		},
	}
}

func TestStage_RunBuildsFrozenResult(t *testing.T) {
	var calls atomic.Int32
	ops := append([]Operation{loginOp("user", "userToken"), loginOp("admin", "adminToken")}, Repeat(3, seedOp())...)

	stage := NewStage(fakeTarget(&calls), ops, WithTimeout(time.Second))
	assert.Equal(t, 5, stage.Operations())

	result, err := stage.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, "tok-user", result.String("userToken"))
	assert.Equal(t, "tok-admin", result.String("adminToken"))
	assert.Equal(t, []string{"item-3", "item-4", "item-5"}, result.Strings("itemIds"))
	assert.Equal(t, []string{"adminToken", "itemIds", "userToken"}, result.Keys())

	// callers cannot mutate the shared result through returned slices
	ids := result.Strings("itemIds")
	ids[0] = "changed"
	assert.Equal(t, "item-3", result.Strings("itemIds")[0])
}

func TestStage_UnexpectedResponseAborts(t *testing.T) {
	var calls atomic.Int32
	ops := []Operation{
		seedOp(), // no admin token yet: 403
		loginOp("admin", "adminToken"),
	}

	result, err := NewStage(fakeTarget(&calls), ops).Run(context.Background())
	assert.Nil(t, result)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 0, failure.Index)
	assert.Equal(t, PhaseExpect, failure.Phase)
	assert.Equal(t, "seed item", failure.Operation)
	assert.Equal(t, int32(1), calls.Load(), "later operations must not run")

	var mismatch *check.MismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestStage_FailurePhases(t *testing.T) {
	var calls atomic.Int32
	tr := fakeTarget(&calls)

	tests := []struct {
		name  string
		op    Operation
		phase Phase
	}{
		{
			name:  "missing builder",
			op:    Operation{Name: "nothing"},
			phase: PhaseBuild,
		},
		{
			name: "build error",
			op: Operation{Name: "bad", Build: func(*Values) (*transport.Request, error) {
				return nil, errors.New("no token")
			}},
			phase: PhaseBuild,
		},
		{
			name: "transport error",
			op: Operation{Name: "down", Build: func(*Values) (*transport.Request, error) {
				return transport.NewRequest(http.MethodGet, "/down", nil), nil
			}},
			phase: PhaseTransport,
		},
		{
			name: "store error",
			op: Operation{
				Name: "store",
				Build: func(*Values) (*transport.Request, error) {
					return transport.NewRequest(http.MethodPost, "/login", []byte("x")), nil
				},
				Store: func(resp *transport.Response, v *Values) error {
					_, err := check.ExtractString(resp.Body, "$.id")
					return err
				},
			},
			phase: PhaseStore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStage(tr, []Operation{tt.op}).Run(context.Background())
			var failure *Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, tt.phase, failure.Phase)
			assert.Contains(t, failure.Error(), tt.op.Name)
		})
	}
}

func TestStage_CancelledContext(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStage(fakeTarget(&calls), []Operation{loginOp("user", "t")}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
}

func TestStage_EmptyStage(t *testing.T) {
	result, err := NewStage(nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Len())
}

func TestResult_Accessors(t *testing.T) {
	src := map[string]any{"token": "abc", "ids": []string{"a", "b"}, "count": 3}
	r := NewResult(src)
	src["ids"].([]string)[0] = "mutated"

	assert.Equal(t, "abc", r.String("token"))
	assert.Equal(t, []string{"a", "b"}, r.Strings("ids"))
	assert.Equal(t, "", r.String("count"))
	assert.Nil(t, r.Strings("token"))

	v, ok := r.Get("count")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, err := r.MustString("missing")
	assert.Error(t, err)

	var nilResult *Result
	assert.Equal(t, "", nilResult.String("token"))
	assert.Equal(t, 0, nilResult.Len())
}
