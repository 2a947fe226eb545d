package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Auth", r.Header.Get("Authorization"))
		w.Header().Set("X-Content-Type", r.Header.Get("Content-Type"))
		w.Header().Set("X-Default", r.Header.Get("X-Default"))
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func transports(baseURL string) map[string]Transport {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL + "/"
	cfg.Timeout = 5 * time.Second
	cfg.Headers = map[string]string{"X-Default": "yes"}
	return map[string]Transport{
		"http":     NewHTTP(cfg),
		"fasthttp": NewFastHTTP(cfg),
	}
}

func TestTransports_Send(t *testing.T) {
	server := echoServer(t)

	for name, tr := range transports(server.URL) {
		t.Run(name, func(t *testing.T) {
			req := NewRequest(http.MethodPost, "/pvz", []byte(`{"city":"Москва"}`)).WithBearer("tok")

			resp, err := tr.Send(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, http.StatusCreated, resp.StatusCode)
			assert.False(t, resp.Failed())
			assert.Equal(t, `{"city":"Москва"}`, string(resp.Body))
			assert.Equal(t, "POST", resp.Headers.Get("X-Method"))
			assert.Equal(t, "Bearer tok", resp.Headers.Get("X-Auth"))
			assert.Equal(t, "application/json", resp.Headers.Get("X-Content-Type"))
			assert.Equal(t, "yes", resp.Headers.Get("X-Default"))
			assert.True(t, resp.Latency > 0)
		})
	}
}

func TestTransports_ClientError(t *testing.T) {
	server := echoServer(t)

	for name, tr := range transports(server.URL) {
		t.Run(name, func(t *testing.T) {
			resp, err := tr.Send(context.Background(), NewRequest(http.MethodGet, "/missing", nil))
			require.NoError(t, err)
			assert.True(t, resp.IsClientError())
			assert.False(t, resp.IsServerError())
			assert.True(t, resp.Failed())
		})
	}
}

func TestTransports_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	for name, tr := range transports(url) {
		t.Run(name, func(t *testing.T) {
			_, err := tr.Send(context.Background(), NewRequest(http.MethodGet, "/", nil))
			assert.Error(t, err)
		})
	}
}

func TestFastHTTP_CancelledContext(t *testing.T) {
	server := echoServer(t)
	tr := NewFastHTTP(Config{BaseURL: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Send(ctx, NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	tr, err := New(KindHTTP, DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &HTTP{}, tr)

	tr, err = New(KindFastHTTP, DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &FastHTTP{}, tr)

	_, err = New("grpc", DefaultConfig())
	var kindErr *UnknownKindError
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, Kind("grpc"), kindErr.Kind)
}

func TestFunc(t *testing.T) {
	var got string
	tr := Func(func(ctx context.Context, req *Request) (*Response, error) {
		got = req.Method + " " + req.Path
		return &Response{StatusCode: http.StatusOK}, nil
	})

	resp, err := tr.Send(context.Background(), NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, "GET /ping", got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
