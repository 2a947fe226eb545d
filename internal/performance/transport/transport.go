// Package transport defines the request/response boundary between the load
// engine and the target service, plus net/http and fasthttp implementations.
package transport

import (
	"context"
	"net/http"
	"time"
)

// Transport sends one request to the target and waits for its response.
//
// Implementations must be safe for concurrent use: every in-flight iteration
// of every scenario shares the same Transport.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single exchange with the target, relative to the base URL.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// NewRequest creates a request with an empty header set.
func NewRequest(method, path string, body []byte) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Headers: make(map[string]string),
		Body:    body,
	}
}

// WithHeader sets a header and returns the request for chaining.
func (r *Request) WithHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// WithBearer sets the Authorization header to a bearer token.
func (r *Request) WithBearer(token string) *Request {
	return r.WithHeader("Authorization", "Bearer "+token)
}

// Response is the fully-read answer of the target.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Latency    time.Duration
}

// IsClientError returns true if the response status code is in the 4xx range
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError returns true if the response status code is 5xx or above
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}

// Failed reports whether the request counts as failed in the request
// metrics, whatever the step expected.
func (r *Response) Failed() bool {
	return r.IsClientError() || r.IsServerError()
}

// Func adapts a plain function to the Transport interface.
type Func func(ctx context.Context, req *Request) (*Response, error)

// Send calls f(ctx, req).
func (f Func) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Kind selects a Transport implementation.
type Kind string

const (
	// KindHTTP uses net/http with a tuned shared connection pool.
	KindHTTP Kind = "http"
	// KindFastHTTP uses valyala/fasthttp.
	KindFastHTTP Kind = "fasthttp"
)

// Config contains client configuration shared by all implementations.
type Config struct {
	// BaseURL is prefixed to every request path
	BaseURL string

	// Timeout bounds a single request, including reading the body
	Timeout time.Duration

	// MaxConnsPerHost limits the total connections per host (0 = unlimited)
	MaxConnsPerHost int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// Headers are applied to every request unless the request overrides them
	Headers map[string]string
}

// DefaultConfig returns sensible defaults for load testing.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		MaxConnsPerHost:     0,
		MaxIdleConnsPerHost: 1000,
		IdleConnTimeout:     90 * time.Second,
	}
}

// New builds the Transport of the given kind.
func New(kind Kind, cfg Config) (Transport, error) {
	switch kind {
	case KindHTTP, "":
		return NewHTTP(cfg), nil
	case KindFastHTTP:
		return NewFastHTTP(cfg), nil
	default:
		return nil, &UnknownKindError{Kind: kind}
	}
}

// UnknownKindError is returned by New for an unsupported transport kind.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return "unknown transport: " + string(e.Kind)
}
