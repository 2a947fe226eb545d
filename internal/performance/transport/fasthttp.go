package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrTimeout is returned when a request exceeds its deadline.
var ErrTimeout = errors.New("request timed out")

// FastHTTP is a Transport backed by valyala/fasthttp. Request and response
// objects come from fasthttp's pools; the body is copied out before release.
type FastHTTP struct {
	client  *fasthttp.Client
	baseURL string
	headers map[string]string
	timeout time.Duration
}

// NewFastHTTP creates a fasthttp transport.
func NewFastHTTP(cfg Config) *FastHTTP {
	client := &fasthttp.Client{
		MaxConnsPerHost:        cfg.MaxConnsPerHost,
		MaxIdleConnDuration:    cfg.IdleConnTimeout,
		ReadTimeout:            cfg.Timeout,
		WriteTimeout:           cfg.Timeout,
		DisablePathNormalizing: true,
	}
	if client.MaxConnsPerHost == 0 {
		client.MaxConnsPerHost = fasthttp.DefaultMaxConnsPerHost * 100
	}
	if cfg.InsecureSkipVerify {
		client.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	return &FastHTTP{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: cfg.Headers,
		timeout: timeout,
	}
}

// Send executes the request with a deadline derived from the configured
// timeout and the context deadline, whichever is earlier.
func (t *FastHTTP) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fReq := fasthttp.AcquireRequest()
	fResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(fReq)
	defer fasthttp.ReleaseResponse(fResp)

	fReq.SetRequestURI(t.baseURL + req.Path)
	fReq.Header.SetMethod(req.Method)
	for key, value := range t.headers {
		fReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		fReq.Header.Set(key, value)
	}
	if len(req.Body) > 0 {
		if len(fReq.Header.ContentType()) == 0 {
			fReq.Header.SetContentType("application/json")
		}
		fReq.SetBody(req.Body)
	}

	deadline := time.Now().Add(t.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	start := time.Now()
	err := t.client.DoDeadline(fReq, fResp, deadline)
	latency := time.Since(start)
	if err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) || time.Now().After(deadline) {
			return nil, fmt.Errorf("%w after %s: %v", ErrTimeout, latency, err)
		}
		return nil, err
	}

	headers := make(http.Header)
	fResp.Header.VisitAll(func(key, value []byte) {
		headers.Add(string(key), string(value))
	})

	return &Response{
		StatusCode: fResp.StatusCode(),
		Headers:    headers,
		Body:       append([]byte(nil), fResp.Body()...),
		Latency:    latency,
	}, nil
}
