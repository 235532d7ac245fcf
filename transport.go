package transmission

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jfxdev/go-transmission/request"
)

// Transport sends one HTTP-shaped request and returns the daemon's answer.
// Implementations return an error only when no response was obtained.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport is the default Transport, backed by net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds an HTTPTransport with the given per-request timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

// NewHTTPTransportWithClient reuses a caller-owned http.Client (proxies,
// custom TLS, test servers).
func NewHTTPTransportWithClient(client *http.Client) *HTTPTransport {
	if client == nil {
		return NewHTTPTransport(0)
	}
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	resp, err := request.Do(req.Method, req.URL,
		request.WithContext(ctx),
		request.WithClient(t.client),
		request.WithBody(bytes.NewReader(req.Body)),
		request.WithHeaderValues(req.Header),
	)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
