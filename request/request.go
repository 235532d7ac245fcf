package request

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const DefaultTimeout = 10 * time.Second

// RequestOptions holds the settings of a single request
type RequestOptions struct {
	Timeout time.Duration
	Body    io.Reader
	Headers http.Header
	Ctx     context.Context
	Client  *http.Client
}

// RequestOption applies a setting to RequestOptions
type RequestOption func(*RequestOptions)

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) RequestOption {
	return func(o *RequestOptions) {
		if timeout > 0 {
			o.Timeout = timeout
		}
	}
}

// WithBody sets the request body
func WithBody(body io.Reader) RequestOption {
	return func(o *RequestOptions) {
		o.Body = body
	}
}

// WithHeader sets a single header
func WithHeader(key, value string) RequestOption {
	return func(o *RequestOptions) {
		o.Headers.Set(key, value)
	}
}

// WithHeaders sets several headers at once
func WithHeaders(headers map[string]string) RequestOption {
	return func(o *RequestOptions) {
		for k, v := range headers {
			o.Headers.Set(k, v)
		}
	}
}

// WithHeaderValues copies every value of h, keeping multi-valued headers
func WithHeaderValues(h http.Header) RequestOption {
	return func(o *RequestOptions) {
		for k, values := range h {
			o.Headers.Del(k)
			for _, v := range values {
				o.Headers.Add(k, v)
			}
		}
	}
}

// WithContext sets the request context
func WithContext(ctx context.Context) RequestOption {
	return func(o *RequestOptions) {
		if ctx != nil {
			o.Ctx = ctx
		}
	}
}

// WithClient reuses an existing http.Client instead of building one per call.
// The client's own Timeout wins over WithTimeout.
func WithClient(client *http.Client) RequestOption {
	return func(o *RequestOptions) {
		o.Client = client
	}
}

// Do executes an HTTP request with the given options. The caller owns the
// response body.
func Do(method, url string, opts ...RequestOption) (*http.Response, error) {
	options := &RequestOptions{
		Timeout: DefaultTimeout,
		Ctx:     context.Background(),
		Headers: make(http.Header),
	}

	for _, opt := range opts {
		opt(options)
	}

	client := options.Client
	if client == nil {
		client = &http.Client{Timeout: options.Timeout}
	}

	req, err := http.NewRequestWithContext(options.Ctx, method, url, options.Body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	for k, values := range options.Headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}
