package transmission

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// scriptedTransport replays one scripted step per Send and records requests.
type scriptedTransport struct {
	steps    []step
	requests []*Request
}

type step struct {
	resp *Response
	err  error
}

func (s *scriptedTransport) Send(_ context.Context, req *Request) (*Response, error) {
	s.requests = append(s.requests, req)
	if len(s.requests) > len(s.steps) {
		return nil, errors.New("unexpected extra request")
	}
	st := s.steps[len(s.requests)-1]
	return st.resp, st.err
}

func respond(status int, body string, header ...string) step {
	h := make(http.Header)
	for i := 0; i+1 < len(header); i += 2 {
		h.Set(header[i], header[i+1])
	}
	return step{resp: &Response{StatusCode: status, Header: h, Body: []byte(body)}}
}

func newTestClient(t *testing.T, steps ...step) (*Client, *scriptedTransport) {
	t.Helper()

	transport := &scriptedTransport{steps: steps}
	client, err := New(Config{Transport: transport})
	require.NoError(t, err)

	return client, transport
}

func decodeBody(t *testing.T, req *Request) rpcRequest {
	t.Helper()

	var body rpcRequest
	require.NoError(t, json.Unmarshal(req.Body, &body))
	return body
}

func TestNewClientDefaults(t *testing.T) {
	client, err := New(Config{})
	require.NoError(t, err)

	assert.Equal(t, "localhost", client.Host())
	assert.Equal(t, 9091, client.Port())
	assert.Equal(t, "/transmission/rpc", client.Path())
	assert.Empty(t, client.Token())
	assert.False(t, client.hasAuth)
	assert.IsType(t, &HTTPTransport{}, client.Transport())
}

func TestNewClientWithConfig(t *testing.T) {
	client, err := New(Config{
		Host:     "nas.local",
		Port:     8080,
		Path:     "/rpc",
		Username: "admin",
		Password: "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, "nas.local", client.Host())
	assert.Equal(t, 8080, client.Port())
	assert.Equal(t, "/rpc", client.Path())
	assert.True(t, client.hasAuth)
	assert.Equal(t, "http://nas.local:8080", client.URL())
}

func TestNewClientRejectsNegativePort(t *testing.T) {
	_, err := New(Config{Port: -1})
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestShouldGenerateDefaultURL(t *testing.T) {
	client, err := New(Config{})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9091", client.URL())
}

func TestSetters(t *testing.T) {
	client, err := New(Config{})
	require.NoError(t, err)

	client.SetHost("domain.com")
	assert.Equal(t, "domain.com", client.Host())

	require.NoError(t, client.SetPort(80))
	assert.Equal(t, 80, client.Port())

	client.SetPath("/foo/bar")
	assert.Equal(t, "/foo/bar", client.Path())

	client.SetToken("abc")
	assert.Equal(t, "abc", client.Token())

	transport := &scriptedTransport{}
	client.SetTransport(transport)
	assert.Same(t, transport, client.Transport())
}

func TestSetPortRejectsNonPositive(t *testing.T) {
	client, err := New(Config{})
	require.NoError(t, err)

	assert.ErrorIs(t, client.SetPort(0), ErrInvalidPort)
	assert.ErrorIs(t, client.SetPort(-80), ErrInvalidPort)
	assert.Equal(t, 9091, client.Port())
}

func TestShouldMakeAPICall(t *testing.T) {
	client, transport := newTestClient(t, respond(http.StatusOK, "{}"))

	resp, err := client.Call(context.Background(), "foo", map[string]any{"bar": "baz"})
	require.NoError(t, err)

	assert.NotNil(t, resp)
	assert.Empty(t, resp)
	require.Len(t, transport.requests, 1)

	req := transport.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://localhost:9091/transmission/rpc", req.URL)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Empty(t, req.Header.Get(SessionIDHeader))
	assert.Empty(t, req.Header.Get("Authorization"))

	body := decodeBody(t, req)
	assert.Equal(t, "foo", body.Method)
	assert.Equal(t, "baz", body.Arguments["bar"])
}

func TestCallSendsEmptyArgumentsObject(t *testing.T) {
	client, transport := newTestClient(t, respond(http.StatusOK, "{}"))

	_, err := client.Call(context.Background(), "session-get", nil)
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	assert.JSONEq(t, `{"method":"session-get","arguments":{}}`, string(transport.requests[0].Body))
}

func TestCallDecodesResponse(t *testing.T) {
	client, _ := newTestClient(t, respond(http.StatusOK,
		`{"result":"success","arguments":{"version":"4.0.5","size":9007199254740993}}`))

	resp, err := client.Call(context.Background(), "session-get", nil)
	require.NoError(t, err)

	assert.Equal(t, "success", resp.Result())
	args := resp.Arguments()
	require.NotNil(t, args)
	assert.Equal(t, "4.0.5", args["version"])
	assert.Equal(t, json.Number("9007199254740993"), args["size"])
}

func TestCallAcceptsTrailingWhitespace(t *testing.T) {
	client, _ := newTestClient(t, respond(http.StatusOK, "{\"result\":\"success\"}\n \t\r\n"))

	resp, err := client.Call(context.Background(), "session-get", nil)
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Result())
}

func TestCallRejectsEmptyMethod(t *testing.T) {
	client, transport := newTestClient(t)

	_, err := client.Call(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyMethod)
	assert.Empty(t, transport.requests)
}

func TestShouldAuthenticate(t *testing.T) {
	client, transport := newTestClient(t, respond(http.StatusOK, "{}"))

	client.Authenticate("u", "p")
	_, err := client.Call(context.Background(), "foo", map[string]any{"bar": "baz"})
	require.NoError(t, err)

	require.Len(t, transport.requests, 1)
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("u:p"))
	assert.Equal(t, expected, transport.requests[0].Header.Get("Authorization"))
}

func TestAuthenticateOverwritesCredentials(t *testing.T) {
	client, transport := newTestClient(t, respond(http.StatusOK, "{}"))

	client.Authenticate("old", "old")
	client.Authenticate("new", "pass")
	_, err := client.Call(context.Background(), "foo", nil)
	require.NoError(t, err)

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("new:pass"))
	assert.Equal(t, expected, transport.requests[0].Header.Get("Authorization"))
}

func TestShouldFailOnTransportError(t *testing.T) {
	client, _ := newTestClient(t, step{err: errors.New("dial tcp 127.0.0.1:9091: connect: connection refused")})

	_, err := client.Call(context.Background(), "foo", nil)
	require.Error(t, err)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, KindConnectionFailure, rpcErr.Kind)
	assert.Equal(t, "Could not connect to Transmission", rpcErr.Message)
	assert.Equal(t, ErrorCodeConnectionRefused, rpcErr.Code)
	assert.ErrorIs(t, err, ErrConnectionFailure)
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, IsRetryableError(err))
}

func TestConnectionFailureWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	client, _ := newTestClient(t, step{err: cause})

	_, err := client.Call(context.Background(), "foo", nil)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrConnectionFailure)
}

func TestNilResponseIsConnectionFailure(t *testing.T) {
	client, _ := newTestClient(t, step{})

	_, err := client.Call(context.Background(), "foo", nil)
	assert.ErrorIs(t, err, ErrConnectionFailure)
}

func TestShouldFailOnUnexpectedStatusCode(t *testing.T) {
	client, transport := newTestClient(t, respond(http.StatusInternalServerError, ""))

	_, err := client.Call(context.Background(), "foo", nil)
	require.Error(t, err)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, KindUnexpectedResponse, rpcErr.Kind)
	assert.Equal(t, "Unexpected response received from Transmission", rpcErr.Message)
	assert.Equal(t, http.StatusInternalServerError, rpcErr.StatusCode)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
	assert.NotErrorIs(t, err, ErrConnectionFailure)
	assert.Len(t, transport.requests, 1)
}

func TestUnexpectedStatusCodes(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorCode
	}{
		{http.StatusForbidden, ErrorCodeAuthRequired},
		{http.StatusNotFound, ErrorCodeNotFound},
		{http.StatusBadGateway, ErrorCodeBadGateway},
		{http.StatusServiceUnavailable, ErrorCodeServiceUnavailable},
		{http.StatusGatewayTimeout, ErrorCodeTimeout},
		{http.StatusNoContent, ErrorCodeUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client, _ := newTestClient(t, respond(tt.status, ""))

			_, err := client.Call(context.Background(), "foo", nil)

			var rpcErr *Error
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, KindUnexpectedResponse, rpcErr.Kind)
			assert.Equal(t, tt.status, rpcErr.StatusCode)
			assert.Equal(t, tt.expected, rpcErr.Code)
		})
	}
}

func TestShouldFailOnAccessDenied(t *testing.T) {
	client, transport := newTestClient(t, respond(http.StatusUnauthorized, ""))

	_, err := client.Call(context.Background(), "foo", nil)
	require.Error(t, err)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, KindAuthenticationRequired, rpcErr.Kind)
	assert.Equal(t, "Access to Transmission requires authentication", rpcErr.Message)
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
	assert.True(t, IsPermanentError(err))
	assert.Len(t, transport.requests, 1, "401 must not be retried")
}

func TestShouldHandle409Response(t *testing.T) {
	client, transport := newTestClient(t,
		respond(http.StatusConflict, "", SessionIDHeader, "foo"),
		respond(http.StatusOK, "{}"),
	)

	resp, err := client.Call(context.Background(), "foo", map[string]any{})
	require.NoError(t, err)
	assert.NotNil(t, resp)

	assert.Equal(t, "foo", client.Token())
	require.Len(t, transport.requests, 2)
	assert.Empty(t, transport.requests[0].Header.Get(SessionIDHeader))
	assert.Equal(t, "foo", transport.requests[1].Header.Get(SessionIDHeader))
	assert.Equal(t, transport.requests[0].Body, transport.requests[1].Body)
}

func TestTokenPersistsAcrossCalls(t *testing.T) {
	client, transport := newTestClient(t,
		respond(http.StatusConflict, "", SessionIDHeader, "foo"),
		respond(http.StatusOK, "{}"),
		respond(http.StatusOK, "{}"),
	)

	_, err := client.Call(context.Background(), "first", nil)
	require.NoError(t, err)
	_, err = client.Call(context.Background(), "second", nil)
	require.NoError(t, err)

	require.Len(t, transport.requests, 3)
	assert.Equal(t, "foo", transport.requests[2].Header.Get(SessionIDHeader))
}

func TestSecond409IsNotRenewedAgain(t *testing.T) {
	client, transport := newTestClient(t,
		respond(http.StatusConflict, "", SessionIDHeader, "first"),
		respond(http.StatusConflict, "", SessionIDHeader, "second"),
	)

	_, err := client.Call(context.Background(), "foo", nil)
	require.Error(t, err)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, KindUnexpectedResponse, rpcErr.Kind)
	assert.Equal(t, http.StatusConflict, rpcErr.StatusCode)
	assert.Equal(t, ErrorCodeSessionConflict, rpcErr.Code)
	assert.Len(t, transport.requests, 2)
	assert.Equal(t, "second", client.Token())
}

func TestRenewedCallPropagatesErrors(t *testing.T) {
	client, transport := newTestClient(t,
		respond(http.StatusConflict, "", SessionIDHeader, "foo"),
		respond(http.StatusUnauthorized, ""),
	)

	_, err := client.Call(context.Background(), "foo", nil)
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
	assert.Len(t, transport.requests, 2)
}

func Test409WithoutHeaderStillRetriesOnce(t *testing.T) {
	client, transport := newTestClient(t,
		respond(http.StatusConflict, ""),
		respond(http.StatusOK, "{}"),
	)
	client.SetToken("stale")

	_, err := client.Call(context.Background(), "foo", nil)
	require.NoError(t, err)

	assert.Empty(t, client.Token())
	require.Len(t, transport.requests, 2)
	assert.Empty(t, transport.requests[1].Header.Get(SessionIDHeader))
}

func TestInvalidJSONBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"garbage", "not json"},
		{"array", "[1,2]"},
		{"null", "null"},
		{"empty", ""},
		{"trailing garbage", "{}garbage"},
		{"two objects", `{"result":"success"} {"result":"error"}`},
		{"trailing bracket", "{}]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, respond(http.StatusOK, tt.body))

			_, err := client.Call(context.Background(), "foo", nil)

			var rpcErr *Error
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, KindUnexpectedResponse, rpcErr.Kind)
			assert.Equal(t, http.StatusOK, rpcErr.StatusCode)
			assert.Equal(t, ErrorCodeInvalidBody, rpcErr.Code)
		})
	}
}

func TestCallUnencodableArguments(t *testing.T) {
	client, transport := newTestClient(t)

	_, err := client.Call(context.Background(), "foo", map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error encoding foo request")
	assert.Empty(t, transport.requests)
}

func TestRenewalIsLoggedWithoutToken(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	transport := &scriptedTransport{steps: []step{
		respond(http.StatusConflict, "", SessionIDHeader, "secret-token"),
		respond(http.StatusOK, "{}"),
	}}

	client, err := New(Config{Transport: transport, Logger: zap.New(core)})
	require.NoError(t, err)

	_, err = client.Call(context.Background(), "foo", nil)
	require.NoError(t, err)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "session token renewed, re-sending request", entry.Message)
	for _, field := range entry.Context {
		assert.NotContains(t, field.String, "secret-token")
	}
}

func TestURLWithIPv6Host(t *testing.T) {
	client, err := New(Config{Host: "::1"})
	require.NoError(t, err)

	assert.Equal(t, "http://[::1]:9091", client.URL())
}
