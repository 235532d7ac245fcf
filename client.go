package transmission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

func New(config Config) (*Client, error) {
	if config.Port < 0 {
		return nil, fmt.Errorf("invalid port %d: %w", config.Port, ErrInvalidPort)
	}

	c := &Client{
		host:      config.Host,
		port:      config.Port,
		path:      config.Path,
		transport: config.Transport,
		logger:    config.Logger,
	}

	if c.host == "" {
		c.host = DefaultHost
	}
	if c.port == 0 {
		c.port = DefaultPort
	}
	if c.path == "" {
		c.path = DefaultPath
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(config.RequestTimeout)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if config.Username != "" {
		c.Authenticate(config.Username, config.Password)
	}

	return c, nil
}

// Authenticate sets the Basic-Auth credentials sent with every later call.
func (c *Client) Authenticate(username, password string) {
	c.mu.Lock()
	c.username = username
	c.password = password
	c.hasAuth = true
	c.mu.Unlock()
}

func (c *Client) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}

func (c *Client) SetHost(host string) {
	c.mu.Lock()
	c.host = host
	c.mu.Unlock()
}

func (c *Client) Port() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.port
}

func (c *Client) SetPort(port int) error {
	if port <= 0 {
		return fmt.Errorf("invalid port %d: %w", port, ErrInvalidPort)
	}
	c.mu.Lock()
	c.port = port
	c.mu.Unlock()
	return nil
}

func (c *Client) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

func (c *Client) SetPath(path string) {
	c.mu.Lock()
	c.path = path
	c.mu.Unlock()
}

// Token returns the cached session token, empty until the daemon issues one.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Transport() Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport
}

func (c *Client) SetTransport(transport Transport) {
	c.mu.Lock()
	c.transport = transport
	c.mu.Unlock()
}

// URL returns the daemon base URL without the RPC path, e.g. http://localhost:9091.
func (c *Client) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL()
}

func (c *Client) baseURL() string {
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(c.host, strconv.Itoa(c.port)))
}

// Call performs one RPC call. A 409 answer renews the session token and
// re-sends the call once; every other non-200 status is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, arguments map[string]any) (Object, error) {
	if method == "" {
		return nil, ErrEmptyMethod
	}
	if arguments == nil {
		arguments = map[string]any{}
	}

	body, err := json.Marshal(rpcRequest{Method: method, Arguments: arguments})
	if err != nil {
		return nil, fmt.Errorf("error encoding %s request: %w", method, err)
	}

	return c.send(ctx, body, false)
}

// send issues body once. renewed is true on the re-send that follows a 409,
// which may not renew again.
func (c *Client) send(ctx context.Context, body []byte, renewed bool) (Object, error) {
	req := c.newRequest(body)

	resp, err := c.Transport().Send(ctx, req)
	if err != nil {
		return nil, newConnectionFailure(err)
	}
	if resp == nil {
		return nil, newConnectionFailure(fmt.Errorf("transport returned no response"))
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return decodeObject(resp.Body)

	case http.StatusUnauthorized:
		return nil, newAuthenticationRequired()

	case http.StatusConflict:
		c.SetToken(resp.Header.Get(SessionIDHeader))
		if renewed {
			return nil, newUnexpectedResponse(resp.StatusCode, nil)
		}
		c.logger.Debug("session token renewed, re-sending request",
			zap.String("url", req.URL))
		return c.send(ctx, body, true)

	default:
		return nil, newUnexpectedResponse(resp.StatusCode, nil)
	}
}

func (c *Client) newRequest(body []byte) *Request {
	c.mu.RLock()
	defer c.mu.RUnlock()

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	if c.token != "" {
		header.Set(SessionIDHeader, c.token)
	}
	if c.hasAuth {
		header.Set("Authorization", "Basic "+basicAuth(c.username, c.password))
	}

	return &Request{
		Method: http.MethodPost,
		URL:    c.baseURL() + c.path,
		Header: header,
		Body:   body,
	}
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

func decodeObject(body []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var obj Object
	if err := dec.Decode(&obj); err != nil {
		return nil, newUnexpectedResponse(http.StatusOK, fmt.Errorf("error decoding response: %w", err))
	}
	if obj == nil {
		return nil, newUnexpectedResponse(http.StatusOK, fmt.Errorf("response body is not a JSON object"))
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, newUnexpectedResponse(http.StatusOK, fmt.Errorf("trailing data after response object"))
	}

	return obj, nil
}
