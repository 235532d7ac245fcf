package transmission

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ErrorKind is the outcome class of a failed call.
type ErrorKind string

const (
	// KindConnectionFailure means the transport never produced a response.
	KindConnectionFailure ErrorKind = "CONNECTION_FAILURE"

	// KindAuthenticationRequired means the daemon answered 401.
	KindAuthenticationRequired ErrorKind = "AUTHENTICATION_REQUIRED"

	// KindUnexpectedResponse covers every other status, and 200 bodies that
	// are not JSON objects.
	KindUnexpectedResponse ErrorKind = "UNEXPECTED_RESPONSE"
)

const (
	MsgConnectionFailure      = "Could not connect to Transmission"
	MsgAuthenticationRequired = "Access to Transmission requires authentication"
	MsgUnexpectedResponse     = "Unexpected response received from Transmission"
)

// ErrorCode refines an error kind for client-side handling
type ErrorCode string

const (
	// ErrorCodeNone indicates no error
	ErrorCodeNone ErrorCode = ""

	// ErrorCodeAuthRequired indicates missing or wrong credentials - requires user intervention
	ErrorCodeAuthRequired ErrorCode = "AUTH_REQUIRED"

	// ErrorCodeSessionConflict indicates the daemon rejected a freshly renewed session token
	ErrorCodeSessionConflict ErrorCode = "SESSION_CONFLICT"

	// ErrorCodeInvalidBody indicates a 200 response whose body is not a JSON object
	ErrorCodeInvalidBody ErrorCode = "INVALID_BODY"

	// ErrorCodeTimeout indicates connection or request timeout - temporary, can retry
	ErrorCodeTimeout ErrorCode = "TIMEOUT"

	// ErrorCodeDNS indicates DNS resolution failure - check hostname configuration
	ErrorCodeDNS ErrorCode = "DNS_ERROR"

	// ErrorCodeHTTPSRequired indicates HTTP was used against a TLS endpoint
	ErrorCodeHTTPSRequired ErrorCode = "HTTPS_REQUIRED"

	// ErrorCodeSSLError indicates SSL/TLS certificate or connection error
	ErrorCodeSSLError ErrorCode = "SSL_ERROR"

	// ErrorCodeConnectionRefused indicates the server actively refused the connection
	ErrorCodeConnectionRefused ErrorCode = "CONNECTION_REFUSED"

	// ErrorCodeNetworkUnreachable indicates network routing issues
	ErrorCodeNetworkUnreachable ErrorCode = "NETWORK_UNREACHABLE"

	// ErrorCodeNotFound indicates a wrong RPC path (404)
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrorCodeBadGateway indicates a proxy/gateway error (502)
	ErrorCodeBadGateway ErrorCode = "BAD_GATEWAY"

	// ErrorCodeServiceUnavailable indicates the service is temporarily unavailable (503)
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// ErrorCodeUnknown indicates an unclassified error
	ErrorCodeUnknown ErrorCode = "UNKNOWN"
)

// Error is returned by Client.Call for every failed outcome.
type Error struct {
	Kind       ErrorKind
	Code       ErrorCode
	Message    string
	StatusCode int
	Err        error
	// Permanent indicates whether this error requires user intervention (true)
	// or can be resolved by retrying (false)
	Permanent bool
}

var (
	ErrConnectionFailure      = &Error{Kind: KindConnectionFailure, Message: MsgConnectionFailure}
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired, Message: MsgAuthenticationRequired}
	ErrUnexpectedResponse     = &Error{Kind: KindUnexpectedResponse, Message: MsgUnexpectedResponse}

	ErrEmptyMethod = errors.New("rpc method name is required")
	ErrInvalidPort = errors.New("port must be a positive integer")
)

func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrConnectionFailure)
// works regardless of status or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return t.Kind == e.Kind
}

// IsPermanent returns true if the error requires user intervention
func (e *Error) IsPermanent() bool {
	return e.Permanent
}

func newConnectionFailure(cause error) *Error {
	code := ClassifyError(cause)
	return &Error{
		Kind:      KindConnectionFailure,
		Code:      code,
		Message:   MsgConnectionFailure,
		Err:       cause,
		Permanent: isPermanentCode(code),
	}
}

func newAuthenticationRequired() *Error {
	return &Error{
		Kind:       KindAuthenticationRequired,
		Code:       ErrorCodeAuthRequired,
		Message:    MsgAuthenticationRequired,
		StatusCode: http.StatusUnauthorized,
		Permanent:  true,
	}
}

func newUnexpectedResponse(statusCode int, cause error) *Error {
	code := classifyStatusCode(statusCode)
	if statusCode == http.StatusOK {
		code = ErrorCodeInvalidBody
	}
	return &Error{
		Kind:       KindUnexpectedResponse,
		Code:       code,
		Message:    MsgUnexpectedResponse,
		StatusCode: statusCode,
		Err:        cause,
		Permanent:  isPermanentCode(code),
	}
}

// ClassifyError analyzes a transport error and returns its code
func ClassifyError(err error) ErrorCode {
	if err == nil {
		return ErrorCodeNone
	}

	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Code
	}

	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorCodeDNS
	}

	// Network operation errors (connection refused, timeout, etc.)
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return classifyOpError(opErr)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Err != nil {
			if code := ClassifyError(urlErr.Err); code != ErrorCodeUnknown {
				return code
			}
		}
		if urlErr.Timeout() {
			return ErrorCodeTimeout
		}
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return ErrorCodeSSLError
	}

	return classifyByMessage(err.Error())
}

func classifyOpError(opErr *net.OpError) ErrorCode {
	if opErr.Op == "dial" {
		msg := opErr.Error()
		if strings.Contains(msg, "connection refused") {
			return ErrorCodeConnectionRefused
		}
		if strings.Contains(msg, "no route to host") ||
			strings.Contains(msg, "network is unreachable") {
			return ErrorCodeNetworkUnreachable
		}
	}

	if opErr.Timeout() {
		return ErrorCodeTimeout
	}

	return ErrorCodeUnknown
}

// classifyByMessage classifies errors based on error message patterns
func classifyByMessage(errStr string) ErrorCode {
	lowerErr := strings.ToLower(errStr)

	switch {
	case strings.Contains(lowerErr, "timeout"),
		strings.Contains(lowerErr, "deadline exceeded"),
		strings.Contains(lowerErr, "context canceled"):
		return ErrorCodeTimeout

	// Checked before the generic TLS patterns: both messages mention tls.
	case strings.Contains(lowerErr, "malformed http response"),
		strings.Contains(lowerErr, "server gave http response to https client"),
		strings.Contains(lowerErr, "first record does not look like a tls handshake"):
		return ErrorCodeHTTPSRequired

	case strings.Contains(lowerErr, "certificate"),
		strings.Contains(lowerErr, "x509"),
		strings.Contains(lowerErr, "tls"),
		strings.Contains(lowerErr, "ssl"):
		return ErrorCodeSSLError

	case strings.Contains(lowerErr, "connection refused"):
		return ErrorCodeConnectionRefused

	case strings.Contains(lowerErr, "no route to host"),
		strings.Contains(lowerErr, "network is unreachable"):
		return ErrorCodeNetworkUnreachable

	case strings.Contains(lowerErr, "no such host"),
		strings.Contains(lowerErr, "lookup"),
		strings.Contains(lowerErr, "dns"):
		return ErrorCodeDNS
	}

	return ErrorCodeUnknown
}

// classifyStatusCode maps a status outside {200, 401} to an error code
func classifyStatusCode(statusCode int) ErrorCode {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorCodeAuthRequired
	case http.StatusNotFound:
		return ErrorCodeNotFound
	case http.StatusConflict:
		return ErrorCodeSessionConflict
	case http.StatusBadGateway:
		return ErrorCodeBadGateway
	case http.StatusServiceUnavailable:
		return ErrorCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrorCodeTimeout
	default:
		return ErrorCodeUnknown
	}
}

func isPermanentCode(code ErrorCode) bool {
	switch code {
	case ErrorCodeAuthRequired,
		ErrorCodeDNS,
		ErrorCodeSSLError,
		ErrorCodeHTTPSRequired,
		ErrorCodeNotFound,
		ErrorCodeInvalidBody:
		return true
	}
	return false
}

// isCallerError reports errors that no retry can fix: bad input to the client
// or a failure the daemon reported in the "result" member.
func isCallerError(err error) bool {
	var resultErr *ResultError
	return errors.Is(err, ErrEmptyMethod) ||
		errors.Is(err, ErrInvalidPort) ||
		errors.Is(err, ErrInvalidMagnet) ||
		errors.As(err, &resultErr)
}

// IsRetryableError returns true if the error is temporary and can be retried
func IsRetryableError(err error) bool {
	if err == nil || isCallerError(err) {
		return false
	}

	var clientErr *Error
	if errors.As(err, &clientErr) {
		return !clientErr.Permanent
	}

	return !isPermanentCode(ClassifyError(err))
}

// IsPermanentError returns true if the error requires user intervention
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}

	if isCallerError(err) {
		return true
	}

	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Permanent
	}

	return isPermanentCode(ClassifyError(err))
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	return ClassifyError(err)
}

// ResultError is returned by Invoke when the daemon processed the call but
// reported a failure in the "result" member.
type ResultError struct {
	Method string
	Result string
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Method, e.Result)
}
