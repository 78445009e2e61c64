package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ConnectionErrorType categorizes the type of connection error.
type ConnectionErrorType int

const (
	ConnectionErrorUnknown ConnectionErrorType = iota
	ConnectionErrorTLS
	// ConnectionErrorNetwork covers refused and reset connections, the usual
	// sign of a controller that is not running.
	ConnectionErrorNetwork
	ConnectionErrorTimeout
	ConnectionErrorDNS
)

// String returns a human-readable name for the connection error type.
func (t ConnectionErrorType) String() string {
	switch t {
	case ConnectionErrorTLS:
		return "TLS certificate error"
	case ConnectionErrorNetwork:
		return "Network error"
	case ConnectionErrorTimeout:
		return "Connection timeout"
	case ConnectionErrorDNS:
		return "DNS resolution error"
	default:
		return "Connection error"
	}
}

// ConnectionError is returned when the controller API could not be reached
// at all, as opposed to answering with an error status.
type ConnectionError struct {
	Endpoint string
	Type     ConnectionErrorType
	Reason   error
}

// Error returns a message naming the endpoint and a hint for the common
// case of a controller that is not running.
func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("%s: cannot reach runboat at %s: %v", e.Type, e.Endpoint, e.Reason)
	if e.Type == ConnectionErrorNetwork {
		msg += "\n\nIs the controller running? Start it with: runboat serve"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Reason
}

// ClassifyConnectionError wraps a transport error from the HTTP client in a
// ConnectionError of the matching type. It returns nil for a nil error.
func ClassifyConnectionError(err error, endpoint string) *ConnectionError {
	if err == nil {
		return nil
	}
	return &ConnectionError{Endpoint: endpoint, Type: connectionErrorType(err), Reason: err}
}

func connectionErrorType(err error) ConnectionErrorType {
	var (
		dnsErr *net.DNSError
		netErr net.Error
		opErr  *net.OpError
	)
	msg := err.Error()

	switch {
	case strings.Contains(msg, "x509:") || strings.Contains(msg, "tls:"):
		return ConnectionErrorTLS
	case errors.As(err, &dnsErr):
		return ConnectionErrorDNS
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return ConnectionErrorTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return ConnectionErrorNetwork
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return ConnectionErrorNetwork
	case strings.Contains(msg, "connection refused"):
		return ConnectionErrorNetwork
	default:
		return ConnectionErrorUnknown
	}
}

// APIError is a non-2xx answer from the controller.
type APIError struct {
	// Endpoint is the URL of the request.
	Endpoint string
	// StatusCode is the HTTP status returned.
	StatusCode int
	// Message is the error field of the response body, or the status text
	// when the body carried none.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError for a missing build.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
