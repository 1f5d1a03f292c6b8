package bankclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies an APIError.
type Kind int

const (
	// KindUpstream is a non-2xx response from the bank.
	KindUpstream Kind = iota
	// KindTimeout is a request that exceeded its deadline.
	KindTimeout
	// KindUnavailable is a transport failure such as a refused connection.
	KindUnavailable
	// KindDecode is a 2xx response whose body could not be decoded.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	case KindDecode:
		return "decode"
	default:
		return "upstream"
	}
}

// APIError is returned for every failed bank call. StatusCode mirrors the
// upstream status, or 504/503/502 for timeouts, transport and decode
// failures. Detail holds the raw response body when there was one.
type APIError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Detail     string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (status %d): %v", e.Message, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.Err }

// retryable reports whether repeating the call may succeed.
func (e *APIError) retryable() bool {
	switch e.Kind {
	case KindUnavailable:
		return true
	case KindUpstream:
		switch e.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

// transportError maps an http.Client failure onto an APIError.
func transportError(op string, err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Kind: KindTimeout, StatusCode: http.StatusGatewayTimeout, Message: op + ": timeout", Err: err}
	}
	return &APIError{Kind: KindUnavailable, StatusCode: http.StatusServiceUnavailable, Message: op + ": connection failed", Err: err}
}

func upstreamError(op string, status int, body string) *APIError {
	return &APIError{
		Kind:       KindUpstream,
		StatusCode: status,
		Message:    fmt.Sprintf("%s: unexpected status %d", op, status),
		Detail:     body,
	}
}

func decodeError(op string, err error) *APIError {
	return &APIError{Kind: KindDecode, StatusCode: http.StatusBadGateway, Message: op + ": invalid response body", Err: err}
}
