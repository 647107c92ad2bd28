package gateway

import (
	"errors"
	"fmt"

	"github.com/castle-chat/clawlink/pkg/wire"
)

// Engine errors.
var (
	// ErrNotConnected rejects a Request made while no authenticated
	// session exists. The rejection is synchronous; nothing is queued.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionClosed settles pending requests when the session ends.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrRequestTimeout settles a request whose deadline expired.
	ErrRequestTimeout = errors.New("request timed out")
)

// SendError wraps a transport failure while writing a request frame.
// The request fails immediately; the session teardown is handled
// separately by the read loop.
type SendError struct {
	Method string
	Err    error
}

// Error implements the error interface.
func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %v", e.Method, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *SendError) Unwrap() error {
	return e.Err
}

// RPCError is a gateway-rejected request. It carries the structured error
// payload from the response frame.
type RPCError struct {
	Code         string
	Message      string
	Details      []byte
	Retryable    bool
	RetryAfterMs int64
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc error: %s", e.Code)
	}
	return fmt.Sprintf("rpc error: %s: %s", e.Code, e.Message)
}

// newRPCError converts a wire error payload.
func newRPCError(we *wire.Error) *RPCError {
	if we == nil {
		return &RPCError{Code: "unknown", Message: "request rejected without error payload"}
	}
	return &RPCError{
		Code:         we.Code,
		Message:      we.Message,
		Details:      we.Details,
		Retryable:    we.Retryable,
		RetryAfterMs: we.RetryAfterMs,
	}
}
