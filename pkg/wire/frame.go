package wire

import (
	"encoding/json"
	"fmt"
)

// Frame type discriminators.
const (
	// FrameRequest is a caller-initiated request expecting a response.
	FrameRequest = "req"

	// FrameResponse answers a request, matched by id.
	FrameResponse = "res"

	// FrameEvent is a server-pushed event with no matching request.
	FrameEvent = "event"
)

// Request is a request frame sent to the gateway.
type Request struct {
	Type   string `json:"type"`
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// NewRequest builds a request frame for the given method and parameters.
func NewRequest(id uint64, method string, params any) *Request {
	return &Request{
		Type:   FrameRequest,
		ID:     id,
		Method: method,
		Params: params,
	}
}

// Response is a response frame received from the gateway.
// When OK is false, Error carries the failure; Payload is unset.
type Response struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Event is a server-pushed event frame.
// Seq is an optional monotonic sequence number assigned by the gateway.
type Event struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
}

// Error is the structured failure payload of a rejected response.
type Error struct {
	Code         string          `json:"code"`
	Message      string          `json:"message"`
	Details      json.RawMessage `json:"details,omitempty"`
	Retryable    bool            `json:"retryable,omitempty"`
	RetryAfterMs int64           `json:"retryAfterMs,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
