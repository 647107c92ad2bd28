package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/castle-chat/clawlink/pkg/wire"
)

func TestRPCErrorMessage(t *testing.T) {
	err := &RPCError{Code: "bad_request", Message: "no such method"}
	assert.Equal(t, "rpc error: bad_request: no such method", err.Error())

	err = &RPCError{Code: "bad_request"}
	assert.Equal(t, "rpc error: bad_request", err.Error())
}

func TestNewRPCError(t *testing.T) {
	got := newRPCError(&wire.Error{
		Code:         "rate_limited",
		Message:      "slow down",
		Retryable:    true,
		RetryAfterMs: 250,
	})
	assert.Equal(t, "rate_limited", got.Code)
	assert.True(t, got.Retryable)
	assert.Equal(t, int64(250), got.RetryAfterMs)

	got = newRPCError(nil)
	assert.Equal(t, "unknown", got.Code)
}
