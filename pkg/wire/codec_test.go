package wire

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	data := []byte(`{"type":"req","id":7,"method":"chat.send","params":{"text":"hi"}}`)

	frame, err := Decode(data)
	require.NoError(t, err)

	req, ok := frame.(*Request)
	require.True(t, ok, "expected *Request, got %T", frame)
	assert.Equal(t, uint64(7), req.ID)
	assert.Equal(t, "chat.send", req.Method)
}

func TestDecodeResponse(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		data := []byte(`{"type":"res","id":3,"ok":true,"payload":{"n":1}}`)

		frame, err := Decode(data)
		require.NoError(t, err)

		res, ok := frame.(*Response)
		require.True(t, ok)
		assert.Equal(t, uint64(3), res.ID)
		assert.True(t, res.OK)
		assert.JSONEq(t, `{"n":1}`, string(res.Payload))
		assert.Nil(t, res.Error)
	})

	t.Run("Error", func(t *testing.T) {
		data := []byte(`{"type":"res","id":4,"ok":false,` +
			`"error":{"code":"auth_failed","message":"bad token","retryable":false}}`)

		frame, err := Decode(data)
		require.NoError(t, err)

		res, ok := frame.(*Response)
		require.True(t, ok)
		assert.False(t, res.OK)
		require.NotNil(t, res.Error)
		assert.Equal(t, CodeAuthFailed, res.Error.Code)
		assert.Equal(t, "auth_failed: bad token", res.Error.Error())
	})
}

func TestDecodeEvent(t *testing.T) {
	data := []byte(`{"type":"event","event":"connect.challenge","payload":{"nonce":"abc"},"seq":12}`)

	frame, err := Decode(data)
	require.NoError(t, err)

	ev, ok := frame.(*Event)
	require.True(t, ok)
	assert.Equal(t, EventConnectChallenge, ev.Event)
	assert.Equal(t, uint64(12), ev.Seq)

	var payload ChallengePayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "abc", payload.Nonce)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		data string
		want error
	}{
		{"NotJSON", `{{{`, ErrInvalidFrame},
		{"MissingType", `{"id":1}`, ErrInvalidFrame},
		{"UnknownType", `{"type":"ping"}`, ErrUnknownFrameType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			assert.True(t, errors.Is(err, tc.want), "got %v, want %v", err, tc.want)
		})
	}
}

func TestEncodeConnectRequest(t *testing.T) {
	req := NewRequest(1, MethodConnect, ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client: ClientInfo{
			ID:          "cli-1",
			DisplayName: "Castle",
			Version:     "0.3.0",
			Platform:    "linux",
			Mode:        "workspace",
		},
		Auth: AuthBlock{Token: "tok"},
		Role: "operator",
	})

	data, err := Encode(req)
	require.NoError(t, err)

	// The device block must be absent from the first attempt.
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	params := m["params"].(map[string]any)
	_, hasDevice := params["device"]
	assert.False(t, hasDevice)
	assert.Equal(t, "req", m["type"])
}
