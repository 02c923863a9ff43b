package ocpp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCallRoundTrip(t *testing.T) {
	payload := HeartbeatRequest{}
	data, err := EncodeCall("msg-1", ActionHeartbeat, payload)
	require.NoError(t, err)

	frame, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Call, frame.Type)
	assert.Equal(t, "msg-1", frame.MessageId)
	assert.Equal(t, ActionHeartbeat, frame.Action)

	var decoded HeartbeatRequest
	require.NoError(t, json.Unmarshal(frame.Payload, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestEncodeDecodeCallResultRoundTrip(t *testing.T) {
	resp := BootNotificationResponse{Status: RegistrationAccepted, Interval: 60}
	data, err := EncodeCallResult("msg-2", resp)
	require.NoError(t, err)

	frame, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, CallResult, frame.Type)
	assert.Equal(t, "msg-2", frame.MessageId)

	var decoded BootNotificationResponse
	require.NoError(t, json.Unmarshal(frame.Payload, &decoded))
	assert.Equal(t, RegistrationAccepted, decoded.Status)
}

func TestEncodeDecodeCallErrorRoundTrip(t *testing.T) {
	data, err := EncodeCallError("msg-3", ErrorNotImplemented, "unknown action", nil)
	require.NoError(t, err)

	frame, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, CallError, frame.Type)
	assert.Equal(t, ErrorNotImplemented, frame.ErrorCode)
	assert.Equal(t, "unknown action", frame.ErrorDescription)
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := []string{
		`not-json`,
		`{}`,
		`[2,"m1"]`,
		`[2,"m1","Foo"]`,
		`[2,"m1","Foo",{},{}]`,
		`[3,"m1"]`,
		`[4,"m1","Code"]`,
		`[9,"m1",{}]`,
	}
	for _, c := range cases {
		_, err := Decode([]byte(c))
		require.Error(t, err, c)
		assert.True(t, IsOCPPError(err, ErrorProtocolError), c)
	}
}

func TestNewMessageIdIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewMessageId()
		require.False(t, seen[id])
		seen[id] = true
	}
}
