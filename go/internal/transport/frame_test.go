package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame_Handshake(t *testing.T) {
	f, err := parseFrame(`0{"sid":"abc","pingInterval":25000,"pingTimeout":60000}`)
	require.NoError(t, err)
	assert.Equal(t, frameHandshake, f.typ)
	assert.Equal(t, "abc", f.handshake.SID)
	assert.Equal(t, 25000, f.handshake.PingInterval)
	assert.Equal(t, 60000, f.handshake.PingTimeout)
}

func TestParseFrame_PingPongConnectAck(t *testing.T) {
	f, err := parseFrame("2")
	require.NoError(t, err)
	assert.Equal(t, framePing, f.typ)

	f, err = parseFrame("3")
	require.NoError(t, err)
	assert.Equal(t, framePong, f.typ)

	f, err = parseFrame(`40{"sid":"abc"}`)
	require.NoError(t, err)
	assert.Equal(t, frameConnectAck, f.typ)
}

func TestParseFrame_Event(t *testing.T) {
	f, err := parseFrame(`42["session:update",{"id":"w1"}]`)
	require.NoError(t, err)
	assert.Equal(t, frameEvent, f.typ)
	assert.Equal(t, "session:update", f.event)
	assert.JSONEq(t, `{"id":"w1"}`, string(f.payload))
}

func TestParseFrame_EventWithoutPayload(t *testing.T) {
	f, err := parseFrame(`42["connect"]`)
	require.NoError(t, err)
	assert.Equal(t, frameEvent, f.typ)
	assert.Equal(t, "connect", f.event)
	assert.Nil(t, f.payload)
}

func TestParseFrame_EventMultiPayloadCollapses(t *testing.T) {
	f, err := parseFrame(`42["round:complete",{"id":"b1"},{"roundNumber":2}]`)
	require.NoError(t, err)
	assert.Equal(t, "round:complete", f.event)
	assert.JSONEq(t, `[{"id":"b1"},{"roundNumber":2}]`, string(f.payload))
}

func TestParseFrame_UnknownPrefixNotAnError(t *testing.T) {
	for _, text := range []string{"6", "441", "hello", ""} {
		f, err := parseFrame(text)
		require.NoError(t, err, text)
		assert.Equal(t, frameUnknown, f.typ, text)
	}
}

func TestParseFrame_MalformedEvent(t *testing.T) {
	_, err := parseFrame(`42{"not":"array"}`)
	assert.Error(t, err)

	_, err = parseFrame(`42[]`)
	assert.Error(t, err)
}

func TestEncodeEvent(t *testing.T) {
	s, err := encodeEvent("join:room", map[string]string{"roomId": "wheel:w1"})
	require.NoError(t, err)
	assert.Equal(t, `42["join:room",{"roomId":"wheel:w1"}]`, s)

	s, err = encodeEvent("leave:room", nil)
	require.NoError(t, err)
	assert.Equal(t, `42["leave:room"]`, s)
}

func TestEncodeRoomEvent(t *testing.T) {
	s, err := encodeRoomEvent("wheel:spin", "wheel:w1", map[string]int{"winningIndex": 3})
	require.NoError(t, err)
	assert.Equal(t, `42["wheel:spin","wheel:w1",{"winningIndex":3}]`, s)
}

func TestEncodeThenParseRoundTrips(t *testing.T) {
	s, err := encodeEvent("session:update", map[string]string{"id": "w1"})
	require.NoError(t, err)
	f, err := parseFrame(s)
	require.NoError(t, err)
	assert.Equal(t, "session:update", f.event)
	assert.JSONEq(t, `{"id":"w1"}`, string(f.payload))
}
