package transport

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The wire speaks Socket.IO-compatible text frames over a single WebSocket:
//
//	0{...}   engine handshake carrying sid and ping settings
//	40       namespace connect (client request and server ack)
//	42[...]  event: JSON array of [name, payload...] after the "42" prefix
//	2 / 3    ping / pong
type frameType int

const (
	frameUnknown frameType = iota
	frameHandshake
	frameConnectAck
	frameEvent
	framePing
	framePong
)

// handshakeInfo is the server's engine-level handshake payload. Intervals
// arrive in milliseconds.
type handshakeInfo struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

type frame struct {
	typ       frameType
	handshake handshakeInfo
	event     string
	payload   json.RawMessage
}

// parseFrame classifies one inbound text frame. Unknown prefixes are not an
// error; the caller drops them.
func parseFrame(text string) (frame, error) {
	switch {
	case strings.HasPrefix(text, "0{"):
		var hs handshakeInfo
		if err := json.Unmarshal([]byte(text[1:]), &hs); err != nil {
			return frame{}, fmt.Errorf("parse handshake: %w", err)
		}
		return frame{typ: frameHandshake, handshake: hs}, nil
	case strings.HasPrefix(text, "42"):
		return parseEventFrame(text[2:])
	case strings.HasPrefix(text, "40"):
		return frame{typ: frameConnectAck}, nil
	case text == "2":
		return frame{typ: framePing}, nil
	case text == "3":
		return frame{typ: framePong}, nil
	default:
		return frame{typ: frameUnknown}, nil
	}
}

func parseEventFrame(body string) (frame, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(body), &elems); err != nil {
		return frame{}, fmt.Errorf("parse event frame: %w", err)
	}
	if len(elems) == 0 {
		return frame{}, fmt.Errorf("parse event frame: empty array")
	}
	var name string
	if err := json.Unmarshal(elems[0], &name); err != nil {
		return frame{}, fmt.Errorf("parse event name: %w", err)
	}
	f := frame{typ: frameEvent, event: name}
	switch len(elems) {
	case 1:
		// no payload (e.g. bare lifecycle signal)
	case 2:
		f.payload = elems[1]
	default:
		// Multiple payload elements collapse back into one array so the
		// decoder sees the same shape the server emitted.
		joined, err := json.Marshal(elems[1:])
		if err != nil {
			return frame{}, fmt.Errorf("join event payload: %w", err)
		}
		f.payload = joined
	}
	return f, nil
}

// encodeEvent renders an outbound event frame.
func encodeEvent(event string, payload any) (string, error) {
	elems := []any{event}
	if payload != nil {
		elems = append(elems, payload)
	}
	data, err := json.Marshal(elems)
	if err != nil {
		return "", fmt.Errorf("encode event %q: %w", event, err)
	}
	return "42" + string(data), nil
}

// encodeRoomEvent renders the three-element room-addressed form.
func encodeRoomEvent(event, roomID string, payload any) (string, error) {
	data, err := json.Marshal([]any{event, roomID, payload})
	if err != nil {
		return "", fmt.Errorf("encode event %q for room %q: %w", event, roomID, err)
	}
	return "42" + string(data), nil
}
