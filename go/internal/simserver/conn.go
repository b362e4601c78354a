package simserver

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type joinFrame struct {
	RoomID   string          `json:"roomId"`
	UserID   json.RawMessage `json:"userId"`
	ClientID string          `json:"clientId"`
}

func (c *conn) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		// slow or dead client, drop it
		log.Warn().
			Str("connection_id", c.id).
			Msg("connection send buffer full, closing connection")
		c.server.dropConnection(c)
		c.ws.Close()
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.server.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.server.dropConnection(c)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			// heartbeat is a text frame, not a ws control ping
			c.ws.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte("2")); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("failed to send heartbeat")
				return
			}
		}
	}
}

func (c *conn) readPump() {
	defer func() {
		c.server.dropConnection(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.server.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.server.config.ReadTimeout))

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("unexpected close error")
			}
			break
		}
		c.handleFrame(frame)
		c.ws.SetReadDeadline(time.Now().Add(c.server.config.ReadTimeout))
	}
}

func (c *conn) handleFrame(frame []byte) {
	switch {
	case len(frame) == 0:
		return
	case frame[0] == '3':
		// heartbeat ack
		return
	case frame[0] == '2':
		c.enqueue([]byte("3"))
	case bytes.HasPrefix(frame, []byte("40")):
		// namespace connect, acknowledge with the session id
		ack, _ := json.Marshal(map[string]string{"sid": c.id})
		c.enqueue(append([]byte("40"), ack...))
	case bytes.HasPrefix(frame, []byte("42")):
		c.handleEvent(frame[2:])
	default:
		log.Debug().
			Str("connection_id", c.id).
			Str("frame", string(frame)).
			Msg("ignoring unknown frame")
	}
}

func (c *conn) handleEvent(raw []byte) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil || len(elements) == 0 {
		log.Warn().Str("connection_id", c.id).Msg("malformed event frame")
		return
	}

	var name string
	if err := json.Unmarshal(elements[0], &name); err != nil {
		log.Warn().Str("connection_id", c.id).Msg("event frame without name")
		return
	}

	// room-addressed form carries the room id as the second element
	var roomID string
	var payload json.RawMessage
	if len(elements) == 3 {
		if err := json.Unmarshal(elements[1], &roomID); err != nil {
			roomID = ""
		}
		payload = elements[2]
	} else if len(elements) == 2 {
		payload = elements[1]
	}

	switch name {
	case "join:room":
		var join joinFrame
		if err := json.Unmarshal(payload, &join); err != nil || join.RoomID == "" {
			log.Warn().Str("connection_id", c.id).Msg("malformed join frame")
			return
		}
		c.clientID = join.ClientID
		var user struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(join.UserID, &user) == nil {
			c.userID = user.ID
		}
		c.server.joinRoom(c, join.RoomID)
		return
	case "leave:room":
		var leave struct {
			RoomID string `json:"roomId"`
		}
		if json.Unmarshal(payload, &leave) == nil && leave.RoomID != "" {
			c.server.leaveRoom(c, leave.RoomID)
		}
		return
	}

	c.server.handlersMu.RLock()
	handler := c.server.handlers[name]
	c.server.handlersMu.RUnlock()
	if handler != nil {
		handler(c.clientID, roomID, payload)
		return
	}

	// room-addressed events without a handler fan out to the room as-is,
	// sender included
	if roomID != "" {
		frame, err := encodeEventFrame(name, payload)
		if err != nil {
			return
		}
		select {
		case c.server.broadcastCh <- broadcastMessage{roomID: roomID, frame: frame}:
		default:
			log.Warn().Str("room_id", roomID).Msg("broadcast channel full, dropping message")
		}
		return
	}

	log.Debug().
		Str("connection_id", c.id).
		Str("event", name).
		Msg("unhandled client event")
}
