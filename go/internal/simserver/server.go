// Package simserver is a small in-process game server speaking the same
// text framing as the real backend. It backs integration tests and the
// standalone sim binary; it is not the production server.
package simserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Config holds WebSocket tuning for the sim server.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the sim server defaults. The ping interval is
// deliberately short so tests exercise the heartbeat quickly.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    25 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// EventHandler receives one client event. roomID is empty for events sent
// outside the room-addressed frame form.
type EventHandler func(clientID, roomID string, payload json.RawMessage)

type broadcastMessage struct {
	roomID string
	frame  []byte
	except string
}

// Server manages client connections grouped into rooms.
type Server struct {
	roomConns map[string]map[*conn]bool
	mu        sync.RWMutex

	upgrader websocket.Upgrader
	config   Config

	handlersMu sync.RWMutex
	handlers   map[string]EventHandler

	broadcastCh chan broadcastMessage
}

type conn struct {
	id       string
	clientID string
	userID   string
	ws       *websocket.Conn
	send     chan []byte
	server   *Server

	mu    sync.Mutex
	rooms map[string]bool

	connectedAt time.Time
}

func NewServer(config Config) *Server {
	return &Server{
		roomConns: make(map[string]map[*conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		handlers:    make(map[string]EventHandler),
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes broadcast messages until the context ends.
func (s *Server) Start(ctx context.Context) {
	log.Info().Msg("sim server started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sim server shutting down")
			return
		case message := <-s.broadcastCh:
			s.handleBroadcast(message)
		}
	}
}

// OnEvent registers a handler for one client event name. join:room and
// leave:room are handled internally and need no handler.
func (s *Server) OnEvent(name string, fn EventHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[name] = fn
}

// Handler serves the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("failed to upgrade connection")
			return
		}

		c := &conn{
			id:          uuid.New().String(),
			ws:          ws,
			send:        make(chan []byte, 256),
			server:      s,
			rooms:       make(map[string]bool),
			connectedAt: time.Now(),
		}

		go c.writePump()
		go c.readPump()

		handshake := fmt.Sprintf(
			`0{"sid":%q,"pingInterval":%d,"pingTimeout":%d}`,
			c.id,
			s.config.PingInterval.Milliseconds(),
			s.config.ReadTimeout.Milliseconds(),
		)
		c.enqueue([]byte(handshake))

		log.Info().Str("connection_id", c.id).Msg("connection established")
	})
}

// Broadcast sends an event frame to every member of the room.
func (s *Server) Broadcast(roomID, name string, payload any) {
	s.BroadcastExcept(roomID, name, payload, "")
}

// BroadcastExcept sends to every room member whose client id differs from
// except. An empty except sends to everyone.
func (s *Server) BroadcastExcept(roomID, name string, payload any, except string) {
	frame, err := encodeEventFrame(name, payload)
	if err != nil {
		log.Error().Err(err).Str("event", name).Msg("failed to encode broadcast")
		return
	}
	select {
	case s.broadcastCh <- broadcastMessage{roomID: roomID, frame: frame, except: except}:
	default:
		log.Warn().Str("room_id", roomID).Msg("broadcast channel full, dropping message")
	}
}

// RoomSize reports how many connections are in a room.
func (s *Server) RoomSize(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roomConns[roomID])
}

// Stats reports active connection counts per room.
func (s *Server) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	roomCounts := make(map[string]int)
	for roomID, conns := range s.roomConns {
		roomCounts[roomID] = len(conns)
		total += len(conns)
	}
	return map[string]any{
		"total_connections": total,
		"active_rooms":      len(s.roomConns),
		"room_connections":  roomCounts,
	}
}

func (s *Server) joinRoom(c *conn, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roomConns[roomID] == nil {
		s.roomConns[roomID] = make(map[*conn]bool)
	}
	s.roomConns[roomID][c] = true
	c.mu.Lock()
	c.rooms[roomID] = true
	c.mu.Unlock()

	log.Debug().
		Str("connection_id", c.id).
		Str("room_id", roomID).
		Int("total_connections", len(s.roomConns[roomID])).
		Msg("connection joined room")
}

func (s *Server) leaveRoom(c *conn, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conns, exists := s.roomConns[roomID]; exists {
		delete(conns, c)
		if len(conns) == 0 {
			delete(s.roomConns, roomID)
		}
	}
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

func (s *Server) dropConnection(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.mu.Lock()
	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	c.rooms = make(map[string]bool)
	c.mu.Unlock()

	dropped := false
	for _, roomID := range rooms {
		if conns, exists := s.roomConns[roomID]; exists {
			if conns[c] {
				delete(conns, c)
				dropped = true
			}
			if len(conns) == 0 {
				delete(s.roomConns, roomID)
			}
		}
	}
	if dropped {
		log.Info().
			Str("connection_id", c.id).
			Str("user_id", c.userID).
			Msg("connection unregistered")
	}
}

func (s *Server) handleBroadcast(message broadcastMessage) {
	s.mu.RLock()
	conns, exists := s.roomConns[message.roomID]
	if !exists {
		s.mu.RUnlock()
		return
	}
	targets := make([]*conn, 0, len(conns))
	for c := range conns {
		if message.except != "" && c.clientID == message.except {
			continue
		}
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(message.frame)
	}

	log.Debug().
		Str("room_id", message.roomID).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

func encodeEventFrame(name string, payload any) ([]byte, error) {
	elements := []any{name}
	if payload != nil {
		elements = append(elements, payload)
	}
	raw, err := json.Marshal(elements)
	if err != nil {
		return nil, err
	}
	return append([]byte("42"), raw...), nil
}
