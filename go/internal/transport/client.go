// Package transport owns the single multiplexed WebSocket connection to the
// game server: connect/disconnect, heartbeat, bounded exponential reconnect,
// and event-name dispatch. All registered handlers run on one dispatch
// goroutine, in delivery order.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Riqtu/hohma-sync/go/internal/notify"
)

// State is the connection state observable by the rest of the client.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
)

// Synthetic local events delivered through On alongside wire events.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// ErrNotConnected is returned by Emit when there is no live connection.
var ErrNotConnected = errors.New("transport: not connected")

const writeTimeout = 10 * time.Second

// Handler receives the raw payload of one inbound event.
type Handler func(payload json.RawMessage)

// Subscription detaches a registered handler.
type Subscription struct {
	cancel func()
}

func (s Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewSubscription wraps a cancel function. Alternative Transport
// implementations build their subscriptions with it.
func NewSubscription(cancel func()) Subscription {
	return Subscription{cancel: cancel}
}

// Config holds connection settings for the transport client.
type Config struct {
	URL                  string
	AuthToken            string
	HeartbeatInterval    time.Duration
	ConnectionTimeout    time.Duration
	Backoff              Backoff
	MaxReconnectAttempts int
	DialTimeout          time.Duration
	DispatchBuffer       int
}

// DefaultConfig matches the production server's ping settings.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		HeartbeatInterval:    25 * time.Second,
		ConnectionTimeout:    60 * time.Second,
		Backoff:              Backoff{Min: 2 * time.Second, Max: 30 * time.Second},
		MaxReconnectAttempts: 10,
		DialTimeout:          30 * time.Second,
		DispatchBuffer:       256,
	}
}

type registration struct {
	id uuid.UUID
	fn Handler
}

type stateRegistration struct {
	id uuid.UUID
	fn func(State)
}

type dispatchItem struct {
	event   string
	payload json.RawMessage
	state   *State
}

// Client is the transport connection. A single Client is shared by every
// open game session in the process.
type Client struct {
	cfg      Config
	clock    clockwork.Clock
	sink     notify.Sink
	clientID string

	dispatchCh chan dispatchItem
	done       chan struct{}
	closeOnce  sync.Once

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	handlers       map[string][]*registration
	stateFns       []*stateRegistration
	attempts       int
	manual         bool
	gen            int
	lastPong       time.Time
	reconnectTimer clockwork.Timer

	writeMu sync.Mutex
}

// NewClient builds a client and starts its dispatch goroutine. A nil clock
// means real time; a nil sink logs through zerolog.
func NewClient(cfg Config, clock clockwork.Clock, sink notify.Sink) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = notify.LogSink{}
	}
	c := &Client{
		cfg:        cfg,
		clock:      clock,
		sink:       sink,
		clientID:   uuid.New().String(),
		dispatchCh: make(chan dispatchItem, cfg.DispatchBuffer),
		done:       make(chan struct{}),
		state:      StateDisconnected,
		handlers:   make(map[string][]*registration),
	}
	go c.dispatchLoop()
	return c
}

// ID is the client identity echoed in join frames and spin broadcasts.
func (c *Client) ID() string { return c.clientID }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// On registers a handler for an event name. Handlers for one client are
// never invoked concurrently with each other.
func (c *Client) On(event string, fn Handler) Subscription {
	reg := &registration{id: uuid.New(), fn: fn}
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], reg)
	c.mu.Unlock()
	return Subscription{cancel: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		regs := c.handlers[event]
		for i, r := range regs {
			if r.id == reg.id {
				c.handlers[event] = append(regs[:i], regs[i+1:]...)
				break
			}
		}
	}}
}

// OnStateChange registers an observer for connection-state transitions,
// invoked on the dispatch goroutine like event handlers.
func (c *Client) OnStateChange(fn func(State)) Subscription {
	reg := &stateRegistration{id: uuid.New(), fn: fn}
	c.mu.Lock()
	c.stateFns = append(c.stateFns, reg)
	c.mu.Unlock()
	return Subscription{cancel: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, r := range c.stateFns {
			if r.id == reg.id {
				c.stateFns = append(c.stateFns[:i], c.stateFns[i+1:]...)
				break
			}
		}
	}}
}

// Connect begins establishing the connection. Idempotent while already
// connecting or connected. A manual Connect restarts the attempt budget.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		log.Debug().Str("state", string(c.state)).Msg("connect skipped, already in progress")
		return
	}
	c.manual = false
	c.attempts = 0
	c.setStateLocked(StateConnecting)
	gen := c.gen
	c.mu.Unlock()
	go c.dial(gen)
}

// Disconnect tears the connection down cleanly and stops reconnecting.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.gen++
	if c.reconnectTimer != nil {
		stopAndDrainTimer(c.reconnectTimer)
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	if c.state != StateDisconnected {
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(writeTimeout))
		conn.Close()
	}
	log.Info().Msg("transport disconnected")
}

// Close disconnects and releases the dispatch goroutine. The client cannot
// be reused afterwards.
func (c *Client) Close() {
	c.Disconnect()
	c.closeOnce.Do(func() { close(c.done) })
}

// Emit sends a best-effort event frame. It does not wait for any
// acknowledgment. Emitting is allowed while the connected flag briefly lags
// a received connect ack, so a join scheduled off the connect event can
// never livelock on the flag.
func (c *Client) Emit(event string, payload any) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if state != StateConnected {
		log.Debug().Str("event", event).Str("state", string(state)).
			Msg("emitting while connection state lags")
	}
	text, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}
	return c.writeText(conn, text)
}

// EmitToRoom sends the three-element room-addressed frame form.
func (c *Client) EmitToRoom(event, roomID string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	text, err := encodeRoomEvent(event, roomID, payload)
	if err != nil {
		return err
	}
	return c.writeText(conn, text)
}

func (c *Client) dial(gen int) {
	url, err := socketURL(c.cfg.URL)
	if err != nil {
		c.connectionLost(gen, err)
		return
	}
	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("dial failed")
		c.connectionLost(gen, fmt.Errorf("dial %s: %w", url, err))
		return
	}

	c.mu.Lock()
	if c.manual || gen != c.gen {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.lastPong = c.clock.Now()
	c.mu.Unlock()

	go c.readPump(conn, gen)
}

func (c *Client) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(gen, err)
			return
		}
		f, perr := parseFrame(string(data))
		if perr != nil {
			log.Debug().Err(perr).Msg("dropping unparseable frame")
			continue
		}
		switch f.typ {
		case frameHandshake:
			log.Debug().Str("sid", f.handshake.SID).Msg("handshake received")
			if err := c.writeText(conn, "40"); err != nil {
				conn.Close()
			}
		case frameConnectAck:
			c.handleConnected(conn, gen)
		case framePing:
			// server-driven ping doubles as liveness
			c.touchPong()
			if err := c.writeText(conn, "3"); err != nil {
				conn.Close()
			}
		case framePong:
			c.touchPong()
		case frameEvent:
			c.enqueue(dispatchItem{event: f.event, payload: f.payload})
		}
	}
}

func (c *Client) handleConnected(conn *websocket.Conn, gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	c.lastPong = c.clock.Now()
	c.setStateLocked(StateConnected)
	c.mu.Unlock()
	log.Info().Msg("transport connected")
	c.enqueue(dispatchItem{event: EventConnect})
	go c.heartbeat(conn, gen)
}

func (c *Client) heartbeat(conn *websocket.Conn, gen int) {
	ticker := c.clock.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			c.mu.Lock()
			stale := gen != c.gen
			last := c.lastPong
			c.mu.Unlock()
			if stale {
				return
			}
			if c.clock.Since(last) > c.cfg.ConnectionTimeout {
				log.Warn().Dur("timeout", c.cfg.ConnectionTimeout).
					Msg("no heartbeat ack within timeout, dropping connection")
				conn.Close()
				return
			}
			if err := c.writeText(conn, "2"); err != nil {
				conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// connectionLost handles every path a connection dies on: dial failure,
// read error, or the heartbeat watchdog closing the socket underneath the
// read pump. Stale generations are ignored so a connection can only be
// mourned once.
func (c *Client) connectionLost(gen int, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	wasConnected := c.state == StateConnected
	c.setStateLocked(StateDisconnected)
	if c.manual {
		c.mu.Unlock()
		return
	}
	c.attempts++
	attempt := c.attempts
	if attempt > c.cfg.MaxReconnectAttempts {
		c.mu.Unlock()
		log.Error().Err(cause).Int("attempts", attempt-1).
			Msg("reconnect attempts exhausted")
		c.sink.Report(notify.Event{
			Kind:       notify.KindReconnectFailed,
			Attempts:   attempt - 1,
			Detail:     cause.Error(),
			OccurredAt: c.clock.Now(),
		})
		return
	}
	delay := c.cfg.Backoff.Delay(attempt)
	timer := c.clock.NewTimer(delay)
	c.reconnectTimer = timer
	c.mu.Unlock()

	if wasConnected {
		c.enqueue(dispatchItem{event: EventDisconnect})
	}
	log.Warn().Err(cause).Int("attempt", attempt).Dur("delay", delay).
		Msg("connection lost, scheduling reconnect")

	go func() {
		select {
		case <-timer.Chan():
			c.mu.Lock()
			if c.manual || c.state != StateDisconnected {
				c.mu.Unlock()
				return
			}
			c.setStateLocked(StateConnecting)
			g := c.gen
			c.mu.Unlock()
			c.dial(g)
		case <-c.done:
			stopAndDrainTimer(timer)
		}
	}()
}

func (c *Client) touchPong() {
	c.mu.Lock()
	c.lastPong = c.clock.Now()
	c.mu.Unlock()
}

// setStateLocked requires c.mu held. Observers are notified through the
// dispatch queue so they run on the same goroutine as event handlers.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	st := s
	c.enqueue(dispatchItem{state: &st})
}

func (c *Client) enqueue(item dispatchItem) {
	select {
	case c.dispatchCh <- item:
	default:
		log.Warn().Str("event", item.event).Msg("dispatch buffer full, dropping")
	}
}

func (c *Client) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case item := <-c.dispatchCh:
			if item.state != nil {
				for _, reg := range c.stateSnapshot() {
					reg.fn(*item.state)
				}
				continue
			}
			for _, reg := range c.handlerSnapshot(item.event) {
				reg.fn(item.payload)
			}
		}
	}
}

func (c *Client) handlerSnapshot(event string) []*registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*registration(nil), c.handlers[event]...)
}

func (c *Client) stateSnapshot() []*stateRegistration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*stateRegistration(nil), c.stateFns...)
}

func (c *Client) writeText(conn *websocket.Conn, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern from time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

func socketURL(base string) (string, error) {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "wss://"), strings.HasPrefix(base, "ws://"):
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s", base)
	}
	return strings.TrimRight(base, "/") + "/socket.io/?EIO=4&transport=websocket", nil
}
