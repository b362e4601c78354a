// Package room keeps room membership true across reconnects. Membership is
// re-asserted, never assumed: every transition into the connected state
// re-issues a join frame for each room this manager knows about.
package room

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Riqtu/hohma-sync/go/internal/event"
	"github.com/Riqtu/hohma-sync/go/internal/models"
	"github.com/Riqtu/hohma-sync/go/internal/transport"
)

// SettleDelay is how long a join waits after the connect event before the
// join frame goes out, letting the transport settle first.
const SettleDelay = 200 * time.Millisecond

// RoomID derives the deterministic room identifier for one game session.
func RoomID(kind models.SessionKind, sessionID string) string {
	if kind == models.SessionKindBattle {
		return "movieBattle:" + sessionID
	}
	return "wheel:" + sessionID
}

// Transport is the slice of the transport client the manager uses.
type Transport interface {
	On(event string, fn transport.Handler) transport.Subscription
	Emit(event string, payload any) error
	ID() string
}

type joinPayload struct {
	RoomID   string             `json:"roomId"`
	UserID   models.Participant `json:"userId"`
	ClientID string             `json:"clientId"`
}

type leavePayload struct {
	RoomID string `json:"roomId"`
}

// Manager tracks joined rooms for one transport client.
type Manager struct {
	tr          Transport
	clock       clockwork.Clock
	settleDelay time.Duration

	mu      sync.Mutex
	rooms   map[string]models.Participant
	closed  bool
	connSub transport.Subscription
	done    chan struct{}
}

func NewManager(tr Transport, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Manager{
		tr:          tr,
		clock:       clock,
		settleDelay: SettleDelay,
		rooms:       make(map[string]models.Participant),
		done:        make(chan struct{}),
	}
	// the connect event itself drives (re)joining, so a reconnect can never
	// leave us silently outside our rooms
	m.connSub = tr.On(transport.EventConnect, func(json.RawMessage) {
		m.rejoinAll()
	})
	return m
}

// Join records membership and issues a join frame. Joining while
// disconnected is fine; the next connect event re-issues it.
func (m *Manager) Join(roomID string, user models.Participant) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.rooms[roomID] = user
	m.mu.Unlock()
	m.scheduleJoin(roomID, user)
}

// Leave forgets the room and sends a best-effort leave frame. Teardown
// never waits on the frame being delivered.
func (m *Manager) Leave(roomID string) {
	m.mu.Lock()
	delete(m.rooms, roomID)
	m.mu.Unlock()
	if err := m.tr.Emit(event.NameLeaveRoom, leavePayload{RoomID: roomID}); err != nil {
		log.Debug().Err(err).Str("room_id", roomID).Msg("leave frame not sent")
	}
}

// Rooms lists current memberships.
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	return out
}

// Close detaches from the transport. Rooms are not left implicitly; callers
// Leave the rooms they own first.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.rooms = make(map[string]models.Participant)
	m.mu.Unlock()
	m.connSub.Cancel()
	close(m.done)
}

func (m *Manager) rejoinAll() {
	m.mu.Lock()
	rooms := make(map[string]models.Participant, len(m.rooms))
	for id, user := range m.rooms {
		rooms[id] = user
	}
	m.mu.Unlock()
	for id, user := range rooms {
		m.scheduleJoin(id, user)
	}
}

func (m *Manager) scheduleJoin(roomID string, user models.Participant) {
	timer := m.clock.NewTimer(m.settleDelay)
	go func() {
		select {
		case <-timer.Chan():
		case <-m.done:
			if !timer.Stop() {
				select {
				case <-timer.Chan():
				default:
				}
			}
			return
		}
		m.mu.Lock()
		_, still := m.rooms[roomID]
		m.mu.Unlock()
		if !still {
			return
		}
		payload := joinPayload{RoomID: roomID, UserID: user, ClientID: m.tr.ID()}
		// Do not gate on the connected flag here: if the connect event just
		// fired, the join must go out even when the flag update races it.
		if err := m.tr.Emit(event.NameJoinRoom, payload); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("join frame not sent")
			return
		}
		log.Info().Str("room_id", roomID).Msg("joined room")
	}()
}
