package room

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riqtu/hohma-sync/go/internal/models"
	"github.com/Riqtu/hohma-sync/go/internal/transport"
)

type sentEvent struct {
	name    string
	payload any
}

// fakeTransport records emits and lets tests fire the connect event by hand.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string][]transport.Handler
	sent     []sentEvent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[string][]transport.Handler{}}
}

func (f *fakeTransport) On(event string, fn transport.Handler) transport.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = append(f.handlers[event], fn)
	return transport.Subscription{}
}

func (f *fakeTransport) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{name: event, payload: payload})
	return nil
}

func (f *fakeTransport) ID() string { return "client-1" }

func (f *fakeTransport) fireConnect() {
	f.mu.Lock()
	fns := append([]transport.Handler(nil), f.handlers[transport.EventConnect]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(nil)
	}
}

func (f *fakeTransport) sentNamed(name string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, ev := range f.sent {
		if ev.name == name {
			out = append(out, ev)
		}
	}
	return out
}

func waitForJoins(t *testing.T, tr *fakeTransport, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(tr.sentNamed("join:room")) == want
	}, time.Second, 5*time.Millisecond, "want %d join frames", want)
}

func TestRoomID(t *testing.T) {
	assert.Equal(t, "wheel:abc", RoomID(models.SessionKindWheel, "abc"))
	assert.Equal(t, "movieBattle:abc", RoomID(models.SessionKindBattle, "abc"))
}

func TestJoin_SendsFrameAfterSettleDelay(t *testing.T) {
	tr := newFakeTransport()
	clock := clockwork.NewFakeClock()
	m := NewManager(tr, clock)
	defer m.Close()

	m.Join("wheel:w1", models.Participant{ID: "u1", Username: "ann"})

	// nothing goes out before the settle delay elapses
	assert.Empty(t, tr.sentNamed("join:room"))

	clock.BlockUntil(1)
	clock.Advance(SettleDelay)
	waitForJoins(t, tr, 1)

	join := tr.sentNamed("join:room")[0]
	raw, err := json.Marshal(join.payload)
	require.NoError(t, err)
	var frame struct {
		RoomID   string             `json:"roomId"`
		UserID   models.Participant `json:"userId"`
		ClientID string             `json:"clientId"`
	}
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "wheel:w1", frame.RoomID)
	assert.Equal(t, "u1", frame.UserID.ID)
	assert.Equal(t, "client-1", frame.ClientID)
}

func TestReconnect_RejoinsExactlyOncePerConnect(t *testing.T) {
	tr := newFakeTransport()
	clock := clockwork.NewFakeClock()
	m := NewManager(tr, clock)
	defer m.Close()

	m.Join("wheel:w1", models.Participant{ID: "u1"})
	clock.BlockUntil(1)
	clock.Advance(SettleDelay)
	waitForJoins(t, tr, 1)

	// two reconnects, one rejoin each
	tr.fireConnect()
	clock.BlockUntil(1)
	clock.Advance(SettleDelay)
	waitForJoins(t, tr, 2)

	tr.fireConnect()
	clock.BlockUntil(1)
	clock.Advance(SettleDelay)
	waitForJoins(t, tr, 3)
}

func TestReconnect_RejoinsEveryTrackedRoom(t *testing.T) {
	tr := newFakeTransport()
	clock := clockwork.NewFakeClock()
	m := NewManager(tr, clock)
	defer m.Close()

	m.Join("wheel:w1", models.Participant{ID: "u1"})
	clock.BlockUntil(1)
	m.Join("movieBattle:b1", models.Participant{ID: "u1"})
	clock.BlockUntil(2)
	clock.Advance(SettleDelay)
	waitForJoins(t, tr, 2)

	tr.fireConnect()
	clock.BlockUntil(2)
	clock.Advance(SettleDelay)
	waitForJoins(t, tr, 4)
	assert.ElementsMatch(t, []string{"wheel:w1", "movieBattle:b1"}, m.Rooms())
}

func TestLeave_SendsFrameAndStopsRejoining(t *testing.T) {
	tr := newFakeTransport()
	clock := clockwork.NewFakeClock()
	m := NewManager(tr, clock)
	defer m.Close()

	m.Join("wheel:w1", models.Participant{ID: "u1"})
	clock.BlockUntil(1)
	clock.Advance(SettleDelay)
	waitForJoins(t, tr, 1)

	m.Leave("wheel:w1")
	require.Len(t, tr.sentNamed("leave:room"), 1)
	assert.Empty(t, m.Rooms())

	tr.fireConnect()
	// no room left to rejoin, so no timer and no join frame
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, tr.sentNamed("join:room"), 1)
}

func TestLeave_BeforeSettleCancelsPendingJoin(t *testing.T) {
	tr := newFakeTransport()
	clock := clockwork.NewFakeClock()
	m := NewManager(tr, clock)
	defer m.Close()

	m.Join("wheel:w1", models.Participant{ID: "u1"})
	clock.BlockUntil(1)
	m.Leave("wheel:w1")
	clock.Advance(SettleDelay)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, tr.sentNamed("join:room"))
}

func TestClose_StopsRejoining(t *testing.T) {
	tr := newFakeTransport()
	clock := clockwork.NewFakeClock()
	m := NewManager(tr, clock)

	m.Join("wheel:w1", models.Participant{ID: "u1"})
	clock.BlockUntil(1)
	m.Close()

	// Join after close is ignored
	m.Join("wheel:w2", models.Participant{ID: "u1"})
	assert.Empty(t, m.Rooms())
}
