package transport

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riqtu/hohma-sync/go/internal/simserver"
)

// helper: receive within a timeout so tests never hang
func recvString(t *testing.T, ch <-chan string, within time.Duration) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(within):
		t.Fatalf("timed out waiting for value")
		return "" // unreachable
	}
}

func recvRaw(t *testing.T, ch <-chan json.RawMessage, within time.Duration) json.RawMessage {
	t.Helper()
	select {
	case raw := <-ch:
		return raw
	case <-time.After(within):
		t.Fatalf("timed out waiting for payload")
		return nil // unreachable
	}
}

func startSim(t *testing.T) (*simserver.Server, *httptest.Server) {
	t.Helper()
	srv := simserver.NewServer(simserver.DefaultConfig())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Start(ctx)
	return srv, ts
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.Backoff = Backoff{Min: 20 * time.Millisecond, Max: 100 * time.Millisecond}
	cfg.MaxReconnectAttempts = 5
	cfg.DialTimeout = 2 * time.Second
	return cfg
}

func TestClient_ConnectLifecycle(t *testing.T) {
	_, ts := startSim(t)

	c := NewClient(testConfig(ts.URL), nil, nil)
	defer c.Close()

	connected := make(chan string, 4)
	c.On(EventConnect, func(json.RawMessage) { connected <- "connect" })

	states := make(chan State, 8)
	c.OnStateChange(func(s State) { states <- s })

	assert.Equal(t, StateDisconnected, c.State())
	c.Connect()

	recvString(t, connected, 2*time.Second)
	assert.Equal(t, StateConnected, c.State())

	// the state observer saw the full transition
	seen := []State{}
	for len(seen) < 2 {
		select {
		case s := <-states:
			seen = append(seen, s)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for state transitions, saw %v", seen)
		}
	}
	assert.Equal(t, []State{StateConnecting, StateConnected}, seen[:2])
}

func TestClient_EmitJoinAndReceiveBroadcast(t *testing.T) {
	srv, ts := startSim(t)

	c := NewClient(testConfig(ts.URL), nil, nil)
	defer c.Close()

	connected := make(chan string, 1)
	c.On(EventConnect, func(json.RawMessage) { connected <- "connect" })

	payloads := make(chan json.RawMessage, 4)
	c.On("session:update", func(p json.RawMessage) { payloads <- p })

	c.Connect()
	recvString(t, connected, 2*time.Second)

	require.NoError(t, c.Emit("join:room", map[string]any{
		"roomId":   "wheel:w1",
		"clientId": c.ID(),
	}))

	require.Eventually(t, func() bool { return srv.RoomSize("wheel:w1") == 1 },
		2*time.Second, 10*time.Millisecond)

	srv.Broadcast("wheel:w1", "session:update", map[string]string{"id": "w1"})
	raw := recvRaw(t, payloads, 2*time.Second)
	assert.JSONEq(t, `{"id":"w1"}`, string(raw))
}

func TestClient_EmitWhileDisconnected(t *testing.T) {
	c := NewClient(testConfig("http://127.0.0.1:1"), nil, nil)
	defer c.Close()
	assert.ErrorIs(t, c.Emit("join:room", nil), ErrNotConnected)
	assert.ErrorIs(t, c.EmitToRoom("wheel:spin", "wheel:w1", nil), ErrNotConnected)
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	_, ts := startSim(t)

	c := NewClient(testConfig(ts.URL), nil, nil)
	defer c.Close()

	connects := make(chan string, 4)
	c.On(EventConnect, func(json.RawMessage) { connects <- "connect" })
	disconnects := make(chan string, 4)
	c.On(EventDisconnect, func(json.RawMessage) { disconnects <- "disconnect" })

	c.Connect()
	recvString(t, connects, 2*time.Second)

	// kill the server side of the socket; the client must come back alone
	ts.CloseClientConnections()

	recvString(t, disconnects, 2*time.Second)
	recvString(t, connects, 5*time.Second)
	assert.Equal(t, StateConnected, c.State())
}

func TestClient_ManualDisconnectDoesNotReconnect(t *testing.T) {
	_, ts := startSim(t)

	c := NewClient(testConfig(ts.URL), nil, nil)
	defer c.Close()

	connects := make(chan string, 4)
	c.On(EventConnect, func(json.RawMessage) { connects <- "connect" })

	c.Connect()
	recvString(t, connects, 2*time.Second)

	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())

	select {
	case <-connects:
		t.Fatal("client reconnected after a manual disconnect")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestClient_SubscriptionCancel(t *testing.T) {
	srv, ts := startSim(t)

	c := NewClient(testConfig(ts.URL), nil, nil)
	defer c.Close()

	connected := make(chan string, 1)
	c.On(EventConnect, func(json.RawMessage) { connected <- "connect" })

	payloads := make(chan json.RawMessage, 4)
	sub := c.On("session:update", func(p json.RawMessage) { payloads <- p })

	c.Connect()
	recvString(t, connected, 2*time.Second)
	require.NoError(t, c.Emit("join:room", map[string]any{"roomId": "r1", "clientId": c.ID()}))
	require.Eventually(t, func() bool { return srv.RoomSize("r1") == 1 },
		2*time.Second, 10*time.Millisecond)

	sub.Cancel()
	srv.Broadcast("r1", "session:update", map[string]string{"id": "w1"})

	select {
	case <-payloads:
		t.Fatal("cancelled handler still invoked")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSocketURL(t *testing.T) {
	cases := []struct {
		in, want string
		ok       bool
	}{
		{"http://host:3001", "ws://host:3001/socket.io/?EIO=4&transport=websocket", true},
		{"https://host", "wss://host/socket.io/?EIO=4&transport=websocket", true},
		{"ws://host/", "ws://host/socket.io/?EIO=4&transport=websocket", true},
		{"ftp://host", "", false},
	}
	for _, tc := range cases {
		got, err := socketURL(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
