// Package gamesession ties the transport, room membership, event decoding
// and state reconciliation together for one live game session. It is the
// surface application code talks to.
package gamesession

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Riqtu/hohma-sync/go/internal/apiclient"
	"github.com/Riqtu/hohma-sync/go/internal/event"
	"github.com/Riqtu/hohma-sync/go/internal/identity"
	"github.com/Riqtu/hohma-sync/go/internal/models"
	"github.com/Riqtu/hohma-sync/go/internal/notify"
	"github.com/Riqtu/hohma-sync/go/internal/room"
	"github.com/Riqtu/hohma-sync/go/internal/session"
	"github.com/Riqtu/hohma-sync/go/internal/spin"
	"github.com/Riqtu/hohma-sync/go/internal/transport"
)

var (
	ErrNoAPI     = errors.New("gamesession: no api client configured")
	ErrNoSession = errors.New("gamesession: no session state yet")
)

// Transport is what the facade needs from the socket client.
type Transport interface {
	room.Transport
	EmitToRoom(event, roomID string, payload any) error
}

// Config describes one session to attach to.
type Config struct {
	Kind      models.SessionKind
	SessionID string
	Identity  identity.Provider
	API       *apiclient.Client // optional, mutations degrade without it
	Sink      notify.Sink
	Clock     clockwork.Clock
	Engine    *spin.Engine
}

// inboundNames lists every wire event the facade decodes.
var inboundNames = []string{
	event.NameSessionUpdate,
	event.NameItemAdded,
	event.NameGenerationStarted,
	event.NameGenerationProgress,
	event.NameVotingStarted,
	event.NameVoteCast,
	event.NameRoundComplete,
	event.NameRoomUsers,
	event.NameWheelSpin,
	event.NameSectorsShuffle,
	event.NameSyncSectors,
	event.NameCurrentSectors,
	event.NameSectorCreated,
	event.NameSectorUpdated,
	event.NameSectorRemoved,
}

// Session is the live handle for one room. All state mutation happens on
// the transport's dispatch goroutine; reads go through the reconciler.
type Session struct {
	tr     Transport
	rooms  *room.Manager
	rec    *session.Reconciler
	engine *spin.Engine
	api    *apiclient.Client
	sink   notify.Sink
	clock  clockwork.Clock
	ident  identity.Provider

	kind      models.SessionKind
	sessionID string
	roomID    string

	mu       sync.Mutex
	rotation float64
	started  bool
	closed   bool

	subs  []transport.Subscription
	spins chan event.SpinRequested
}

func New(tr Transport, cfg Config) *Session {
	if cfg.Sink == nil {
		cfg.Sink = notify.LogSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Engine == nil {
		cfg.Engine = spin.NewEngine()
	}
	return &Session{
		tr:        tr,
		rooms:     room.NewManager(tr, cfg.Clock),
		rec:       session.NewReconciler(),
		engine:    cfg.Engine,
		api:       cfg.API,
		sink:      cfg.Sink,
		clock:     cfg.Clock,
		ident:     cfg.Identity,
		kind:      cfg.Kind,
		sessionID: cfg.SessionID,
		roomID:    room.RoomID(cfg.Kind, cfg.SessionID),
		spins:     make(chan event.SpinRequested, 8),
	}
}

// Start registers the event handlers and joins the room. Idempotent.
func (s *Session) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	for _, name := range inboundNames {
		name := name
		s.subs = append(s.subs, s.tr.On(name, func(payload json.RawMessage) {
			s.handle(name, payload)
		}))
	}
	// every (re)connect asks for a fresh sector sync once the join frame
	// has had time to land
	s.subs = append(s.subs, s.tr.On(transport.EventConnect, func(json.RawMessage) {
		s.scheduleSync()
	}))

	var user models.Participant
	if s.ident != nil {
		user = s.ident.CurrentUser()
	}
	s.rooms.Join(s.roomID, user)
}

// Close detaches handlers and leaves the room best-effort.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.rooms.Leave(s.roomID)
	s.rooms.Close()
}

// RoomID returns the room this session lives in.
func (s *Session) RoomID() string { return s.roomID }

// Current returns a deep copy of the reconciled session, or nil before the
// first snapshot.
func (s *Session) Current() *models.Session { return s.rec.Current() }

// Changes streams reconciler state changes.
func (s *Session) Changes() <-chan session.Change { return s.rec.Changes() }

// Spins streams other clients' spin broadcasts for animation. Our own
// broadcast echo is filtered out.
func (s *Session) Spins() <-chan event.SpinRequested { return s.spins }

func (s *Session) handle(name string, payload json.RawMessage) {
	ev, err := event.Decode(name, payload)
	if err != nil {
		s.sink.Report(notify.Event{
			Kind:       notify.KindDecodeFailed,
			Event:      name,
			RoomID:     s.roomID,
			Detail:     err.Error(),
			OccurredAt: s.clock.Now(),
		})
		return
	}
	if ev == nil {
		return
	}

	if sp, ok := ev.(event.SpinRequested); ok {
		if sp.ClientID == s.tr.ID() {
			return
		}
		s.mu.Lock()
		s.rotation = sp.Rotation
		s.mu.Unlock()
		select {
		case s.spins <- sp:
		default:
			log.Warn().Str("room_id", s.roomID).Msg("spin channel full, dropping broadcast")
		}
		return
	}

	s.rec.Apply(ev)
}

// Spin runs one client-local elimination: pick the outcome, broadcast it to
// the room, then apply it to local state without waiting for the server's
// round confirmation. The confirmation replays as a no-op.
func (s *Session) Spin(ctx context.Context) (spin.Pick, spin.Outcome, error) {
	cur := s.rec.Current()
	if cur == nil {
		return spin.Pick{}, spin.Outcome{}, ErrNoSession
	}

	s.mu.Lock()
	rotation := s.rotation
	s.mu.Unlock()

	pick, err := s.engine.PickElimination(len(cur.Items), rotation)
	if err != nil {
		return spin.Pick{}, spin.Outcome{}, err
	}

	broadcast := map[string]any{
		"clientId":     s.tr.ID(),
		"winningIndex": pick.Index,
		"rotation":     pick.Rotation,
		"sectors":      spin.ItemDicts(cur.Items),
	}
	if err := s.tr.EmitToRoom(event.NameWheelSpin, s.roomID, broadcast); err != nil {
		return spin.Pick{}, spin.Outcome{}, err
	}

	active, eliminated, outcome, err := spin.ApplyElimination(pick.Index, cur.Items, cur.Eliminated)
	if err != nil {
		return spin.Pick{}, spin.Outcome{}, err
	}

	next := cur.Clone()
	next.Items = active
	next.Eliminated = eliminated
	next.Remaining = len(active)
	s.rec.Apply(event.RoundComplete{
		Session:          *next,
		EliminatedItemID: outcome.Eliminated.ID,
		Round:            cur.Round + 1,
		Finished:         outcome.Completed,
	})

	s.mu.Lock()
	s.rotation = pick.Rotation
	s.mu.Unlock()

	if outcome.Completed && outcome.Winner != nil && s.api != nil {
		if err := s.api.PayoutWagers(ctx, s.sessionID, outcome.Winner.ID); err != nil {
			log.Error().Err(err).Str("session_id", s.sessionID).Msg("wager payout failed")
		}
	}
	return pick, outcome, nil
}

// Shuffle broadcasts and applies a new item order.
func (s *Session) Shuffle(itemIDs []string) error {
	if err := s.tr.EmitToRoom(event.NameSectorsShuffle, s.roomID, map[string]any{"order": itemIDs}); err != nil {
		return err
	}
	s.rec.Apply(event.Shuffled{ItemIDs: itemIDs})
	return nil
}

// Vote broadcasts this user's vote for an item.
func (s *Session) Vote(itemID string) error {
	var userID string
	if s.ident != nil {
		userID = s.ident.CurrentUser().ID
	}
	return s.tr.EmitToRoom(event.NameVoteCast, s.roomID, map[string]any{
		"sessionId": s.sessionID,
		"itemId":    itemID,
		"userId":    userID,
	})
}

// RequestSync asks the server for the authoritative item list.
func (s *Session) RequestSync() error {
	return s.tr.Emit(event.NameRequestSectors, map[string]any{"roomId": s.roomID})
}

// AddItem creates the item over the REST API. The socket broadcast brings
// the stored row back into local state.
func (s *Session) AddItem(ctx context.Context, item models.Item) (*models.Item, error) {
	if s.api == nil {
		return nil, ErrNoAPI
	}
	return s.api.CreateItem(ctx, s.sessionID, item)
}

// UpdateItem replaces the stored item over the REST API.
func (s *Session) UpdateItem(ctx context.Context, item models.Item) (*models.Item, error) {
	if s.api == nil {
		return nil, ErrNoAPI
	}
	return s.api.UpdateItem(ctx, item)
}

// DeleteItem removes the item over the REST API.
func (s *Session) DeleteItem(ctx context.Context, itemID string) error {
	if s.api == nil {
		return ErrNoAPI
	}
	return s.api.DeleteItem(ctx, itemID)
}

// PlaceWager stakes coins on an item over the REST API.
func (s *Session) PlaceWager(ctx context.Context, itemID string, amount int) (*models.Wager, error) {
	if s.api == nil {
		return nil, ErrNoAPI
	}
	var userID string
	if s.ident != nil {
		userID = s.ident.CurrentUser().ID
	}
	return s.api.PlaceWager(ctx, models.Wager{
		SessionID: s.sessionID,
		ItemID:    itemID,
		UserID:    userID,
		Amount:    amount,
	})
}

func (s *Session) scheduleSync() {
	timer := s.clock.NewTimer(2 * room.SettleDelay)
	go func() {
		<-timer.Chan()
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		if err := s.RequestSync(); err != nil {
			log.Debug().Err(err).Str("room_id", s.roomID).Msg("sector sync request not sent")
		}
	}()
}
