// Package event converts raw wire payloads into typed domain events. The
// wire is loosely typed and inconsistent across server generations, so every
// decode here is defensive: a bad optional field is absorbed, a missing
// required field fails only the one event it belongs to.
package event

import (
	"fmt"

	"github.com/Riqtu/hohma-sync/go/internal/models"
)

// Wire event names. Outbound names are emitted by the room manager and the
// session facade; the rest arrive as room broadcasts.
const (
	NameJoinRoom  = "join:room"
	NameLeaveRoom = "leave:room"

	NameSessionUpdate      = "session:update"
	NameItemAdded          = "session:itemAdded"
	NameGenerationStarted  = "generation:started"
	NameGenerationProgress = "generation:progress"
	NameVotingStarted      = "voting:started"
	NameVoteCast           = "vote:cast"
	NameRoundComplete      = "round:complete"
	NameRoomUsers          = "room:users"

	NameWheelSpin      = "wheel:spin"
	NameSectorsShuffle = "sectors:shuffle"
	NameSyncSectors    = "sync:sectors"
	NameRequestSectors = "request:sectors"
	NameCurrentSectors = "current:sectors"
	NameSectorCreated  = "sector:created"
	NameSectorUpdated  = "sector:updated"
	NameSectorRemoved  = "sector:removed"
)

// DomainEvent is the closed set of typed events the reconciler applies.
type DomainEvent interface{ isDomainEvent() }

// SessionUpdated carries a full authoritative session entity.
type SessionUpdated struct {
	Session models.Session
}

// ItemAdded is a full-session broadcast after an item was added.
type ItemAdded struct {
	Session models.Session
}

// GenerationStarted is a full-session broadcast when card generation kicks
// off for a battle.
type GenerationStarted struct {
	Session models.Session
}

// VotingStarted is a full-session broadcast when a voting round opens.
type VotingStarted struct {
	Session models.Session
}

// VoteCast is a full-session broadcast after one participant voted.
type VoteCast struct {
	Session models.Session
}

// GenerationProgress patches a single item's generation phase, possibly
// carrying a partial item with whichever fields are ready so far.
type GenerationProgress struct {
	ItemID string
	Phase  models.GenerationPhase
	Item   *models.Item
}

// RoundComplete is the authoritative round outcome.
type RoundComplete struct {
	Session          models.Session
	EliminatedItemID string
	Round            int
	Finished         bool
}

// RosterUpdate replaces the room roster.
type RosterUpdate struct {
	Users []models.Participant
}

// ItemUpserted carries one created or updated item.
type ItemUpserted struct {
	Item models.Item
}

// ItemRemoved deletes one item by id.
type ItemRemoved struct {
	ItemID string
}

// ItemsSynced replaces the full item list (wheel sector sync).
type ItemsSynced struct {
	Items []models.Item
}

// SpinRequested is another client's spin broadcast so every room member
// animates the same outcome.
type SpinRequested struct {
	ClientID     string
	WinningIndex int
	Rotation     float64
}

// Shuffled reorders the active items.
type Shuffled struct {
	ItemIDs []string
}

func (SessionUpdated) isDomainEvent()     {}
func (ItemAdded) isDomainEvent()          {}
func (GenerationStarted) isDomainEvent()  {}
func (VotingStarted) isDomainEvent()      {}
func (VoteCast) isDomainEvent()           {}
func (GenerationProgress) isDomainEvent() {}
func (RoundComplete) isDomainEvent()      {}
func (RosterUpdate) isDomainEvent()       {}
func (ItemUpserted) isDomainEvent()       {}
func (ItemRemoved) isDomainEvent()        {}
func (ItemsSynced) isDomainEvent()        {}
func (SpinRequested) isDomainEvent()      {}
func (Shuffled) isDomainEvent()           {}

// DecodeError reports why one event could not be decoded. It aborts only
// that event's application; callers log and carry on.
type DecodeError struct {
	Event string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %s: field %s: %v", e.Event, e.Field, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
