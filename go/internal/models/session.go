package models

import "time"

// SessionKind distinguishes the two live game variants sharing the sync
// protocol.
type SessionKind string

const (
	SessionKindWheel  SessionKind = "WHEEL"
	SessionKindBattle SessionKind = "BATTLE"
)

// SessionStatus defines the lifecycle status of a game session. The server
// owns all transitions; the client only ever reflects what it was told.
type SessionStatus string

const (
	SessionStatusCreated    SessionStatus = "CREATED"
	SessionStatusCollecting SessionStatus = "COLLECTING"
	SessionStatusGenerating SessionStatus = "GENERATING"
	SessionStatusVoting     SessionStatus = "VOTING"
	SessionStatusActive     SessionStatus = "ACTIVE"
	SessionStatusInactive   SessionStatus = "INACTIVE"
	SessionStatusFinished   SessionStatus = "FINISHED"
	SessionStatusCancelled  SessionStatus = "CANCELLED"
)

// ParseSessionStatus maps a wire status string, including the legacy wheel
// spellings, onto a SessionStatus. Unknown values fall back to ACTIVE so a
// newer server cannot wedge an older client.
func ParseSessionStatus(raw string) SessionStatus {
	switch SessionStatus(raw) {
	case SessionStatusCreated, SessionStatusCollecting, SessionStatusGenerating,
		SessionStatusVoting, SessionStatusActive, SessionStatusInactive,
		SessionStatusFinished, SessionStatusCancelled:
		return SessionStatus(raw)
	}
	switch raw {
	case "COMPLETED": // legacy wheel terminal status
		return SessionStatusFinished
	case "WAITING": // legacy battle pre-start status
		return SessionStatusCollecting
	}
	return SessionStatusActive
}

// Terminal reports whether the session can no longer change.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusFinished || s == SessionStatusCancelled
}

// Session is the authoritative state of one live game, as last confirmed by
// the server. Items holds the still-active items in display order;
// Eliminated holds eliminated items most-recent-first, which is itself the
// order they are displayed in.
type Session struct {
	ID         string        `json:"id"`
	Kind       SessionKind   `json:"kind"`
	Name       string        `json:"name"`
	Status     SessionStatus `json:"status"`
	Round      int           `json:"currentRound"`
	Remaining  int           `json:"itemsRemaining"`
	Items      []Item        `json:"items"`
	Eliminated []Item        `json:"eliminated"`
	Roster     []Participant `json:"participants"`
	Wagers     []Wager       `json:"wagers,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy so observers can never see a torn mutation.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Items = append([]Item(nil), s.Items...)
	out.Eliminated = append([]Item(nil), s.Eliminated...)
	out.Roster = append([]Participant(nil), s.Roster...)
	out.Wagers = append([]Wager(nil), s.Wagers...)
	return &out
}

// ItemByID looks up an item across both the active and eliminated sets.
func (s *Session) ItemByID(id string) (*Item, bool) {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return &s.Items[i], true
		}
	}
	for i := range s.Eliminated {
		if s.Eliminated[i].ID == id {
			return &s.Eliminated[i], true
		}
	}
	return nil, false
}
