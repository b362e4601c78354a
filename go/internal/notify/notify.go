// Package notify carries the synchronizer's observability events out of the
// hot path. Decode failures and reconnect exhaustion are reported here and
// never propagated into session logic.
package notify

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Kind identifies the class of observability event.
type Kind string

const (
	KindDecodeFailed    Kind = "decode_failed"
	KindReconnectFailed Kind = "reconnect_failed"
)

// Event is one observability report.
type Event struct {
	Kind       Kind      `json:"kind"`
	Event      string    `json:"event,omitempty"` // wire event name for decode failures
	RoomID     string    `json:"room_id,omitempty"`
	Attempts   int       `json:"attempts,omitempty"` // reconnect attempts exhausted
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink receives observability events. Implementations must not block the
// caller for long; the transport dispatch goroutine reports through this.
type Sink interface {
	Report(ev Event)
}

// LogSink writes events to the global zerolog logger. It is the default
// sink when nothing else is configured.
type LogSink struct{}

func (LogSink) Report(ev Event) {
	log.Warn().
		Str("kind", string(ev.Kind)).
		Str("event", ev.Event).
		Str("room_id", ev.RoomID).
		Int("attempts", ev.Attempts).
		Str("detail", ev.Detail).
		Msg("sync observability event")
}
