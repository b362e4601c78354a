// Package session owns the authoritative local cache for one live game.
// Events decoded from the wire are applied here, one at a time, in delivery
// order; each applied event publishes exactly one change notification.
package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Riqtu/hohma-sync/go/internal/event"
	"github.com/Riqtu/hohma-sync/go/internal/models"
)

// ChangeKind labels what an applied event did to the session.
type ChangeKind string

const (
	ChangeSnapshot      ChangeKind = "snapshot"
	ChangeItemAdded     ChangeKind = "item_added"
	ChangeItemUpdated   ChangeKind = "item_updated"
	ChangeItemRemoved   ChangeKind = "item_removed"
	ChangeProgress      ChangeKind = "generation_progress"
	ChangeVote          ChangeKind = "vote"
	ChangeRoundComplete ChangeKind = "round_complete"
	ChangeRoster        ChangeKind = "roster"
	ChangeShuffled      ChangeKind = "shuffled"
)

// Change is one state-change notification. Session is a clone; observers
// can hold it without racing the reconciler.
type Change struct {
	Kind             ChangeKind
	Session          *models.Session
	EliminatedItemID string
	Round            int
	WinnerItemID     string
}

const changeBuffer = 64

// Reconciler merges inbound events into the session cache. One Reconciler
// exists per joined room; no two rooms share one.
type Reconciler struct {
	mu        sync.Mutex
	session   *models.Session
	lastRound int

	changes chan Change
}

func NewReconciler() *Reconciler {
	return &Reconciler{changes: make(chan Change, changeBuffer)}
}

// Changes is the stream of state-change notifications, one per applied
// event.
func (r *Reconciler) Changes() <-chan Change { return r.changes }

// Current returns a clone of the session, or nil before the first snapshot.
func (r *Reconciler) Current() *models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Clone()
}

// LastRound is the highest round outcome applied so far.
func (r *Reconciler) LastRound() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRound
}

// ApplySnapshot replaces the whole local state. Used right after every
// (re)join, when the server resends the current entity.
func (r *Reconciler) ApplySnapshot(s models.Session) {
	r.mu.Lock()
	r.session = s.Clone()
	r.lastRound = s.Round
	r.enforceWinnerLocked()
	r.mu.Unlock()
	r.publish(Change{Kind: ChangeSnapshot})
}

// Apply merges one decoded event. It returns the published change, or nil
// when the event was a no-op (duplicate round, unknown item, not yet
// snapshotted).
func (r *Reconciler) Apply(ev event.DomainEvent) *Change {
	switch e := ev.(type) {
	case event.SessionUpdated:
		r.ApplySnapshot(e.Session)
		return &Change{Kind: ChangeSnapshot}
	case event.ItemAdded:
		return r.applyItemAdded(e.Session)
	case event.GenerationStarted:
		return r.applyFull(e.Session, ChangeSnapshot)
	case event.VotingStarted:
		return r.applyFull(e.Session, ChangeSnapshot)
	case event.VoteCast:
		return r.applyFull(e.Session, ChangeVote)
	case event.GenerationProgress:
		return r.applyProgress(e)
	case event.RoundComplete:
		return r.applyRoundComplete(e)
	case event.RosterUpdate:
		return r.applyRoster(e)
	case event.ItemUpserted:
		return r.applyUpsert(e.Item)
	case event.ItemRemoved:
		return r.applyRemove(e.ItemID)
	case event.ItemsSynced:
		return r.applySync(e.Items)
	case event.Shuffled:
		return r.applyShuffle(e.ItemIDs)
	default:
		// presentation-only events (e.g. spin broadcasts) are handled by
		// the facade, not the state cache
		return nil
	}
}

func (r *Reconciler) applyFull(s models.Session, kind ChangeKind) *Change {
	r.mu.Lock()
	r.session = s.Clone()
	if s.Round > r.lastRound {
		r.lastRound = s.Round
	}
	r.enforceWinnerLocked()
	r.mu.Unlock()
	ch := Change{Kind: kind}
	r.publish(ch)
	return &ch
}

// applyItemAdded upserts every item in the broadcast by id. Re-adding an
// existing id updates in place; nothing is ever duplicated.
func (r *Reconciler) applyItemAdded(s models.Session) *Change {
	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		r.ApplySnapshot(s)
		return &Change{Kind: ChangeSnapshot}
	}
	for _, item := range s.Items {
		r.upsertItemLocked(item)
	}
	for _, item := range s.Eliminated {
		r.upsertItemLocked(item)
	}
	r.session.Status = s.Status
	r.session.Remaining = s.Remaining
	if len(s.Roster) > 0 {
		for _, p := range s.Roster {
			r.upsertParticipantLocked(p)
		}
	}
	r.mu.Unlock()
	ch := Change{Kind: ChangeItemAdded}
	r.publish(ch)
	return &ch
}

// applyProgress patches only the named sub-fields of the named item, so a
// title arriving before a poster never wipes fields already applied.
func (r *Reconciler) applyProgress(e event.GenerationProgress) *Change {
	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return nil
	}
	item, ok := r.session.ItemByID(e.ItemID)
	if !ok {
		r.mu.Unlock()
		log.Debug().Str("item_id", e.ItemID).Msg("progress for unknown item, dropped")
		return nil
	}
	item.Phase = e.Phase
	if p := e.Item; p != nil {
		if p.Label != "" {
			item.Label = p.Label
		}
		if p.Poster != "" {
			item.Poster = p.Poster
		}
		if p.Description != "" {
			item.Description = p.Description
		}
		if p.Pattern != "" {
			item.Pattern = p.Pattern
		}
		if p.Genre != "" {
			item.Genre = p.Genre
		}
		if p.Rating != "" {
			item.Rating = p.Rating
		}
		if p.Year != "" {
			item.Year = p.Year
		}
	}
	r.mu.Unlock()
	ch := Change{Kind: ChangeProgress}
	r.publish(ch)
	return &ch
}

// applyRoundComplete applies the authoritative round outcome. Outcomes are
// strictly increasing per session; a replayed or stale round is a no-op,
// never an error.
func (r *Reconciler) applyRoundComplete(e event.RoundComplete) *Change {
	r.mu.Lock()
	if e.Round <= r.lastRound {
		r.mu.Unlock()
		log.Debug().Int("round", e.Round).Int("last", r.lastRound).
			Msg("stale round outcome ignored")
		return nil
	}
	r.lastRound = e.Round

	// The entity inside the event wins over anything computed locally.
	s := e.Session.Clone()
	s.Round = e.Round

	// Make sure the eliminated item actually left the active set, even if
	// the entity was serialized before the flag flipped.
	for i := range s.Items {
		if s.Items[i].ID == e.EliminatedItemID {
			item := s.Items[i]
			item.Eliminated = true
			item.EliminatedAtRound = e.Round
			s.Items = append(s.Items[:i], s.Items[i+1:]...)
			s.Eliminated = append([]models.Item{item}, s.Eliminated...)
			break
		}
	}
	// Most recently eliminated sits at index 0.
	if len(s.Eliminated) == 0 || s.Eliminated[0].ID != e.EliminatedItemID {
		for i := range s.Eliminated {
			if s.Eliminated[i].ID == e.EliminatedItemID {
				item := s.Eliminated[i]
				s.Eliminated = append(s.Eliminated[:i], s.Eliminated[i+1:]...)
				s.Eliminated = append([]models.Item{item}, s.Eliminated...)
				break
			}
		}
	}
	// The entity may have dropped the item entirely; recover it from the
	// previous state so the elimination history stays complete.
	if (len(s.Eliminated) == 0 || s.Eliminated[0].ID != e.EliminatedItemID) && r.session != nil {
		if prev, ok := r.session.ItemByID(e.EliminatedItemID); ok {
			item := *prev
			item.Eliminated = true
			item.EliminatedAtRound = e.Round
			s.Eliminated = append([]models.Item{item}, s.Eliminated...)
		}
	}
	if len(s.Eliminated) > 0 && s.Eliminated[0].ID == e.EliminatedItemID &&
		s.Eliminated[0].EliminatedAtRound == 0 {
		s.Eliminated[0].EliminatedAtRound = e.Round
	}

	winnerID := ""
	if e.Finished && len(s.Items) == 1 {
		s.Items[0].Winner = true
		winnerID = s.Items[0].ID
		if !s.Status.Terminal() {
			s.Status = models.SessionStatusFinished
		}
	}
	r.session = s
	r.enforceWinnerLocked()
	r.mu.Unlock()

	ch := Change{
		Kind:             ChangeRoundComplete,
		EliminatedItemID: e.EliminatedItemID,
		Round:            e.Round,
		WinnerItemID:     winnerID,
	}
	r.publish(ch)
	return &ch
}

func (r *Reconciler) applyRoster(e event.RosterUpdate) *Change {
	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return nil
	}
	present := make(map[string]bool, len(e.Users))
	for _, u := range e.Users {
		u.Online = true
		present[u.ID] = true
		r.upsertParticipantLocked(u)
	}
	// presence is connection-derived: absent ids go offline but keep their
	// roster entry
	for i := range r.session.Roster {
		if !present[r.session.Roster[i].ID] {
			r.session.Roster[i].Online = false
		}
	}
	r.mu.Unlock()
	ch := Change{Kind: ChangeRoster}
	r.publish(ch)
	return &ch
}

func (r *Reconciler) applyUpsert(item models.Item) *Change {
	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return nil
	}
	r.upsertItemLocked(item)
	r.mu.Unlock()
	ch := Change{Kind: ChangeItemUpdated}
	r.publish(ch)
	return &ch
}

func (r *Reconciler) applyRemove(id string) *Change {
	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return nil
	}
	removed := false
	for i := range r.session.Items {
		if r.session.Items[i].ID == id {
			r.session.Items = append(r.session.Items[:i], r.session.Items[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		for i := range r.session.Eliminated {
			if r.session.Eliminated[i].ID == id {
				r.session.Eliminated = append(r.session.Eliminated[:i], r.session.Eliminated[i+1:]...)
				removed = true
				break
			}
		}
	}
	r.mu.Unlock()
	if !removed {
		return nil
	}
	ch := Change{Kind: ChangeItemRemoved}
	r.publish(ch)
	return &ch
}

func (r *Reconciler) applySync(items []models.Item) *Change {
	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return nil
	}
	r.session.Items = nil
	r.session.Eliminated = nil
	for _, item := range items {
		if item.Eliminated {
			r.session.Eliminated = append(r.session.Eliminated, item)
		} else {
			r.session.Items = append(r.session.Items, item)
		}
	}
	r.enforceWinnerLocked()
	r.mu.Unlock()
	ch := Change{Kind: ChangeSnapshot}
	r.publish(ch)
	return &ch
}

func (r *Reconciler) applyShuffle(ids []string) *Change {
	r.mu.Lock()
	if r.session == nil {
		r.mu.Unlock()
		return nil
	}
	byID := make(map[string]models.Item, len(r.session.Items))
	for _, item := range r.session.Items {
		byID[item.ID] = item
	}
	reordered := make([]models.Item, 0, len(r.session.Items))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			reordered = append(reordered, item)
			delete(byID, id)
		}
	}
	// ids the shuffle did not mention keep their relative order at the end
	for _, item := range r.session.Items {
		if _, left := byID[item.ID]; left {
			reordered = append(reordered, item)
		}
	}
	r.session.Items = reordered
	r.mu.Unlock()
	ch := Change{Kind: ChangeShuffled}
	r.publish(ch)
	return &ch
}

// upsertItemLocked requires r.mu held. Keyed by id: the item is updated in
// place in whichever collection it lives in, moving collections when its
// eliminated flag changed.
func (r *Reconciler) upsertItemLocked(item models.Item) {
	for i := range r.session.Items {
		if r.session.Items[i].ID == item.ID {
			if item.Eliminated {
				r.session.Items = append(r.session.Items[:i], r.session.Items[i+1:]...)
				r.session.Eliminated = append([]models.Item{item}, r.session.Eliminated...)
			} else {
				r.session.Items[i] = item
			}
			return
		}
	}
	for i := range r.session.Eliminated {
		if r.session.Eliminated[i].ID == item.ID {
			if item.Eliminated {
				r.session.Eliminated[i] = item
			} else {
				r.session.Eliminated = append(r.session.Eliminated[:i], r.session.Eliminated[i+1:]...)
				r.session.Items = append(r.session.Items, item)
			}
			return
		}
	}
	if item.Eliminated {
		r.session.Eliminated = append([]models.Item{item}, r.session.Eliminated...)
	} else {
		r.session.Items = append(r.session.Items, item)
	}
}

func (r *Reconciler) upsertParticipantLocked(p models.Participant) {
	for i := range r.session.Roster {
		if r.session.Roster[i].ID == p.ID {
			r.session.Roster[i] = p
			return
		}
	}
	r.session.Roster = append(r.session.Roster, p)
}

// enforceWinnerLocked keeps the at-most-one-winner invariant: the winner
// flag survives only on the single remaining active item.
func (r *Reconciler) enforceWinnerLocked() {
	if r.session == nil {
		return
	}
	if len(r.session.Items) == 1 && len(r.session.Eliminated) > 0 &&
		(r.session.Status.Terminal() || r.session.Items[0].Winner) {
		r.session.Items[0].Winner = true
	} else {
		for i := range r.session.Items {
			r.session.Items[i].Winner = false
		}
	}
	for i := range r.session.Eliminated {
		r.session.Eliminated[i].Winner = false
	}
}

func (r *Reconciler) publish(ch Change) {
	r.mu.Lock()
	ch.Session = r.session.Clone()
	r.mu.Unlock()
	select {
	case r.changes <- ch:
	default:
		log.Warn().Str("kind", string(ch.Kind)).Msg("change buffer full, dropping notification")
	}
}
