package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/Riqtu/hohma-sync/go/internal/models"
)

// Decode turns the raw payload of a known wire event into a DomainEvent.
// The returned error is always a *DecodeError.
func Decode(name string, payload json.RawMessage) (DomainEvent, error) {
	switch name {
	case NameSessionUpdate:
		s, err := decodeSessionEnvelope(name, payload)
		if err != nil {
			return nil, err
		}
		return SessionUpdated{Session: s}, nil
	case NameItemAdded:
		s, err := decodeSessionEnvelope(name, payload)
		if err != nil {
			return nil, err
		}
		return ItemAdded{Session: s}, nil
	case NameGenerationStarted:
		s, err := decodeSessionEnvelope(name, payload)
		if err != nil {
			return nil, err
		}
		return GenerationStarted{Session: s}, nil
	case NameVotingStarted:
		s, err := decodeSessionEnvelope(name, payload)
		if err != nil {
			return nil, err
		}
		return VotingStarted{Session: s}, nil
	case NameVoteCast:
		s, err := decodeSessionEnvelope(name, payload)
		if err != nil {
			return nil, err
		}
		return VoteCast{Session: s}, nil
	case NameGenerationProgress:
		return decodeGenerationProgress(payload)
	case NameRoundComplete:
		return decodeRoundComplete(payload)
	case NameRoomUsers:
		return decodeRoster(payload)
	case NameWheelSpin:
		return decodeSpin(payload)
	case NameSectorsShuffle:
		return decodeShuffle(payload)
	case NameSyncSectors, NameCurrentSectors:
		return decodeItemsSync(name, payload)
	case NameSectorCreated, NameSectorUpdated:
		return decodeItemUpsert(name, payload)
	case NameSectorRemoved:
		return decodeItemRemoved(payload)
	default:
		return nil, &DecodeError{Event: name, Err: errors.New("unknown event")}
	}
}

// Wire shapes. Every optional field goes through the flex types so type
// drift on one field never aborts the event.

type wireSession struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Name         string            `json:"name"`
	Status       string            `json:"status"`
	Round        int               `json:"currentRound"`
	Remaining    int               `json:"itemsRemaining"`
	Private      models.FlexBool   `json:"isPrivate"`
	StartedAt    models.FlexString `json:"startedAt"`
	FinishedAt   models.FlexString `json:"finishedAt"`
	Items        []wireItem        `json:"items"`
	Movies       []wireItem        `json:"movies"`
	Sectors      []wireItem        `json:"sectors"`
	Participants []wireParticipant `json:"participants"`
	Wagers       []wireWager       `json:"bets"`
}

type wireItem struct {
	ID          string            `json:"id"`
	SessionID   models.FlexString `json:"sessionId"`
	WheelID     models.FlexString `json:"wheelId"`
	BattleID    models.FlexString `json:"movieBattleId"`
	Label       models.FlexString `json:"label"`
	Title       models.FlexString `json:"title"`
	Name        models.FlexString `json:"name"`
	Eliminated  models.FlexBool   `json:"eliminated"`
	Winner      models.FlexBool   `json:"winner"`
	Description models.FlexString `json:"description"`
	Pattern     models.FlexString `json:"pattern"`
	Poster      models.FlexString `json:"poster"`
	Genre       models.FlexString `json:"genre"`
	Rating      models.FlexString `json:"rating"`
	Year        models.FlexString `json:"year"`
	LabelColor  models.FlexString `json:"labelColor"`
	LabelHidden models.FlexBool   `json:"labelHidden"`
	Status      models.FlexString `json:"generationStatus"`
	ElimRound   int               `json:"eliminatedAtRound"`
	FinalPos    int               `json:"finalPosition"`
	OwnerID     models.FlexString `json:"userId"`
}

type wireParticipant struct {
	ID        string            `json:"id"`
	UserID    models.FlexString `json:"userId"`
	Username  models.FlexString `json:"username"`
	FirstName models.FlexString `json:"firstName"`
	LastName  models.FlexString `json:"lastName"`
	AvatarURL models.FlexString `json:"avatarUrl"`
	Coins     int               `json:"coins"`
	Role      models.FlexString `json:"role"`
	Online    models.FlexBool   `json:"online"`
}

type wireWager struct {
	ID        string            `json:"id"`
	SessionID models.FlexString `json:"wheelId"`
	ItemID    models.FlexString `json:"sectorId"`
	UserID    models.FlexString `json:"userId"`
	Amount    int               `json:"amount"`
	PaidOut   models.FlexBool   `json:"paidOut"`
}

func (w wireItem) toItem() (models.Item, error) {
	if w.ID == "" {
		return models.Item{}, errors.New("missing id")
	}
	sessionID := w.SessionID.String()
	if sessionID == "" {
		sessionID = w.WheelID.String()
	}
	if sessionID == "" {
		sessionID = w.BattleID.String()
	}
	label := w.Label.String()
	if label == "" {
		label = w.Title.String()
	}
	phase := models.GenerationPhase("")
	if raw := w.Status.String(); raw != "" {
		if p, ok := models.ParseGenerationPhase(raw); ok {
			phase = p
		}
	}
	eliminated := w.Eliminated.Bool() || w.ElimRound > 0
	return models.Item{
		ID:                w.ID,
		SessionID:         sessionID,
		Label:             label,
		Name:              w.Name.String(),
		Eliminated:        eliminated,
		Winner:            w.Winner.Bool() || w.FinalPos == 1,
		Description:       w.Description.String(),
		Pattern:           w.Pattern.String(),
		Poster:            w.Poster.String(),
		Genre:             w.Genre.String(),
		Rating:            w.Rating.String(),
		Year:              w.Year.String(),
		LabelColor:        w.LabelColor.String(),
		LabelHidden:       w.LabelHidden.Bool(),
		Phase:             phase,
		EliminatedAtRound: w.ElimRound,
		FinalPosition:     w.FinalPos,
		OwnerID:           w.OwnerID.String(),
	}, nil
}

func (w wireParticipant) toParticipant() models.Participant {
	id := w.ID
	if uid := w.UserID.String(); uid != "" {
		id = uid
	}
	return models.Participant{
		ID:        id,
		Username:  w.Username.String(),
		FirstName: w.FirstName.String(),
		LastName:  w.LastName.String(),
		AvatarURL: w.AvatarURL.String(),
		Coins:     w.Coins,
		Role:      w.Role.String(),
		Online:    w.Online.Bool(),
	}
}

func (w wireSession) toSession(name string) (models.Session, error) {
	if w.ID == "" {
		return models.Session{}, &DecodeError{Event: name, Field: "session.id", Err: errors.New("missing")}
	}
	items := w.Items
	kind := models.SessionKind(w.Kind)
	if len(items) == 0 && len(w.Movies) > 0 {
		items = w.Movies
		kind = models.SessionKindBattle
	}
	if len(items) == 0 && len(w.Sectors) > 0 {
		items = w.Sectors
		kind = models.SessionKindWheel
	}
	if kind != models.SessionKindWheel && kind != models.SessionKindBattle {
		kind = models.SessionKindWheel
	}

	s := models.Session{
		ID:        w.ID,
		Kind:      kind,
		Name:      w.Name,
		Status:    models.ParseSessionStatus(w.Status),
		Round:     w.Round,
		Remaining: w.Remaining,
	}
	for _, wi := range items {
		item, err := wi.toItem()
		if err != nil {
			// one broken item never sinks the whole snapshot
			continue
		}
		if item.Eliminated {
			s.Eliminated = append(s.Eliminated, item)
		} else {
			s.Items = append(s.Items, item)
		}
	}
	// Eliminated is displayed most-recent-first; restore that order when the
	// wire carries elimination rounds.
	sort.SliceStable(s.Eliminated, func(i, j int) bool {
		return s.Eliminated[i].EliminatedAtRound > s.Eliminated[j].EliminatedAtRound
	})
	for _, wp := range w.Participants {
		s.Roster = append(s.Roster, wp.toParticipant())
	}
	for _, ww := range w.Wagers {
		s.Wagers = append(s.Wagers, models.Wager{
			ID:        ww.ID,
			SessionID: ww.SessionID.String(),
			ItemID:    ww.ItemID.String(),
			UserID:    ww.UserID.String(),
			Amount:    ww.Amount,
			PaidOut:   ww.PaidOut.Bool(),
		})
	}
	return s, nil
}

// decodeSessionEnvelope accepts {"session": {...}} as well as the legacy
// {"battle": {...}} / {"wheel": {...}} envelopes and, failing those, the
// bare entity itself.
func decodeSessionEnvelope(name string, payload json.RawMessage) (models.Session, error) {
	var env struct {
		Session json.RawMessage `json:"session"`
		Battle  json.RawMessage `json:"battle"`
		Wheel   json.RawMessage `json:"wheel"`
	}
	entity := payload
	if err := json.Unmarshal(payload, &env); err == nil {
		switch {
		case len(env.Session) > 0:
			entity = env.Session
		case len(env.Battle) > 0:
			entity = env.Battle
		case len(env.Wheel) > 0:
			entity = env.Wheel
		}
	}
	var ws wireSession
	if err := json.Unmarshal(entity, &ws); err != nil {
		return models.Session{}, &DecodeError{Event: name, Field: "session", Err: err}
	}
	return ws.toSession(name)
}

func decodeGenerationProgress(payload json.RawMessage) (DomainEvent, error) {
	var raw struct {
		ItemID         models.FlexString `json:"itemId"`
		MovieCardID    models.FlexString `json:"movieCardId"`
		Status         models.FlexString `json:"status"`
		HasTitle       models.FlexBool   `json:"hasTitle"`
		HasPoster      models.FlexBool   `json:"hasPoster"`
		HasDescription models.FlexBool   `json:"hasDescription"`
		Item           *wireItem         `json:"item"`
		MovieCard      *wireItem         `json:"movieCard"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &DecodeError{Event: NameGenerationProgress, Err: err}
	}
	itemID := raw.ItemID.String()
	if itemID == "" {
		itemID = raw.MovieCardID.String()
	}
	if itemID == "" {
		return nil, &DecodeError{Event: NameGenerationProgress, Field: "itemId", Err: errors.New("missing")}
	}

	phase, ok := models.ParseGenerationPhase(raw.Status.String())
	if !ok {
		phase = models.InferGenerationPhase(
			raw.HasTitle.Bool(), raw.HasPoster.Bool(), raw.HasDescription.Bool())
	}

	ev := GenerationProgress{ItemID: itemID, Phase: phase}
	wi := raw.Item
	if wi == nil {
		wi = raw.MovieCard
	}
	if wi != nil {
		if item, err := wi.toItem(); err == nil {
			ev.Item = &item
		}
		// a partial item that fails to decode is dropped, not fatal
	}
	return ev, nil
}

// decodeRoundComplete handles both wire forms of the outcome event: a flat
// object, or a two-element array of [entity, metadata].
func decodeRoundComplete(payload json.RawMessage) (DomainEvent, error) {
	type meta struct {
		EliminatedItemID  models.FlexString `json:"eliminatedItemId"`
		EliminatedMovieID models.FlexString `json:"eliminatedMovieId"`
		Round             int               `json:"roundNumber"`
		Finished          models.FlexBool   `json:"isFinished"`
	}

	var entity json.RawMessage
	var m meta

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, &DecodeError{Event: NameRoundComplete, Err: err}
		}
		if len(elems) < 2 {
			return nil, &DecodeError{Event: NameRoundComplete, Err: fmt.Errorf("array form has %d elements", len(elems))}
		}
		entity = elems[0]
		if err := json.Unmarshal(elems[1], &m); err != nil {
			return nil, &DecodeError{Event: NameRoundComplete, Field: "metadata", Err: err}
		}
	} else {
		var obj struct {
			Session json.RawMessage `json:"session"`
			Battle  json.RawMessage `json:"battle"`
			Wheel   json.RawMessage `json:"wheel"`
			meta
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, &DecodeError{Event: NameRoundComplete, Err: err}
		}
		entity = obj.Session
		if len(entity) == 0 {
			entity = obj.Battle
		}
		if len(entity) == 0 {
			entity = obj.Wheel
		}
		m = obj.meta
	}

	eliminatedID := m.EliminatedItemID.String()
	if eliminatedID == "" {
		eliminatedID = m.EliminatedMovieID.String()
	}
	if eliminatedID == "" {
		return nil, &DecodeError{Event: NameRoundComplete, Field: "eliminatedItemId", Err: errors.New("missing")}
	}
	if m.Round == 0 {
		return nil, &DecodeError{Event: NameRoundComplete, Field: "roundNumber", Err: errors.New("missing")}
	}
	if len(entity) == 0 {
		return nil, &DecodeError{Event: NameRoundComplete, Field: "session", Err: errors.New("missing")}
	}

	var ws wireSession
	if err := json.Unmarshal(entity, &ws); err != nil {
		return nil, &DecodeError{Event: NameRoundComplete, Field: "session", Err: err}
	}
	s, err := ws.toSession(NameRoundComplete)
	if err != nil {
		return nil, err
	}
	return RoundComplete{
		Session:          s,
		EliminatedItemID: eliminatedID,
		Round:            m.Round,
		Finished:         m.Finished.Bool(),
	}, nil
}

func decodeRoster(payload json.RawMessage) (DomainEvent, error) {
	var users []wireParticipant
	if err := json.Unmarshal(payload, &users); err != nil {
		// some servers wrap the list
		var env struct {
			Users []wireParticipant `json:"users"`
		}
		if err2 := json.Unmarshal(payload, &env); err2 != nil {
			return nil, &DecodeError{Event: NameRoomUsers, Err: err}
		}
		users = env.Users
	}
	ev := RosterUpdate{}
	for _, u := range users {
		ev.Users = append(ev.Users, u.toParticipant())
	}
	return ev, nil
}

func decodeSpin(payload json.RawMessage) (DomainEvent, error) {
	var raw struct {
		ClientID     models.FlexString `json:"clientId"`
		WinningIndex *int              `json:"winningIndex"`
		Rotation     float64           `json:"rotation"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &DecodeError{Event: NameWheelSpin, Err: err}
	}
	if raw.WinningIndex == nil {
		return nil, &DecodeError{Event: NameWheelSpin, Field: "winningIndex", Err: errors.New("missing")}
	}
	return SpinRequested{
		ClientID:     raw.ClientID.String(),
		WinningIndex: *raw.WinningIndex,
		Rotation:     raw.Rotation,
	}, nil
}

func decodeShuffle(payload json.RawMessage) (DomainEvent, error) {
	var raw struct {
		Order   []string   `json:"order"`
		Sectors []wireItem `json:"sectors"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &DecodeError{Event: NameSectorsShuffle, Err: err}
	}
	ids := raw.Order
	if len(ids) == 0 {
		for _, s := range raw.Sectors {
			if s.ID != "" {
				ids = append(ids, s.ID)
			}
		}
	}
	if len(ids) == 0 {
		return nil, &DecodeError{Event: NameSectorsShuffle, Field: "order", Err: errors.New("missing")}
	}
	return Shuffled{ItemIDs: ids}, nil
}

func decodeItemsSync(name string, payload json.RawMessage) (DomainEvent, error) {
	var raw []wireItem
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &DecodeError{Event: name, Err: err}
	}
	ev := ItemsSynced{}
	for _, wi := range raw {
		item, err := wi.toItem()
		if err != nil {
			continue
		}
		ev.Items = append(ev.Items, item)
	}
	return ev, nil
}

func decodeItemUpsert(name string, payload json.RawMessage) (DomainEvent, error) {
	var wi wireItem
	if err := json.Unmarshal(payload, &wi); err != nil {
		return nil, &DecodeError{Event: name, Err: err}
	}
	item, err := wi.toItem()
	if err != nil {
		return nil, &DecodeError{Event: name, Field: "id", Err: err}
	}
	return ItemUpserted{Item: item}, nil
}

func decodeItemRemoved(payload json.RawMessage) (DomainEvent, error) {
	// arrives either as a bare string id or {"id": "..."}
	var id string
	if err := json.Unmarshal(payload, &id); err == nil && id != "" {
		return ItemRemoved{ItemID: id}, nil
	}
	var obj struct {
		ID       string `json:"id"`
		SectorID string `json:"sectorId"`
	}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, &DecodeError{Event: NameSectorRemoved, Err: err}
	}
	if obj.ID == "" && obj.SectorID == "" {
		return nil, &DecodeError{Event: NameSectorRemoved, Field: "id", Err: errors.New("missing")}
	}
	if obj.ID != "" {
		return ItemRemoved{ItemID: obj.ID}, nil
	}
	return ItemRemoved{ItemID: obj.SectorID}, nil
}
