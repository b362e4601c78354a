package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want SessionStatus
	}{
		{"ACTIVE", SessionStatusActive},
		{"VOTING", SessionStatusVoting},
		{"COMPLETED", SessionStatusFinished}, // legacy wheel spelling
		{"WAITING", SessionStatusCollecting}, // legacy wheel spelling
		{"SOMETHING_ELSE", SessionStatusActive},
		{"", SessionStatusActive},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseSessionStatus(tc.raw), tc.raw)
	}
}

func TestSessionStatusTerminal(t *testing.T) {
	assert.True(t, SessionStatusFinished.Terminal())
	assert.True(t, SessionStatusCancelled.Terminal())
	assert.False(t, SessionStatusActive.Terminal())
	assert.False(t, SessionStatusVoting.Terminal())
}

func TestSessionClone_IsDeep(t *testing.T) {
	s := &Session{
		ID:         "w1",
		Items:      []Item{{ID: "a", Label: "one"}},
		Eliminated: []Item{{ID: "b", Eliminated: true}},
		Roster:     []Participant{{ID: "u1"}},
		Wagers:     []Wager{{ID: "bet1"}},
	}
	c := s.Clone()
	c.Items[0].Label = "mutated"
	c.Eliminated[0].ID = "mutated"
	c.Roster[0].ID = "mutated"
	c.Wagers[0].ID = "mutated"

	assert.Equal(t, "one", s.Items[0].Label)
	assert.Equal(t, "b", s.Eliminated[0].ID)
	assert.Equal(t, "u1", s.Roster[0].ID)
	assert.Equal(t, "bet1", s.Wagers[0].ID)
}

func TestSessionItemByID_SearchesBothLists(t *testing.T) {
	s := &Session{
		Items:      []Item{{ID: "a"}},
		Eliminated: []Item{{ID: "b"}},
	}
	item, ok := s.ItemByID("b")
	require.True(t, ok)
	assert.Equal(t, "b", item.ID)

	_, ok = s.ItemByID("ghost")
	assert.False(t, ok)
}

func TestParticipantDisplayName(t *testing.T) {
	p := Participant{Username: "ann", FirstName: "Ann", LastName: "Lee"}
	assert.Equal(t, "Ann Lee", p.DisplayName())

	assert.Equal(t, "ann", Participant{Username: "ann"}.DisplayName())
	assert.Equal(t, "Ann", Participant{Username: "ann", FirstName: "Ann"}.DisplayName())
}

func TestInferGenerationPhase(t *testing.T) {
	assert.Equal(t, PhaseTitleReady, InferGenerationPhase(true, true, true))
	assert.Equal(t, PhasePosterReady, InferGenerationPhase(false, true, true))
	assert.Equal(t, PhaseDescriptionReady, InferGenerationPhase(false, false, true))
	assert.Equal(t, PhaseGenerating, InferGenerationPhase(false, false, false))
}
