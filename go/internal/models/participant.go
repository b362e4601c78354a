package models

// Participant is a roster entry for one room member. The roster is a set
// keyed by ID; presence is connection-derived and flips without removing
// the entry.
type Participant struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Coins     int    `json:"coins"`
	Role      string `json:"role,omitempty"`
	Online    bool   `json:"online"`
}

// DisplayName prefers the human name over the handle.
func (p Participant) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.Username
	}
}

// Wager is a bet placed on an item before the session completes. Payout is
// server-side; the client only requests it and reflects paidOut flags.
type Wager struct {
	ID        string `json:"id"`
	SessionID string `json:"wheelId"`
	ItemID    string `json:"sectorId"`
	UserID    string `json:"userId"`
	Amount    int    `json:"amount"`
	PaidOut   bool   `json:"paidOut"`
}
