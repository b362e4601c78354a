// Package identity provides the current-user boundary. Authentication and
// token storage live outside this module; the synchronizer only needs to
// know who it is acting as.
package identity

import "github.com/Riqtu/hohma-sync/go/internal/models"

// Provider yields the identity attached to outbound join frames and
// mutation requests.
type Provider interface {
	CurrentUser() models.Participant
}

// Static is a fixed identity, used by the demo binary and tests.
type Static struct {
	User models.Participant
}

func (s Static) CurrentUser() models.Participant { return s.User }
