package repository

import (
	"context"
	"errors"
)

// ErrTokenNotFound signals an absent, expired, or already-consumed credential.
var ErrTokenNotFound = errors.New("relay store: token not found")

// GuestGrant is the resolution of a guest credential: the guest's identity,
// the group call that owns it, and the conversation the call belongs to.
type GuestGrant struct {
	GuestID        string
	GroupCallID    string
	ConversationID int64
}

// TokenStore reads credential records minted by the application tier.
type TokenStore interface {
	// ConsumeUserToken atomically looks up and deletes a single-use user
	// token, returning the bound principal identifier. Expired tokens are
	// reported as ErrTokenNotFound; at most one call can ever succeed for
	// a given token.
	ConsumeUserToken(ctx context.Context, token string) (string, error)

	// ResolveGuestToken resolves a guest token. Validity is transitive:
	// the guest must not have left and the owning call must not have
	// ended. Guest tokens are not consumed and may resolve repeatedly.
	ResolveGuestToken(ctx context.Context, token string) (GuestGrant, error)
}

// RosterStore reads the set of principals entitled to a conversation's
// events. Results are never cached beyond one fan-out resolution.
type RosterStore interface {
	// RosterFor returns the active, non-hidden participants of the
	// conversation as a membership set.
	RosterFor(ctx context.Context, conversationID int64) (map[string]struct{}, error)
}
