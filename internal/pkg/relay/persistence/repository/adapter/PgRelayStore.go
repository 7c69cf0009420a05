package adapter

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	repository "go-relay/internal/pkg/relay/persistence/repository/port"
)

// PgRelayStore reads the application tier's credential and roster tables.
// The pgx pool reconnects on its own, so a lost backend connection fails the
// in-flight lookup and heals transparently on next use.
type PgRelayStore struct {
	pool *pgxpool.Pool
}

func NewPgRelayStore(pool *pgxpool.Pool) *PgRelayStore {
	return &PgRelayStore{pool: pool}
}

var (
	_ repository.TokenStore  = (*PgRelayStore)(nil)
	_ repository.RosterStore = (*PgRelayStore)(nil)
)

// ConsumeUserToken deletes the token row in the same statement that reads it,
// so a second presentation of the same token can never succeed.
func (r *PgRelayStore) ConsumeUserToken(ctx context.Context, token string) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgRelayStore: nil pool")
	}
	var userID string
	err := r.pool.QueryRow(ctx, `
		DELETE FROM messenger.socket_token
		WHERE token = $1 AND expires_at > now()
		RETURNING user_id::text
	`, token).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", repository.ErrTokenNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// ResolveGuestToken joins the guest participation against its owning call;
// a recorded departure or call termination invalidates the token without
// touching connections that already authenticated with it.
func (r *PgRelayStore) ResolveGuestToken(ctx context.Context, token string) (repository.GuestGrant, error) {
	if r == nil || r.pool == nil {
		return repository.GuestGrant{}, errors.New("PgRelayStore: nil pool")
	}
	var grant repository.GuestGrant
	err := r.pool.QueryRow(ctx, `
		SELECT g.id::text, g.call_id::text, c.conversation_id
		FROM messenger.call_guest g
		JOIN messenger.group_call c ON c.id = g.call_id
		WHERE g.token = $1
		  AND g.left_at IS NULL
		  AND c.ended_at IS NULL
	`, token).Scan(&grant.GuestID, &grant.GroupCallID, &grant.ConversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.GuestGrant{}, repository.ErrTokenNotFound
	}
	if err != nil {
		return repository.GuestGrant{}, err
	}
	return grant, nil
}

// RosterFor returns active participants whose visibility window does not
// currently hide the conversation.
func (r *PgRelayStore) RosterFor(ctx context.Context, conversationID int64) (map[string]struct{}, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgRelayStore: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT user_id::text
		FROM messenger.participant
		WHERE conversation_id = $1
		  AND left_at IS NULL
		  AND (hidden_until IS NULL OR hidden_until <= now())
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roster := make(map[string]struct{})
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		roster[userID] = struct{}{}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return roster, nil
}
