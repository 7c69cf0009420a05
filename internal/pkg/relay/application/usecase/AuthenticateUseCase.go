package usecase

import (
	"context"
	"errors"
	"fmt"

	repository "go-relay/internal/pkg/relay/persistence/repository/port"
)

// AuthenticateInput carries the credential presented in a connection's first frame.
type AuthenticateInput struct {
	Token string
}

// AuthenticateResult is the resolved identity. Exactly one of UserID/Guest is set.
type AuthenticateResult struct {
	UserID string
	Guest  *repository.GuestGrant
}

// AuthenticateUseCase resolves a presented token against the external store.
// Resolution order is fixed: user credential first (consumed on success),
// then guest credential. Failure is terminal for the presenting connection;
// there is no retry on the same socket.
type AuthenticateUseCase struct {
	Store repository.TokenStore
}

func NewAuthenticateUseCase(store repository.TokenStore) *AuthenticateUseCase {
	return &AuthenticateUseCase{Store: store}
}

// Execute resolves the token. ErrInvalidToken means the credential matched
// nothing; any other error is a store failure and must be treated the same
// way by callers (auth_error, close) while the relay keeps serving.
func (uc *AuthenticateUseCase) Execute(ctx context.Context, in AuthenticateInput) (*AuthenticateResult, error) {
	if in.Token == "" {
		return nil, ErrInvalidToken
	}

	userID, err := uc.Store.ConsumeUserToken(ctx, in.Token)
	if err == nil {
		return &AuthenticateResult{UserID: userID}, nil
	}
	if !errors.Is(err, repository.ErrTokenNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	grant, err := uc.Store.ResolveGuestToken(ctx, in.Token)
	if err == nil {
		return &AuthenticateResult{Guest: &grant}, nil
	}
	if !errors.Is(err, repository.ErrTokenNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return nil, ErrInvalidToken
}
