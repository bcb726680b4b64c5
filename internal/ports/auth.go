package ports

// Package ports defines interfaces (hexagonal ports) for session and real-time behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/dkl/dkl-client/internal/domain/auth"
)

// ErrNoSession is returned by TokenStore.Load when nothing is stored.
var ErrNoSession = errors.New("no session stored")

// TokenStore persists the client session. It is pure storage: no refresh logic.
// Save replaces the whole session so readers never observe a mixed token pair.
type TokenStore interface {
	Load(ctx context.Context) (domainauth.Session, error)
	Save(ctx context.Context, sess domainauth.Session) error
	// SaveUser replaces the cached profile and keeps the stored tokens.
	SaveUser(ctx context.Context, user domainauth.UserProfile) error
	Clear(ctx context.Context) error
}

// RefreshTransport exchanges a refresh token for a new token pair.
// Implementations must not go through the authenticated request pipeline.
type RefreshTransport interface {
	Refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error)
}

// LoginResult is what a successful login returns.
type LoginResult struct {
	Tokens domainauth.TokenPair
	User   domainauth.UserProfile
}

// AuthAPI covers the account endpoints used by the auth service.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (domainauth.UserProfile, error)
	ChangePassword(ctx context.Context, current, next string) error
}
