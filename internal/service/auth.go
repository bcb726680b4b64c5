package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainauth "github.com/dkl/dkl-client/internal/domain/auth"
	"github.com/dkl/dkl-client/internal/ports"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	API    ports.AuthAPI // Required: account endpoints
	Tokens *TokenManager // Required: session owner
	Logger *slog.Logger  // Optional: structured logger
}

// AuthService orchestrates login, logout and profile flows on top of the token manager.
type AuthService struct {
	api    ports.AuthAPI
	tokens *TokenManager
	logger *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.API == nil {
		panic("AuthAPI is required")
	}
	if opts.Tokens == nil {
		panic("TokenManager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		api:    opts.API,
		tokens: opts.Tokens,
		logger: logger.With("component", "auth_service"),
	}
}

// Login authenticates with email and password and stores the resulting session.
func (s *AuthService) Login(ctx context.Context, email, password string) (domainauth.UserProfile, error) {
	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		return domainauth.UserProfile{}, err
	}

	sess := domainauth.Session{User: res.User}.WithTokens(res.Tokens)
	if err := s.tokens.SetSession(ctx, sess); err != nil {
		return domainauth.UserProfile{}, fmt.Errorf("store session: %w", err)
	}

	s.logger.InfoContext(ctx, "login successful",
		"user_id", res.User.ID,
		"permissions", len(res.User.Permissions),
		"roles", len(res.User.Roles),
	)
	return res.User, nil
}

// Logout notifies the server when a session exists and always clears local state.
// Only a failure to clear locally is returned.
func (s *AuthService) Logout(ctx context.Context) error {
	if s.IsAuthenticated(ctx) {
		if err := s.api.Logout(ctx); err != nil {
			s.logger.WarnContext(ctx, "server logout failed, clearing local session anyway", "error", err)
		}
	}
	if err := s.tokens.ClearSession(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.logger.InfoContext(ctx, "logged out")
	return nil
}

// Profile fetches the user with fresh permissions and updates the cached copy.
func (s *AuthService) Profile(ctx context.Context) (domainauth.UserProfile, error) {
	user, err := s.api.Profile(ctx)
	if err != nil {
		return domainauth.UserProfile{}, err
	}
	if err := s.tokens.SetUser(ctx, user); err != nil {
		if errors.Is(err, ports.ErrNoSession) {
			return user, nil
		}
		return domainauth.UserProfile{}, err
	}
	return user, nil
}

// ChangePassword updates the logged-in user's password.
func (s *AuthService) ChangePassword(ctx context.Context, current, next string) error {
	return s.api.ChangePassword(ctx, current, next)
}

// CurrentUser returns the cached user. It may be stale relative to the server.
func (s *AuthService) CurrentUser(ctx context.Context) (domainauth.UserProfile, bool) {
	sess, err := s.tokens.Session(ctx)
	if err != nil || sess.User.ID == "" {
		return domainauth.UserProfile{}, false
	}
	return sess.User, true
}

// IsAuthenticated reports whether an access token is stored.
func (s *AuthService) IsAuthenticated(ctx context.Context) bool {
	_, ok := s.tokens.AccessToken(ctx)
	return ok
}

// HasPermission checks the cached user. UI gating only; the server decides.
func (s *AuthService) HasPermission(ctx context.Context, resource, action string) bool {
	user, ok := s.CurrentUser(ctx)
	return ok && user.HasPermission(resource, action)
}
