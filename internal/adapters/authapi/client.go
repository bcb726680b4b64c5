package authapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domainauth "github.com/dkl/dkl-client/internal/domain/auth"
	apperrors "github.com/dkl/dkl-client/internal/errors"
	"github.com/dkl/dkl-client/internal/ports"
)

// Account endpoints.
const (
	PathLogin         = "/api/auth/login"
	PathLogout        = "/api/auth/logout"
	PathProfile       = "/api/auth/profile"
	PathResetPassword = "/api/auth/reset-password"
)

// Requester is the JSON surface of the authenticated pipeline.
type Requester interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// Client implements ports.AuthAPI over the authenticated pipeline.
type Client struct {
	api Requester
}

var _ ports.AuthAPI = (*Client)(nil)

// NewClient wraps a Requester.
func NewClient(api Requester) (*Client, error) {
	if api == nil {
		return nil, errors.New("Requester is required")
	}
	return &Client{api: api}, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"wachtwoord"`
}

type loginResponse struct {
	Success      bool                   `json:"success"`
	Token        string                 `json:"token"`
	RefreshToken string                 `json:"refresh_token"`
	User         domainauth.UserProfile `json:"user"`
	Error        string                 `json:"error,omitempty"`
}

// Login posts credentials and returns the issued pair and user.
func (c *Client) Login(ctx context.Context, email, password string) (ports.LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return ports.LoginResult{}, apperrors.ValidationField("email", "email is required")
	}
	if password == "" {
		return ports.LoginResult{}, apperrors.ValidationField("password", "password is required")
	}

	var out loginResponse
	if err := c.api.Post(ctx, PathLogin, loginRequest{Email: email, Password: password}, &out); err != nil {
		return ports.LoginResult{}, fmt.Errorf("login: %w", err)
	}
	pair := domainauth.TokenPair{AccessToken: out.Token, RefreshToken: out.RefreshToken}
	if !out.Success || !pair.Valid() {
		return ports.LoginResult{}, apperrors.Unauthenticated(
			"login failed: "+fallbackString(out.Error, "invalid login response"), nil)
	}
	return ports.LoginResult{Tokens: pair, User: out.User}, nil
}

// Logout notifies the server. Callers clear local state regardless of the result.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.api.Post(ctx, PathLogout, nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Profile fetches the current user.
func (c *Client) Profile(ctx context.Context) (domainauth.UserProfile, error) {
	var out struct {
		User *domainauth.UserProfile `json:"user"`
	}
	if err := c.api.Get(ctx, PathProfile, &out); err != nil {
		return domainauth.UserProfile{}, fmt.Errorf("profile: %w", err)
	}
	if out.User == nil {
		return domainauth.UserProfile{}, errors.New("profile: response has no user")
	}
	return *out.User, nil
}

type changePasswordRequest struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

// ChangePassword updates the password of the logged-in user.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" || next == "" {
		return apperrors.Validation("current and new password are required")
	}
	if err := c.api.Post(ctx, PathResetPassword, changePasswordRequest{Current: current, New: next}, nil); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}
