package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sync"
	"sync/atomic"

	domainauth "github.com/dkl/dkl-client/internal/domain/auth"
	"github.com/dkl/dkl-client/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.RefreshTransport = (*FakeRefreshTransport)(nil)
	_ ports.AuthAPI          = (*FakeAuthAPI)(nil)
)

// FakeRefreshTransport is a scriptable refresh endpoint that counts calls.
type FakeRefreshTransport struct {
	// RefreshFunc overrides the default behavior when set.
	RefreshFunc func(ctx context.Context, refreshToken string) (domainauth.TokenPair, error)
	// Next is returned on success when RefreshFunc is nil.
	Next domainauth.TokenPair
	// Err is returned when set and RefreshFunc is nil.
	Err error
	// Gate, when non-nil, blocks every call until it is closed.
	Gate chan struct{}
	// Started receives one value per call, without blocking, if non-nil.
	Started chan struct{}

	calls atomic.Int32
	mu    sync.Mutex
	seen  []string
}

func (f *FakeRefreshTransport) Refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, refreshToken)
	f.mu.Unlock()

	if f.Started != nil {
		select {
		case f.Started <- struct{}{}:
		default:
		}
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return domainauth.TokenPair{}, ctx.Err()
		}
	}

	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx, refreshToken)
	}
	if f.Err != nil {
		return domainauth.TokenPair{}, f.Err
	}
	return f.Next, nil
}

// Calls returns how many times Refresh was invoked.
func (f *FakeRefreshTransport) Calls() int { return int(f.calls.Load()) }

// SeenTokens returns the refresh tokens presented, in order.
func (f *FakeRefreshTransport) SeenTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

// FakeAuthAPI records account calls and returns canned results.
type FakeAuthAPI struct {
	LoginResult ports.LoginResult
	LoginErr    error
	LogoutErr   error
	User        domainauth.UserProfile
	ProfileErr  error
	PasswordErr error

	mu    sync.Mutex
	calls []string
}

func (f *FakeAuthAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

// Calls returns the names of the methods invoked, in order.
func (f *FakeAuthAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeAuthAPI) Login(_ context.Context, _, _ string) (ports.LoginResult, error) {
	f.record("Login")
	if f.LoginErr != nil {
		return ports.LoginResult{}, f.LoginErr
	}
	return f.LoginResult, nil
}

func (f *FakeAuthAPI) Logout(context.Context) error {
	f.record("Logout")
	return f.LogoutErr
}

func (f *FakeAuthAPI) Profile(context.Context) (domainauth.UserProfile, error) {
	f.record("Profile")
	if f.ProfileErr != nil {
		return domainauth.UserProfile{}, f.ProfileErr
	}
	return f.User, nil
}

func (f *FakeAuthAPI) ChangePassword(context.Context, string, string) error {
	f.record("ChangePassword")
	return f.PasswordErr
}
