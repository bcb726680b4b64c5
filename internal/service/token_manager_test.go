package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkl/dkl-client/internal/adapters/memory"
	domainauth "github.com/dkl/dkl-client/internal/domain/auth"
	apperrors "github.com/dkl/dkl-client/internal/errors"
	"github.com/dkl/dkl-client/internal/mocks"
	mockauth "github.com/dkl/dkl-client/internal/mocks/auth"
	"github.com/dkl/dkl-client/internal/ports"
)

func signedToken(t *testing.T, issuedAt time.Time, lifetime time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(lifetime)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func seededStore(t *testing.T, sess domainauth.Session) *memory.TokenStore {
	t.Helper()
	store := memory.NewTokenStore()
	require.NoError(t, store.Save(context.Background(), sess))
	return store
}

func newTestTokenManager(store ports.TokenStore, transport ports.RefreshTransport) *TokenManager {
	return NewTokenManager(TokenManagerOptions{Store: store, Transport: transport})
}

func TestNewTokenManager_RequiresDependencies(t *testing.T) {
	assert.Panics(t, func() { NewTokenManager(TokenManagerOptions{Transport: &mockauth.FakeRefreshTransport{}}) })
	assert.Panics(t, func() { NewTokenManager(TokenManagerOptions{Store: memory.NewTokenStore()}) })
}

func TestNewTokenManager_ConfigDefaults(t *testing.T) {
	m := NewTokenManager(TokenManagerOptions{
		Store:     memory.NewTokenStore(),
		Transport: &mockauth.FakeRefreshTransport{},
		Config:    TokenManagerConfig{AccessTokenLifetime: 4 * time.Minute, RefreshSkew: 5 * time.Minute},
	})
	assert.Equal(t, time.Minute, m.cfg.RefreshSkew, "skew is clamped below the lifetime")
	assert.Equal(t, defaultRefreshTimeout, m.cfg.RefreshTimeout)

	m = newTestTokenManager(memory.NewTokenStore(), &mockauth.FakeRefreshTransport{})
	assert.Equal(t, defaultAccessTokenLifetime, m.cfg.AccessTokenLifetime)
	assert.Equal(t, defaultRefreshSkew, m.cfg.RefreshSkew)
}

func TestTokenManager_RefreshIsSingleFlight(t *testing.T) {
	user := domainauth.UserProfile{ID: "u1", Email: "runner@example.com"}
	store := seededStore(t, domainauth.Session{AccessToken: "a0", RefreshToken: "r0", User: user})
	transport := &mockauth.FakeRefreshTransport{
		Next: domainauth.TokenPair{AccessToken: "a1", RefreshToken: "r1"},
		Gate: make(chan struct{}),
	}
	m := newTestTokenManager(store, transport)
	defer m.Close()

	const callers = 10
	var ready, done sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		ready.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			ready.Done()
			results[i], errs[i] = m.Refresh(context.Background())
		}(i)
	}
	ready.Wait()
	time.Sleep(50 * time.Millisecond)
	close(transport.Gate)
	done.Wait()

	assert.Equal(t, 1, transport.Calls())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "a1", results[i])
	}

	sess, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domainauth.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, sess.Tokens())
	assert.Equal(t, user, sess.User, "cached user survives a refresh")
	assert.Equal(t, []string{"r0"}, transport.SeenTokens())
}

func TestTokenManager_RefreshFailureIsSharedAndClears(t *testing.T) {
	store := seededStore(t, domainauth.Session{AccessToken: "a0", RefreshToken: "expired"})
	transport := &mockauth.FakeRefreshTransport{
		Err:  errors.New("refresh 401 Unauthorized"),
		Gate: make(chan struct{}),
	}
	m := newTestTokenManager(store, transport)
	defer m.Close()

	const callers = 5
	var ready, done sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		ready.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			ready.Done()
			_, errs[i] = m.Refresh(context.Background())
		}(i)
	}
	ready.Wait()
	time.Sleep(50 * time.Millisecond)
	close(transport.Gate)
	done.Wait()

	assert.Equal(t, 1, transport.Calls())
	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, apperrors.IsRefreshFailed(err))
		assert.Contains(t, err.Error(), "401")
	}

	_, ok := m.AccessToken(context.Background())
	assert.False(t, ok, "store is cleared after a failed refresh")
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ports.ErrNoSession)
}

func TestTokenManager_RefreshWithoutRefreshToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockRefreshTransport(ctrl)

	m := newTestTokenManager(memory.NewTokenStore(), transport)
	defer m.Close()

	_, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsNoRefreshToken(err))
}

func TestTokenManager_CallerCancelDoesNotAbortFlight(t *testing.T) {
	store := seededStore(t, domainauth.Session{AccessToken: "a0", RefreshToken: "r0"})
	transport := &mockauth.FakeRefreshTransport{
		Next:    domainauth.TokenPair{AccessToken: "a1", RefreshToken: "r1"},
		Gate:    make(chan struct{}),
		Started: make(chan struct{}, 1),
	}
	m := newTestTokenManager(store, transport)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	impatient := make(chan error, 1)
	go func() {
		_, err := m.Refresh(ctx)
		impatient <- err
	}()
	<-transport.Started

	patient := make(chan string, 1)
	go func() {
		token, _ := m.Refresh(context.Background())
		patient <- token
	}()

	cancel()
	assert.ErrorIs(t, <-impatient, context.Canceled)

	close(transport.Gate)
	assert.Equal(t, "a1", <-patient)
	assert.Equal(t, 1, transport.Calls())
}

func TestTokenManager_SaveFailureClearsSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockTokenStore(ctrl)
	transport := mocks.NewMockRefreshTransport(ctrl)

	sess := domainauth.Session{AccessToken: "a0", RefreshToken: "r0"}
	pair := domainauth.TokenPair{AccessToken: "a1", RefreshToken: "r1"}

	gomock.InOrder(
		store.EXPECT().Load(gomock.Any()).Return(sess, nil),
		transport.EXPECT().Refresh(gomock.Any(), "r0").Return(pair, nil),
		store.EXPECT().Save(gomock.Any(), sess.WithTokens(pair)).Return(errors.New("redis down")),
		store.EXPECT().Clear(gomock.Any()).Return(nil),
	)

	m := newTestTokenManager(store, transport)
	defer m.Close()

	_, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsRefreshFailed(err))
	assert.Contains(t, err.Error(), "save tokens")
}

func TestTokenManager_IncompletePairIsFailure(t *testing.T) {
	store := seededStore(t, domainauth.Session{AccessToken: "a0", RefreshToken: "r0"})
	transport := &mockauth.FakeRefreshTransport{Next: domainauth.TokenPair{AccessToken: "only-access"}}
	m := newTestTokenManager(store, transport)
	defer m.Close()

	_, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsRefreshFailed(err))
	_, ok := m.AccessToken(context.Background())
	assert.False(t, ok)
}

func TestTokenManager_ClearDuringFlightDiscardsResult(t *testing.T) {
	store := seededStore(t, domainauth.Session{AccessToken: "a0", RefreshToken: "r0"})
	transport := &mockauth.FakeRefreshTransport{
		Next:    domainauth.TokenPair{AccessToken: "a1", RefreshToken: "r1"},
		Gate:    make(chan struct{}),
		Started: make(chan struct{}, 1),
	}
	m := newTestTokenManager(store, transport)
	defer m.Close()

	result := make(chan error, 1)
	go func() {
		_, err := m.Refresh(context.Background())
		result <- err
	}()
	<-transport.Started

	require.NoError(t, m.ClearSession(context.Background()))
	close(transport.Gate)

	err := <-result
	require.Error(t, err)
	assert.True(t, apperrors.IsRefreshFailed(err))

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ports.ErrNoSession, "logout is not undone by a late refresh")
}

func TestTokenManager_LoginDuringFlightKeepsNewSession(t *testing.T) {
	for name, transport := range map[string]*mockauth.FakeRefreshTransport{
		"refresh succeeds": {Next: domainauth.TokenPair{AccessToken: "a1", RefreshToken: "r1"}},
		"refresh rejected": {Err: errors.New("refresh token revoked")},
	} {
		t.Run(name, func(t *testing.T) {
			transport.Gate = make(chan struct{})
			transport.Started = make(chan struct{}, 1)
			store := seededStore(t, domainauth.Session{AccessToken: "a0", RefreshToken: "r0"})
			m := newTestTokenManager(store, transport)
			defer m.Close()

			type outcome struct {
				token string
				err   error
			}
			result := make(chan outcome, 1)
			go func() {
				token, err := m.Refresh(context.Background())
				result <- outcome{token, err}
			}()
			<-transport.Started

			require.NoError(t, m.SetSession(context.Background(), domainauth.Session{AccessToken: "fresh", RefreshToken: "rf"}))
			close(transport.Gate)

			got := <-result
			require.NoError(t, got.err)
			assert.Equal(t, "fresh", got.token)

			sess, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "fresh", sess.AccessToken)
			assert.Equal(t, "rf", sess.RefreshToken)
		})
	}
}

func TestTokenManager_ProactiveRefreshUsesTokenExpiry(t *testing.T) {
	now := time.Now()
	// JWT dates have second precision, so the first token expires within (1s, 2s].
	first := signedToken(t, now, 2*time.Second)
	second := signedToken(t, now, time.Hour)

	store := memory.NewTokenStore()
	transport := &mockauth.FakeRefreshTransport{Next: domainauth.TokenPair{AccessToken: second, RefreshToken: "r1"}}
	m := NewTokenManager(TokenManagerOptions{
		Store:     store,
		Transport: transport,
		Config:    TokenManagerConfig{RefreshSkew: 1500 * time.Millisecond},
	})
	defer m.Close()

	require.NoError(t, m.SetTokens(context.Background(), first, "r0"))

	require.Eventually(t, func() bool {
		token, _ := m.AccessToken(context.Background())
		return token == second
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, transport.Calls())
}

func shortLivedConfig() TokenManagerConfig {
	return TokenManagerConfig{AccessTokenLifetime: 200 * time.Millisecond, RefreshSkew: 50 * time.Millisecond}
}

func TestTokenManager_ProactiveFailureEndsSession(t *testing.T) {
	var ended atomic.Int32
	store := memory.NewTokenStore()
	transport := &mockauth.FakeRefreshTransport{Err: errors.New("revoked")}
	m := NewTokenManager(TokenManagerOptions{
		Store:          store,
		Transport:      transport,
		Config:         shortLivedConfig(),
		OnSessionEnded: func(context.Context, error) { ended.Add(1) },
	})
	defer m.Close()

	require.NoError(t, m.SetTokens(context.Background(), "opaque-access", "r0"))

	require.Eventually(t, func() bool { return ended.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, ok := m.AccessToken(context.Background())
	assert.False(t, ok)
}

func TestTokenManager_CloseStopsTimer(t *testing.T) {
	transport := &mockauth.FakeRefreshTransport{Next: domainauth.TokenPair{AccessToken: "a1", RefreshToken: "r1"}}
	m := NewTokenManager(TokenManagerOptions{
		Store:     memory.NewTokenStore(),
		Transport: transport,
		Config:    shortLivedConfig(),
	})

	require.NoError(t, m.SetTokens(context.Background(), "opaque-access", "r0"))
	m.Close()

	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, transport.Calls(), "no refresh after Close")

	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrTokenManagerClosed)
}

func TestTokenManager_ClearSessionCancelsTimer(t *testing.T) {
	transport := &mockauth.FakeRefreshTransport{Next: domainauth.TokenPair{AccessToken: "a1", RefreshToken: "r1"}}
	m := NewTokenManager(TokenManagerOptions{
		Store:     memory.NewTokenStore(),
		Transport: transport,
		Config:    shortLivedConfig(),
	})
	defer m.Close()

	require.NoError(t, m.SetTokens(context.Background(), "opaque-access", "r0"))
	require.NoError(t, m.ClearSession(context.Background()))

	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, transport.Calls())
}

func TestTokenManager_RefreshDelay(t *testing.T) {
	m := NewTokenManager(TokenManagerOptions{
		Store:     memory.NewTokenStore(),
		Transport: &mockauth.FakeRefreshTransport{},
		Config:    TokenManagerConfig{AccessTokenLifetime: 20 * time.Minute, RefreshSkew: 5 * time.Minute},
	})
	now := time.Date(2026, 5, 16, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	assert.Equal(t, 15*time.Minute, m.refreshDelay("opaque-token"), "falls back to configured lifetime")
	assert.Equal(t, 55*time.Minute, m.refreshDelay(signedToken(t, now, time.Hour)))
	assert.Equal(t, time.Duration(0), m.refreshDelay(signedToken(t, now.Add(-time.Hour), 30*time.Minute)), "expired token refreshes at once")
	assert.Equal(t, 3*time.Minute, m.refreshDelay(signedToken(t, now, 4*time.Minute)), "skew is clamped for short-lived tokens")
}

func TestTokenManager_SetTokensKeepsUser(t *testing.T) {
	user := domainauth.UserProfile{ID: "u1"}
	store := seededStore(t, domainauth.Session{AccessToken: "a0", RefreshToken: "r0", User: user})
	m := newTestTokenManager(store, &mockauth.FakeRefreshTransport{})
	defer m.Close()

	err := m.SetTokens(context.Background(), "a1", "")
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, m.SetTokens(context.Background(), "a1", "r1"))
	sess, err := m.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a1", sess.AccessToken)
	assert.Equal(t, user, sess.User)

	require.NoError(t, m.SetUser(context.Background(), domainauth.UserProfile{ID: "u1", Name: "Nieuw"}))
	sess, err = m.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Nieuw", sess.User.Name)
	assert.Equal(t, "r1", sess.RefreshToken)
}

func TestTokenManager_TokenSource(t *testing.T) {
	store := memory.NewTokenStore()
	transport := &mockauth.FakeRefreshTransport{Next: domainauth.TokenPair{AccessToken: "a1", RefreshToken: "r1"}}
	m := newTestTokenManager(store, transport)
	defer m.Close()

	src := m.TokenSource(context.Background())
	_, err := src.Token()
	require.Error(t, err, "no session and nothing to refresh with")
	assert.True(t, apperrors.IsNoRefreshToken(err))

	require.NoError(t, store.Save(context.Background(), domainauth.Session{RefreshToken: "r0"}))
	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "a1", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.Type())

	jwtToken := signedToken(t, time.Now(), time.Hour)
	require.NoError(t, m.SetTokens(context.Background(), jwtToken, "r2"))
	tok, err = src.Token()
	require.NoError(t, err)
	assert.Equal(t, jwtToken, tok.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, 5*time.Second)
	assert.Equal(t, 1, transport.Calls())
}
