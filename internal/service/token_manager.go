package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/dkl/dkl-client/internal/domain/auth"
	apperrors "github.com/dkl/dkl-client/internal/errors"
	"github.com/dkl/dkl-client/internal/observability/metrics"
	"github.com/dkl/dkl-client/internal/ports"
)

const (
	defaultAccessTokenLifetime = 20 * time.Minute
	defaultRefreshSkew         = 5 * time.Minute
	defaultRefreshTimeout      = 15 * time.Second
	refreshFlightKey           = "refresh"
)

// ErrTokenManagerClosed is returned by Refresh after Close.
var ErrTokenManagerClosed = errors.New("token manager closed")

// errSessionReplaced aborts a refresh whose session was cleared or replaced mid-flight.
var errSessionReplaced = errors.New("session replaced during refresh")

// SessionEndedFunc is invoked when the session can no longer be kept alive.
type SessionEndedFunc func(ctx context.Context, cause error)

// TokenManagerConfig tunes refresh timing.
type TokenManagerConfig struct {
	// AccessTokenLifetime is used when the access token's expiry cannot be read.
	AccessTokenLifetime time.Duration
	// RefreshSkew is how long before expiry the proactive refresh fires.
	RefreshSkew time.Duration
	// RefreshTimeout bounds one shared refresh flight.
	RefreshTimeout time.Duration
}

// TokenManagerOptions groups dependencies for TokenManager.
type TokenManagerOptions struct {
	Store          ports.TokenStore       // Required: session persistence
	Transport      ports.RefreshTransport // Required: bare refresh call
	Config         TokenManagerConfig
	Logger         *slog.Logger     // Optional: structured logger
	Metrics        metrics.Sink     // Optional: refresh metrics
	OnSessionEnded SessionEndedFunc // Optional: proactive refresh failed
}

// TokenManager owns the token lifecycle: proactive refresh scheduling and a
// single-flight refresh shared by every concurrent caller.
//
// It is the only writer of the token store.
type TokenManager struct {
	store     ports.TokenStore
	transport ports.RefreshTransport
	cfg       TokenManagerConfig
	logger    *slog.Logger
	metrics   metrics.Sink
	onEnded   SessionEndedFunc
	now       func() time.Time

	flights singleflight.Group

	// mu guards the timer and closed flag; writeMu serializes store writes
	// together with the generation counter.
	mu       sync.Mutex
	timer    *time.Timer
	timerSeq uint64
	closed   bool

	writeMu    sync.Mutex
	generation uint64
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(opts TokenManagerOptions) *TokenManager {
	if opts.Store == nil {
		panic("TokenStore is required")
	}
	if opts.Transport == nil {
		panic("RefreshTransport is required")
	}

	cfg := opts.Config
	if cfg.AccessTokenLifetime <= 0 {
		cfg.AccessTokenLifetime = defaultAccessTokenLifetime
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = defaultRefreshSkew
	}
	if cfg.RefreshSkew >= cfg.AccessTokenLifetime {
		cfg.RefreshSkew = cfg.AccessTokenLifetime / 4
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenManager{
		store:     opts.Store,
		transport: opts.Transport,
		cfg:       cfg,
		logger:    logger.With("component", "token_manager"),
		metrics:   metrics.OrNoop(opts.Metrics),
		onEnded:   opts.OnSessionEnded,
		now:       time.Now,
	}
}

// AccessToken returns the current access token, if any.
func (m *TokenManager) AccessToken(ctx context.Context) (string, bool) {
	sess, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ports.ErrNoSession) {
			m.logger.WarnContext(ctx, "load session failed", "error", err)
		}
		return "", false
	}
	return sess.AccessToken, sess.AccessToken != ""
}

// Session returns the stored session, or ports.ErrNoSession.
func (m *TokenManager) Session(ctx context.Context) (domainauth.Session, error) {
	return m.store.Load(ctx)
}

// Refresh obtains a new token pair. Concurrent callers share one transport call
// and all observe the same outcome. A caller whose ctx ends stops waiting; the
// shared flight carries on for the others.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	if m.isClosed() {
		return "", ErrTokenManagerClosed
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(refreshFlightKey, func() (any, error) {
		return m.refresh(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		token, _ := res.Val.(string)
		return token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.RefreshTimeout)
	defer cancel()

	start := m.now()
	token, err := m.doRefresh(ctx)
	metrics.EmitRefresh(m.metrics, m.now().Sub(start), err)
	if err != nil {
		m.logger.WarnContext(ctx, "token refresh failed", "error", err)
		return "", err
	}
	m.logger.InfoContext(ctx, "token refreshed")
	return token, nil
}

func (m *TokenManager) doRefresh(ctx context.Context) (string, error) {
	gen := m.currentGeneration()

	sess, err := m.store.Load(ctx)
	if err != nil && !errors.Is(err, ports.ErrNoSession) {
		return "", apperrors.RefreshFailed(fmt.Errorf("load session: %w", err))
	}
	if sess.RefreshToken == "" {
		return "", apperrors.NoRefreshToken()
	}

	pair, err := m.transport.Refresh(ctx, sess.RefreshToken)
	if err == nil && !pair.Valid() {
		err = errors.New("refresh returned an incomplete token pair")
	}
	if err != nil {
		if token, ok := m.replacedToken(ctx, gen); ok {
			return token, nil
		}
		m.failSession(ctx, gen)
		return "", apperrors.RefreshFailed(err)
	}

	m.writeMu.Lock()
	if m.generation != gen {
		m.writeMu.Unlock()
		if token, ok := m.replacedToken(ctx, gen); ok {
			return token, nil
		}
		return "", apperrors.RefreshFailed(errSessionReplaced)
	}
	err = m.store.Save(ctx, sess.WithTokens(pair))
	m.writeMu.Unlock()
	if err != nil {
		m.failSession(ctx, gen)
		return "", apperrors.RefreshFailed(fmt.Errorf("save tokens: %w", err))
	}

	m.schedule(pair.AccessToken)
	return pair.AccessToken, nil
}

// replacedToken returns the access token of a session stored after gen, such as a
// login that landed while the refresh was in flight. That session wins over the flight.
func (m *TokenManager) replacedToken(ctx context.Context, gen uint64) (string, bool) {
	if m.currentGeneration() == gen {
		return "", false
	}
	sess, err := m.store.Load(ctx)
	if err != nil || sess.AccessToken == "" {
		return "", false
	}
	m.logger.InfoContext(ctx, "session replaced during refresh, using the new session")
	return sess.AccessToken, true
}

// failSession clears the store unless the session changed since gen.
func (m *TokenManager) failSession(ctx context.Context, gen uint64) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.generation != gen {
		return
	}
	m.generation++
	m.cancelTimer()
	if err := m.store.Clear(ctx); err != nil {
		m.logger.ErrorContext(ctx, "clear session after failed refresh", "error", err)
	}
}

// SetTokens replaces both tokens, keeping any cached user, and re-arms the refresh timer.
func (m *TokenManager) SetTokens(ctx context.Context, accessToken, refreshToken string) error {
	pair := domainauth.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}
	if !pair.Valid() {
		return apperrors.Validation("access and refresh token are both required")
	}

	m.writeMu.Lock()
	sess, err := m.store.Load(ctx)
	if err != nil && !errors.Is(err, ports.ErrNoSession) {
		m.writeMu.Unlock()
		return fmt.Errorf("load session: %w", err)
	}
	m.generation++
	err = m.store.Save(ctx, sess.WithTokens(pair))
	m.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}

	m.schedule(accessToken)
	return nil
}

// SetSession stores a complete session (tokens plus user), as after login.
func (m *TokenManager) SetSession(ctx context.Context, sess domainauth.Session) error {
	if !sess.Tokens().Valid() {
		return apperrors.Validation("access and refresh token are both required")
	}

	m.writeMu.Lock()
	m.generation++
	err := m.store.Save(ctx, sess)
	m.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	m.schedule(sess.AccessToken)
	return nil
}

// SetUser replaces the cached profile without touching the tokens.
func (m *TokenManager) SetUser(ctx context.Context, user domainauth.UserProfile) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// ClearSession removes the session and cancels the refresh timer.
func (m *TokenManager) ClearSession(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.generation++
	m.cancelTimer()
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// ScheduleProactiveRefresh arms the refresh timer for the stored access token.
// It is a no-op when no session is stored.
func (m *TokenManager) ScheduleProactiveRefresh(ctx context.Context) {
	token, ok := m.AccessToken(ctx)
	if !ok {
		m.cancelTimer()
		return
	}
	m.schedule(token)
}

// Close cancels the refresh timer. No refresh originates from the manager afterwards.
func (m *TokenManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopTimerLocked()
}

// TokenSource exposes the current access token to oauth2-aware clients,
// refreshing when no token is stored.
func (m *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, m: m}
}

type managerTokenSource struct {
	ctx context.Context
	m   *TokenManager
}

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	token, ok := s.m.AccessToken(s.ctx)
	if !ok {
		var err error
		token, err = s.m.Refresh(s.ctx)
		if err != nil {
			return nil, err
		}
	}
	tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if exp, _, ok := tokenTimes(token); ok {
		tok.Expiry = exp
	}
	return tok, nil
}

func (m *TokenManager) schedule(accessToken string) {
	delay := m.refreshDelay(accessToken)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.stopTimerLocked()
	m.timerSeq++
	seq := m.timerSeq
	m.timer = time.AfterFunc(delay, func() { m.proactiveRefresh(seq) })
	m.logger.Debug("proactive refresh scheduled", "in", delay.String())
}

func (m *TokenManager) proactiveRefresh(seq uint64) {
	m.mu.Lock()
	stale := m.closed || seq != m.timerSeq
	m.mu.Unlock()
	if stale {
		return
	}

	ctx := context.Background()
	if _, err := m.Refresh(ctx); err != nil {
		if errors.Is(err, ErrTokenManagerClosed) || errors.Is(err, errSessionReplaced) {
			return
		}
		m.logger.WarnContext(ctx, "proactive refresh failed, session ended", "error", err)
		if m.onEnded != nil {
			m.onEnded(ctx, err)
		}
	}
}

// refreshDelay is the time until expiry minus the skew. The expiry comes from the
// token's exp claim when it is a readable JWT, else from the configured lifetime.
func (m *TokenManager) refreshDelay(accessToken string) time.Duration {
	skew := m.cfg.RefreshSkew
	exp, iat, ok := tokenTimes(accessToken)
	if !ok {
		return m.cfg.AccessTokenLifetime - skew
	}
	if !iat.IsZero() {
		if lifetime := exp.Sub(iat); lifetime > 0 && skew >= lifetime {
			skew = lifetime / 4
		}
	}
	if d := exp.Sub(m.now()) - skew; d > 0 {
		return d
	}
	return 0
}

func (m *TokenManager) cancelTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

func (m *TokenManager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	// Invalidate a callback that already fired but has not yet taken the lock.
	m.timerSeq++
}

func (m *TokenManager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *TokenManager) currentGeneration() uint64 {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.generation
}

// tokenTimes reads exp and iat without verifying the signature; the server
// remains the authority, this only drives scheduling.
func tokenTimes(token string) (exp, iat time.Time, ok bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, time.Time{}, false
	}
	if claims.IssuedAt != nil {
		iat = claims.IssuedAt.Time
	}
	return claims.ExpiresAt.Time, iat, true
}
