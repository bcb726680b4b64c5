package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dkl/dkl-client/internal/errors"
)

type fakeTokens struct {
	mu         sync.Mutex
	token      string
	next       string
	refreshErr error
	refreshes  atomic.Int32
}

func (f *fakeTokens) AccessToken(context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) Refresh(context.Context) (string, error) {
	f.refreshes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		f.token = ""
		return "", f.refreshErr
	}
	f.token = f.next
	return f.token, nil
}

func (f *fakeTokens) set(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

type seenRequest struct {
	auth      string
	requestID string
	body      string
}

type recorder struct {
	mu   sync.Mutex
	seen []seenRequest
}

func (r *recorder) add(req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, seenRequest{
		auth:      req.Header.Get("Authorization"),
		requestID: req.Header.Get(HeaderRequestID),
		body:      string(body),
	})
}

func (r *recorder) all() []seenRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]seenRequest(nil), r.seen...)
}

func newTestClient(t *testing.T, srv *httptest.Server, tokens TokenProvider, ended *atomic.Int32) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:    srv.URL + "/",
		Tokens:     tokens,
		HTTPClient: srv.Client(),
		OnSessionEnded: func(context.Context, error) {
			if ended != nil {
				ended.Add(1)
			}
		},
	})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Tokens: &fakeTokens{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BaseURL is required")

	_, err = New(Options{BaseURL: "http://x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tokens is required")

	c, err := New(Options{BaseURL: "https://api.example.com/", Tokens: &fakeTokens{}})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", c.BaseURL())
	assert.NotNil(t, c.http.Jar)
}

func TestDo_InjectsBearerAndRequestID(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "tok-1"}
	c := newTestClient(t, srv, tokens, nil)

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.Get(context.Background(), "/api/auth/profile", &out))
	assert.True(t, out.OK)

	tokens.set("")
	require.NoError(t, c.Get(context.Background(), "api/total-steps", nil))

	seen := rec.all()
	require.Len(t, seen, 2)
	assert.Equal(t, "Bearer tok-1", seen[0].auth)
	assert.NotEmpty(t, seen[0].requestID)
	assert.Empty(t, seen[1].auth, "anonymous request must not carry a bearer")
	assert.NotEqual(t, seen[0].requestID, seen[1].requestID)
}

func TestDo_RefreshesOnceAndReplaysRequest(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"r1"}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "stale", next: "fresh"}
	var ended atomic.Int32
	c := newTestClient(t, srv, tokens, &ended)

	var out struct {
		ID string `json:"id"`
	}
	err := c.Post(context.Background(), "/api/registrations", map[string]string{"naam": "Jan"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "r1", out.ID)

	assert.Equal(t, int32(1), tokens.refreshes.Load())
	assert.Zero(t, ended.Load())

	seen := rec.all()
	require.Len(t, seen, 2)
	assert.Equal(t, "Bearer stale", seen[0].auth)
	assert.Equal(t, "Bearer fresh", seen[1].auth)
	assert.Equal(t, seen[0].requestID, seen[1].requestID, "retry keeps the request id")
	assert.JSONEq(t, `{"naam":"Jan"}`, seen[1].body, "body is replayed on retry")
}

func TestDo_SecondUnauthorizedIsTerminal(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "stale", next: "still-bad"}
	var ended atomic.Int32
	c := newTestClient(t, srv, tokens, &ended)

	err := c.Get(context.Background(), "/api/auth/profile", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthenticated(err))
	assert.Equal(t, int32(1), tokens.refreshes.Load(), "no second refresh")
	assert.Equal(t, int32(2), hits.Load(), "exactly one retry")
	assert.Equal(t, int32(1), ended.Load())
}

func TestDo_RefreshFailureEndsSession(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cause := apperrors.RefreshFailed(errors.New("refresh token expired"))
	tokens := &fakeTokens{token: "stale", refreshErr: cause}
	var ended atomic.Int32
	c := newTestClient(t, srv, tokens, &ended)

	err := c.Get(context.Background(), "/api/auth/profile", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthenticated(err))
	assert.True(t, apperrors.IsRefreshFailed(err), "cause is preserved")
	assert.Equal(t, int32(1), hits.Load(), "no retry without a token")
	assert.Equal(t, int32(1), ended.Load())
}

func TestDo_UsesAlreadyRotatedToken(t *testing.T) {
	tokens := &fakeTokens{token: "old"}
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		if r.Header.Get("Authorization") == "Bearer old" {
			// Another request rotated the pair while this one was in flight.
			tokens.set("rotated")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, tokens, nil)

	require.NoError(t, c.Delete(context.Background(), "/api/photos/1", nil))
	assert.Zero(t, tokens.refreshes.Load())

	seen := rec.all()
	require.Len(t, seen, 2)
	assert.Equal(t, "Bearer rotated", seen[1].auth)
}

func TestDo_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsForbidden(err))
				assert.Contains(t, err.Error(), "GET /api/admin")
			},
		},
		{
			name:   "rate limited with retry-after",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "7"},
			check: func(t *testing.T, err error) {
				require.True(t, apperrors.IsRateLimited(err))
				var appErr *apperrors.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, 7*time.Second, appErr.RetryAfter)
			},
		},
		{
			name:   "server error with json message",
			status: http.StatusInternalServerError,
			body:   `{"error":"database unavailable"}`,
			check: func(t *testing.T, err error) {
				assert.Equal(t, apperrors.ErrCodeUpstream, apperrors.GetCode(err))
				assert.Equal(t, http.StatusInternalServerError, apperrors.GetStatus(err))
				assert.Contains(t, err.Error(), "database unavailable")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			tokens := &fakeTokens{token: "tok"}
			var ended atomic.Int32
			c := newTestClient(t, srv, tokens, &ended)

			err := c.Get(context.Background(), "/api/admin", nil)
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, int32(1), hits.Load(), "no retry")
			assert.Zero(t, tokens.refreshes.Load())
			assert.Zero(t, ended.Load(), "session untouched")
		})
	}
}

func TestDo_CallerCancelDoesNotEndSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	tokens := &cancelingTokens{cancel: cancel}
	var ended atomic.Int32
	c := newTestClient(t, srv, tokens, &ended)

	err := c.Get(ctx, "/api/auth/profile", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ended.Load())
}

type cancelingTokens struct{ cancel context.CancelFunc }

func (c *cancelingTokens) AccessToken(context.Context) (string, bool) { return "tok", true }

func (c *cancelingTokens) Refresh(ctx context.Context) (string, error) {
	c.cancel()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 5, 16, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
	assert.Equal(t, 2*time.Minute, parseRetryAfter(now.Add(2*time.Minute).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}

func TestDoJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &fakeTokens{}, nil)

	var out map[string]any
	err := c.Get(context.Background(), "/api/x", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode GET /api/x response")

	var syntaxErr *json.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)
}
