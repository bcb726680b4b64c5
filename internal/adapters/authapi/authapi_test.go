package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/dkl/dkl-client/internal/domain/auth"
	apperrors "github.com/dkl/dkl-client/internal/errors"
)

func TestNewRefreshTransport_RequiresBaseURL(t *testing.T) {
	_, err := NewRefreshTransport(RefreshTransportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BaseURL is required")
}

func TestRefreshTransport_Refresh(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		wantErr  string
		want     domainauth.TokenPair
	}{
		{
			name:     "success",
			status:   http.StatusOK,
			response: `{"success":true,"token":"new-access","refresh_token":"new-refresh"}`,
			want:     domainauth.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"},
		},
		{
			name:     "expired refresh token",
			status:   http.StatusUnauthorized,
			response: `{"error":"refresh token expired"}`,
			wantErr:  "401",
		},
		{
			name:     "success false",
			status:   http.StatusOK,
			response: `{"success":false,"error":"revoked"}`,
			wantErr:  "revoked",
		},
		{
			name:     "missing refresh token",
			status:   http.StatusOK,
			response: `{"success":true,"token":"only-access"}`,
			wantErr:  "missing tokens",
		},
		{
			name:     "garbage body",
			status:   http.StatusOK,
			response: `<html>`,
			wantErr:  "decode refresh response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, PathRefresh, r.URL.Path)
				assert.Empty(t, r.Header.Get("Authorization"), "refresh must not carry a bearer")

				var body refreshRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "old-refresh", body.RefreshToken)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			tr, err := NewRefreshTransport(RefreshTransportOptions{BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
			require.NoError(t, err)

			got, err := tr.Refresh(context.Background(), "old-refresh")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type call struct {
	method string
	path   string
	body   any
}

type fakeRequester struct {
	calls    []call
	response string
	err      error
}

func (f *fakeRequester) Get(_ context.Context, path string, out any) error {
	f.calls = append(f.calls, call{method: http.MethodGet, path: path})
	return f.respond(out)
}

func (f *fakeRequester) Post(_ context.Context, path string, body, out any) error {
	f.calls = append(f.calls, call{method: http.MethodPost, path: path, body: body})
	return f.respond(out)
}

func (f *fakeRequester) respond(out any) error {
	if f.err != nil {
		return f.err
	}
	if out == nil || f.response == "" {
		return nil
	}
	return json.Unmarshal([]byte(f.response), out)
}

func TestClient_Login(t *testing.T) {
	api := &fakeRequester{response: `{
		"success": true,
		"token": "access",
		"refresh_token": "refresh",
		"user": {"id": "u1", "email": "jan@example.com", "naam": "Jan", "permissions": [{"resource": "admin", "action": "access"}]}
	}`}
	c, err := NewClient(api)
	require.NoError(t, err)

	res, err := c.Login(context.Background(), " jan@example.com ", "geheim")
	require.NoError(t, err)
	assert.Equal(t, domainauth.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, res.Tokens)
	assert.True(t, res.User.IsAdmin())

	require.Len(t, api.calls, 1)
	assert.Equal(t, PathLogin, api.calls[0].path)
	payload, err := json.Marshal(api.calls[0].body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"jan@example.com","wachtwoord":"geheim"}`, string(payload))
}

func TestClient_LoginRejectsIncompleteResponse(t *testing.T) {
	api := &fakeRequester{response: `{"success": true, "token": "access"}`}
	c, err := NewClient(api)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "jan@example.com", "geheim")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthenticated(err))
}

func TestClient_LoginValidation(t *testing.T) {
	c, err := NewClient(&fakeRequester{})
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "", "x")
	assert.True(t, apperrors.IsValidation(err))
	_, err = c.Login(context.Background(), "a@b.c", "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestClient_Profile(t *testing.T) {
	api := &fakeRequester{response: `{"user": {"id": "u1", "email": "a@b.c", "roles": [{"name": "staff"}]}}`}
	c, err := NewClient(api)
	require.NoError(t, err)

	user, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.True(t, user.HasRole("staff"))

	api.response = `{}`
	_, err = c.Profile(context.Background())
	require.Error(t, err)
}

func TestClient_ChangePasswordAndLogout(t *testing.T) {
	api := &fakeRequester{}
	c, err := NewClient(api)
	require.NoError(t, err)

	require.NoError(t, c.ChangePassword(context.Background(), "oud", "nieuw"))
	require.NoError(t, c.Logout(context.Background()))
	assert.True(t, apperrors.IsValidation(c.ChangePassword(context.Background(), "", "nieuw")))

	require.Len(t, api.calls, 2)
	assert.Equal(t, PathResetPassword, api.calls[0].path)
	assert.Equal(t, changePasswordRequest{Current: "oud", New: "nieuw"}, api.calls[0].body)
	assert.Equal(t, PathLogout, api.calls[1].path)

	api.err = errors.New("offline")
	err = c.Logout(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logout")
}
