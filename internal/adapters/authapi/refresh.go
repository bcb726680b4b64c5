// Package authapi talks to the backend's account endpoints.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/dkl/dkl-client/internal/domain/auth"
)

// PathRefresh is the token refresh endpoint.
const PathRefresh = "/api/auth/refresh"

const defaultRefreshTimeout = 15 * time.Second

// RefreshTransportOptions configures a RefreshTransport.
type RefreshTransportOptions struct {
	BaseURL string // required
	Timeout time.Duration
	// HTTPClient must not be the authenticated pipeline's client.
	HTTPClient *http.Client
	UserAgent  string
}

// RefreshTransport performs the bare refresh call. It deliberately bypasses the
// authenticated pipeline so a refresh can never recurse into another refresh.
type RefreshTransport struct {
	url       string
	client    *http.Client
	userAgent string
}

// NewRefreshTransport builds a RefreshTransport.
func NewRefreshTransport(opts RefreshTransportOptions) (*RefreshTransport, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("BaseURL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultRefreshTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &RefreshTransport{url: base + PathRefresh, client: hc, userAgent: opts.UserAgent}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	Success      bool   `json:"success"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	Error        string `json:"error,omitempty"`
}

// Refresh exchanges refreshToken for a new pair. Non-2xx, success=false or a
// response missing either token is a failure.
func (t *RefreshTransport) Refresh(ctx context.Context, refreshToken string) (domainauth.TokenPair, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return domainauth.TokenPair{}, fmt.Errorf("encode refresh payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return domainauth.TokenPair{}, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return domainauth.TokenPair{}, fmt.Errorf("refresh request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domainauth.TokenPair{}, handleErrorResponse("refresh", resp)
	}

	var out refreshResponse
	if err := decodeAndClose(resp, &out); err != nil {
		return domainauth.TokenPair{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if !out.Success {
		return domainauth.TokenPair{}, fmt.Errorf("refresh rejected: %s", fallbackString(out.Error, "success=false"))
	}

	pair := domainauth.TokenPair{AccessToken: out.Token, RefreshToken: out.RefreshToken}
	if !pair.Valid() {
		return domainauth.TokenPair{}, errors.New("refresh response is missing tokens")
	}
	return pair, nil
}

func decodeAndClose(resp *http.Response, out any) error {
	decodeErr := json.NewDecoder(resp.Body).Decode(out)
	_, _ = io.Copy(io.Discard, resp.Body)
	closeErr := resp.Body.Close()
	if decodeErr != nil {
		return decodeErr
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return nil
}

func handleErrorResponse(op string, resp *http.Response) error {
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if readErr != nil {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return errors.Join(
				fmt.Errorf("read %s error response: %w", op, readErr),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("read %s error response: %w", op, readErr)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return fmt.Errorf("%s %s: %s", op, resp.Status, strings.TrimSpace(string(respBody)))
}

func fallbackString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
