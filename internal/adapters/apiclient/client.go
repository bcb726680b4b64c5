// Package apiclient is the authenticated request pipeline for the backend API.
//
// Every request carries the current bearer token when one exists. A 401 triggers
// at most one shared token refresh and exactly one retry of the same request;
// 403 and 429 are surfaced as typed errors without touching the session.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	apperrors "github.com/dkl/dkl-client/internal/errors"
	"github.com/dkl/dkl-client/internal/observability/metrics"
)

// HeaderRequestID correlates a request and its retry in server logs.
const HeaderRequestID = "X-Request-ID"

const (
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 4 << 10
)

// TokenProvider is the slice of the token lifecycle manager the pipeline needs.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, bool)
	Refresh(ctx context.Context) (string, error)
}

// SessionEndedFunc is called when the pipeline concludes the user must log in again.
type SessionEndedFunc func(ctx context.Context, cause error)

// Options configures a Client.
type Options struct {
	BaseURL        string        // required
	Tokens         TokenProvider // required
	HTTPClient     *http.Client
	Timeout        time.Duration
	UserAgent      string
	Logger         *slog.Logger
	Metrics        metrics.Sink
	OnSessionEnded SessionEndedFunc
	// NewRequestID overrides request id generation, mainly for tests.
	NewRequestID func() string
}

// Client sends requests through the authenticated pipeline.
type Client struct {
	baseURL        string
	tokens         TokenProvider
	http           *http.Client
	userAgent      string
	logger         *slog.Logger
	metrics        metrics.Sink
	onSessionEnded SessionEndedFunc
	newRequestID   func() string
}

// New constructs a Client.
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("Tokens is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		hc = &http.Client{Timeout: timeout, Jar: jar}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	newID := opts.NewRequestID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Client{
		baseURL:        baseURL,
		tokens:         opts.Tokens,
		http:           hc,
		userAgent:      opts.UserAgent,
		logger:         logger.With("component", "apiclient"),
		metrics:        metrics.OrNoop(opts.Metrics),
		onSessionEnded: opts.OnSessionEnded,
		newRequestID:   newID,
	}, nil
}

// BaseURL returns the resolved API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Do sends req through the pipeline. On success the caller owns resp.Body.
// On any error the response body has already been consumed and closed.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = c.newRequestID()
	}

	token, _ := c.tokens.AccessToken(ctx)
	resp, err := c.send(ctx, req, getBody, requestID, token)
	if err != nil {
		c.record(req.Method, 0, false, start, err)
		return nil, err
	}

	retried := false
	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		retried = true

		next, rerr := c.tokenForRetry(ctx, token)
		if rerr != nil {
			c.record(req.Method, http.StatusUnauthorized, retried, start, rerr)
			return nil, rerr
		}

		resp, err = c.send(ctx, req, getBody, requestID, next)
		if err != nil {
			c.record(req.Method, 0, retried, start, err)
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			discard(resp)
			uerr := apperrors.Unauthenticated("request rejected after token refresh", nil)
			c.sessionEnded(ctx, uerr)
			c.record(req.Method, http.StatusUnauthorized, retried, start, uerr)
			return nil, uerr
		}
	}

	if err := classify(req.Method, req.URL.Path, resp); err != nil {
		c.record(req.Method, resp.StatusCode, retried, start, err)
		return nil, err
	}

	c.record(req.Method, resp.StatusCode, retried, start, nil)
	return resp, nil
}

// tokenForRetry picks the token for the single retry. If another request already
// replaced the token the one we sent with, that token is reused without a refresh.
func (c *Client) tokenForRetry(ctx context.Context, sent string) (string, error) {
	if current, ok := c.tokens.AccessToken(ctx); ok && current != "" && current != sent {
		c.logger.DebugContext(ctx, "token already rotated, retrying without refresh")
		return current, nil
	}

	next, err := c.tokens.Refresh(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("waiting for token refresh: %w", ctxErr)
		}
		// A login may have replaced the session while the refresh was failing.
		if current, ok := c.tokens.AccessToken(ctx); ok && current != "" && current != sent {
			return current, nil
		}
		uerr := apperrors.Unauthenticated("session could not be refreshed", err)
		c.sessionEnded(ctx, uerr)
		return "", uerr
	}
	return next, nil
}

func (c *Client) send(
	ctx context.Context,
	orig *http.Request,
	getBody func() (io.ReadCloser, error),
	requestID, token string,
) (*http.Response, error) {
	req := orig.Clone(ctx)
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		req.Body = body
		req.GetBody = getBody
	}

	req.Header.Set(HeaderRequestID, requestID)
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Del("Authorization")
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func (c *Client) sessionEnded(ctx context.Context, cause error) {
	c.logger.WarnContext(ctx, "session ended", "error", cause)
	if c.onSessionEnded != nil {
		c.onSessionEnded(ctx, cause)
	}
}

func (c *Client) record(method string, status int, retried bool, start time.Time, err error) {
	metrics.EmitRequest(c.metrics, metrics.RequestMetric{
		Method:   method,
		Status:   status,
		Retried:  retried,
		Duration: time.Since(start),
		Err:      err,
	})
}

// replayableBody makes the request body readable once per attempt.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	closeErr := req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close request body: %w", closeErr)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
