// Package stepsapi reads the public steps total over HTTP.
package stepsapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkl/dkl-client/internal/domain/realtime"
	apperrors "github.com/dkl/dkl-client/internal/errors"
	"github.com/dkl/dkl-client/internal/ports"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 16 << 10
)

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	BaseURL    string // required
	Path       string // required
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

// Fetcher polls the public total endpoint. The endpoint is anonymous, so it
// uses a plain client rather than the authenticated pipeline.
type Fetcher struct {
	url       string
	client    *http.Client
	userAgent string
}

var _ ports.TotalFetcher = (*Fetcher)(nil)

// NewFetcher builds a Fetcher.
func NewFetcher(opts FetcherOptions) (*Fetcher, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("BaseURL is required")
	}
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, errors.New("Path is required")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Fetcher{url: base + path, client: hc, userAgent: opts.UserAgent}, nil
}

// FetchTotal returns the current total_steps.
func (f *Fetcher) FetchTotal(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return 0, fmt.Errorf("create total request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("total request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, fmt.Errorf("read total response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, apperrors.Upstream(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	total, err := realtime.DecodeTotal(body)
	if err != nil {
		return 0, apperrors.MalformedMessage("invalid total response", err)
	}
	return total, nil
}
