package apiclient

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/dkl/dkl-client/internal/errors"
)

// classify turns a non-2xx response into a typed error and releases the body.
// It returns nil for 2xx responses and leaves their body untouched.
func classify(method, path string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body := readErrorBody(resp)
	switch resp.StatusCode {
	case http.StatusForbidden:
		return apperrors.Forbidden(method, path)
	case http.StatusTooManyRequests:
		return apperrors.RateLimited(method, path, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	default:
		return apperrors.Upstream(resp.StatusCode, body)
	}
}

// readErrorBody reads a bounded error body and prefers the backend's
// {"error": ...} or {"message": ...} text when present.
func readErrorBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unparseable or past values yield 0.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
