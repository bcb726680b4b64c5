package config

import (
	"strings"
	"time"
)

// RealtimeConfig controls the live steps counter.
type RealtimeConfig struct {
	// StreamPath is the websocket endpoint, relative to the API base address.
	StreamPath string `env:"REALTIME_STREAM_PATH" envDefault:"/api/ws/steps"`

	// PollPath is the REST endpoint used while in polling fallback.
	PollPath string `env:"REALTIME_POLL_PATH" envDefault:"/api/total-steps"`

	// Channels are sent in the subscribe message after the stream opens.
	Channels []string `env:"REALTIME_CHANNELS" envDefault:"total_updates,step_updates,leaderboard_updates" envSeparator:","`

	// ReconnectInterval is the delay before the first reconnect attempt.
	ReconnectInterval time.Duration `env:"REALTIME_RECONNECT_INTERVAL" envDefault:"2s"`

	// ReconnectBackoff multiplies the delay after each failed attempt. 1 keeps it fixed.
	ReconnectBackoff float64 `env:"REALTIME_RECONNECT_BACKOFF" envDefault:"1"`

	// MaxReconnectInterval caps the reconnect delay when backoff is enabled.
	MaxReconnectInterval time.Duration `env:"REALTIME_MAX_RECONNECT_INTERVAL" envDefault:"30s"`

	// MaxReconnectAttempts is the number of consecutive stream failures before polling takes over.
	MaxReconnectAttempts int `env:"REALTIME_MAX_RECONNECT_ATTEMPTS" envDefault:"3"`

	// StableConnection is how long a stream must stay open before failed attempts are forgotten.
	StableConnection time.Duration `env:"REALTIME_STABLE_CONNECTION" envDefault:"30s"`

	// PollInterval is the period of the polling fallback.
	PollInterval time.Duration `env:"REALTIME_POLL_INTERVAL" envDefault:"10s"`

	// ReUpgradeInterval is how often polling fallback retries the stream. 0 means never.
	ReUpgradeInterval time.Duration `env:"REALTIME_REUPGRADE_INTERVAL" envDefault:"0s"`

	// HandshakeTimeout bounds the websocket opening handshake.
	HandshakeTimeout time.Duration `env:"REALTIME_HANDSHAKE_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to realtime configuration values.
func (r *RealtimeConfig) Sanitize() {
	r.StreamPath = ensureLeadingSlash(r.StreamPath, "/api/ws/steps")
	r.PollPath = ensureLeadingSlash(r.PollPath, "/api/total-steps")

	channels := make([]string, 0, len(r.Channels))
	for _, ch := range r.Channels {
		if trimmed := strings.TrimSpace(ch); trimmed != "" {
			channels = append(channels, trimmed)
		}
	}
	r.Channels = channels

	if r.ReconnectInterval <= 0 {
		r.ReconnectInterval = 2 * time.Second
	}
	if r.ReconnectBackoff < 1 {
		r.ReconnectBackoff = 1
	}
	if r.MaxReconnectInterval < r.ReconnectInterval {
		r.MaxReconnectInterval = r.ReconnectInterval
	}
	if r.MaxReconnectAttempts < 1 {
		r.MaxReconnectAttempts = 1
	}
	if r.StableConnection <= 0 {
		r.StableConnection = 30 * time.Second
	}
	if r.PollInterval <= 0 {
		r.PollInterval = 10 * time.Second
	}
	if r.ReUpgradeInterval < 0 {
		r.ReUpgradeInterval = 0
	}
	if r.HandshakeTimeout <= 0 {
		r.HandshakeTimeout = 10 * time.Second
	}
}

func ensureLeadingSlash(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return fallback
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
