package config

import (
	"strings"
	"time"
)

// DefaultProductionBaseURL is the backend host used outside development.
const DefaultProductionBaseURL = "https://dklemailservice.onrender.com"

// APIConfig contains backend API configuration.
type APIConfig struct {
	// BaseURL is the production backend address.
	BaseURL string `env:"API_BASE_URL" envDefault:"https://dklemailservice.onrender.com"`

	// DevProxyURL is the local development proxy that forwards /api/* to the backend.
	DevProxyURL string `env:"DEV_PROXY_URL" envDefault:"http://localhost:3000"`

	// Timeout bounds every request made by the authenticated API client.
	Timeout time.Duration `env:"API_TIMEOUT" envDefault:"30s"`

	// RefreshTimeout bounds the bare refresh transport call.
	RefreshTimeout time.Duration `env:"API_REFRESH_TIMEOUT" envDefault:"15s"`

	// UserAgent is sent on every outbound request.
	UserAgent string `env:"API_USER_AGENT" envDefault:"dkl-client"`
}

// Sanitize applies guardrails to API configuration values.
func (a *APIConfig) Sanitize() {
	a.BaseURL = strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if a.BaseURL == "" {
		a.BaseURL = DefaultProductionBaseURL
	}
	a.DevProxyURL = strings.TrimRight(strings.TrimSpace(a.DevProxyURL), "/")
	if a.Timeout <= 0 {
		a.Timeout = 30 * time.Second
	}
	if a.RefreshTimeout <= 0 {
		a.RefreshTimeout = 15 * time.Second
	}
	if strings.TrimSpace(a.UserAgent) == "" {
		a.UserAgent = "dkl-client"
	}
}

// ResolveBaseURL picks the dev proxy in development mode, the backend otherwise.
func (a *APIConfig) ResolveBaseURL(dev bool) string {
	if dev && a.DevProxyURL != "" {
		return a.DevProxyURL
	}
	return a.BaseURL
}
