package config

import (
	"fmt"
	"strings"
	"time"
)

// TokenStoreKind selects where session tokens are persisted.
type TokenStoreKind string

const (
	// TokenStoreMemory keeps tokens in process memory.
	TokenStoreMemory TokenStoreKind = "memory"
	// TokenStoreRedis keeps tokens in Redis so several processes can share one session.
	TokenStoreRedis TokenStoreKind = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for TokenStoreKind.
func (k *TokenStoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "memory", "redis":
		*k = TokenStoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid TokenStoreKind: %q (valid options: memory, redis)", v)
	}
}

// AuthConfig groups all session and token related configuration.
type AuthConfig struct {
	// AccessTokenLifetime is used when the access token carries no readable exp claim.
	AccessTokenLifetime time.Duration `env:"AUTH_ACCESS_TOKEN_LIFETIME" envDefault:"20m"`

	// RefreshTokenLifetime bounds how long a stored session is kept.
	RefreshTokenLifetime time.Duration `env:"AUTH_REFRESH_TOKEN_LIFETIME" envDefault:"168h"`

	// RefreshSkew is how long before access token expiry the proactive refresh fires.
	RefreshSkew time.Duration `env:"AUTH_REFRESH_SKEW" envDefault:"5m"`

	// TokenStore selects the token store backend.
	TokenStore TokenStoreKind `env:"AUTH_TOKEN_STORE" envDefault:"memory"`

	// SessionName namespaces the stored session (one per logical user of this process).
	SessionName string `env:"AUTH_SESSION_NAME" envDefault:"default"`

	// Email and Password enable an optional login at startup.
	Email    string `env:"AUTH_EMAIL"`
	Password string `env:"AUTH_PASSWORD"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.AccessTokenLifetime <= 0 {
		a.AccessTokenLifetime = 20 * time.Minute
	}
	if a.RefreshTokenLifetime <= 0 {
		a.RefreshTokenLifetime = 7 * 24 * time.Hour
	}
	if a.RefreshSkew < 0 {
		a.RefreshSkew = 0
	}
	// A skew that swallows the whole lifetime would refresh in a hot loop.
	if a.RefreshSkew >= a.AccessTokenLifetime {
		a.RefreshSkew = a.AccessTokenLifetime / 4
	}
	if a.TokenStore == "" {
		a.TokenStore = TokenStoreMemory
	}
	a.SessionName = strings.TrimSpace(a.SessionName)
	if a.SessionName == "" {
		a.SessionName = "default"
	}
	a.Email = strings.TrimSpace(a.Email)
}

// HasCredentials returns true if startup login credentials are configured.
func (a *AuthConfig) HasCredentials() bool {
	return a.Email != "" && a.Password != ""
}
