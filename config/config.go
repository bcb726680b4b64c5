package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - api.go: Backend API address and HTTP client settings
//   - auth.go: Token lifetimes and token store selection
//   - redis.go: Redis connection used by the redis token store
//   - realtime.go: Steps counter streaming and polling behaviour
//   - observability.go: Logging and metrics
type AppConfig struct {
	// IsDev switches the API base address to the local development proxy.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Backend API configuration
	API APIConfig

	// Session and token configuration
	Auth AuthConfig

	// Redis configuration (used when AUTH_TOKEN_STORE=redis)
	Redis RedisConfig `envPrefix:"REDIS_"`

	// Real-time counter configuration
	Realtime RealtimeConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.API.Sanitize()
	c.Auth.Sanitize()
	c.Redis.Sanitize()
	c.Realtime.Sanitize()
	c.Observability.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// APIBaseURL returns the backend address the client should talk to.
// Development mode goes through the local proxy; everything else hits the backend directly.
func (c *AppConfig) APIBaseURL() string {
	return c.API.ResolveBaseURL(c.IsDev)
}

// UsesRedisTokenStore returns true if tokens should be persisted in Redis.
func (c *AppConfig) UsesRedisTokenStore() bool {
	return c.Auth.TokenStore == TokenStoreRedis
}
