package bootstrap

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkl/dkl-client/config"
)

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("DEV", "true")
	t.Setenv("DEV_PROXY_URL", "http://localhost:5173/")
	t.Setenv("AUTH_TOKEN_STORE", "redis")
	t.Setenv("REALTIME_POLL_INTERVAL", "3s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5173", cfg.APIBaseURL())
	assert.Equal(t, config.TokenStoreRedis, cfg.Auth.TokenStore)
	assert.Equal(t, 3*time.Second, cfg.Realtime.PollInterval)
	assert.Equal(t, slog.LevelDebug, cfg.Observability.SlogLevel())
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	t.Setenv("AUTH_TOKEN_STORE", "postgres")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestInitLogger_SetsDefaultLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := InitLogger(slog.LevelWarn)

	ctx := context.Background()
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.Same(t, logger, slog.Default())
}
