package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dkl/dkl-client/config"
	"github.com/dkl/dkl-client/internal/adapters/apiclient"
	"github.com/dkl/dkl-client/internal/adapters/authapi"
	"github.com/dkl/dkl-client/internal/adapters/memory"
	redisadapter "github.com/dkl/dkl-client/internal/adapters/redis"
	"github.com/dkl/dkl-client/internal/adapters/stepsapi"
	"github.com/dkl/dkl-client/internal/adapters/wsstream"
	"github.com/dkl/dkl-client/internal/domain/realtime"
	"github.com/dkl/dkl-client/internal/observability/metrics"
	"github.com/dkl/dkl-client/internal/ports"
	"github.com/dkl/dkl-client/internal/service"
)

// ClientDeps groups dependencies for building the client runtime.
type ClientDeps struct {
	Config *config.AppConfig
	Logger *slog.Logger
	// RedisClient backs the redis token store. Required when AUTH_TOKEN_STORE=redis.
	RedisClient redis.UniversalClient
	// OnValue and OnStateChange are forwarded to the steps counter.
	OnValue       func(realtime.CounterValue)
	OnStateChange func(from, to realtime.ConnectionState)
}

// Client holds the wired session and realtime services.
type Client struct {
	Tokens  *service.TokenManager
	API     *apiclient.Client
	Auth    *service.AuthService
	Counter *service.StepsCounter
	// Metrics is nil when the metrics endpoint is disabled.
	Metrics *metrics.PrometheusSink
}

// NewClient wires every adapter and service from configuration. It performs no network I/O.
func NewClient(deps ClientDeps) (*Client, error) {
	if deps.Config == nil {
		return nil, errors.New("client config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	promSink := buildMetrics(cfg.Observability, logger)
	var sink metrics.Sink = metrics.Noop{}
	if promSink != nil {
		sink = promSink
	}

	store, err := newTokenStore(cfg, deps.RedisClient)
	if err != nil {
		return nil, err
	}

	baseURL := cfg.APIBaseURL()
	transport, err := authapi.NewRefreshTransport(authapi.RefreshTransportOptions{
		BaseURL:   baseURL,
		Timeout:   cfg.API.RefreshTimeout,
		UserAgent: cfg.API.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("create refresh transport: %w", err)
	}

	tokens := service.NewTokenManager(service.TokenManagerOptions{
		Store:     store,
		Transport: transport,
		Config: service.TokenManagerConfig{
			AccessTokenLifetime: cfg.Auth.AccessTokenLifetime,
			RefreshSkew:         cfg.Auth.RefreshSkew,
			RefreshTimeout:      cfg.API.RefreshTimeout,
		},
		Logger:         logger,
		Metrics:        sink,
		OnSessionEnded: sessionEndedLogger(logger),
	})

	api, err := apiclient.New(apiclient.Options{
		BaseURL:   baseURL,
		Tokens:    tokens,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
		Logger:    logger,
		Metrics:   sink,
		OnSessionEnded: func(ctx context.Context, cause error) {
			sessionEndedLogger(logger)(ctx, cause)
			if clearErr := tokens.ClearSession(context.WithoutCancel(ctx)); clearErr != nil {
				logger.ErrorContext(ctx, "clear session after authentication failure", "error", clearErr)
			}
		},
	})
	if err != nil {
		tokens.Close()
		return nil, fmt.Errorf("create api client: %w", err)
	}

	authClient, err := authapi.NewClient(api)
	if err != nil {
		tokens.Close()
		return nil, fmt.Errorf("create auth api: %w", err)
	}

	fetcher, err := stepsapi.NewFetcher(stepsapi.FetcherOptions{
		BaseURL:   baseURL,
		Path:      cfg.Realtime.PollPath,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
	})
	if err != nil {
		tokens.Close()
		return nil, fmt.Errorf("create steps fetcher: %w", err)
	}

	counter := service.NewStepsCounter(service.StepsCounterOptions{
		Dialer:  newStreamDialer(cfg, logger),
		Fetcher: fetcher,
		Config: service.StepsCounterConfig{
			Channels:             cfg.Realtime.Channels,
			ReconnectInterval:    cfg.Realtime.ReconnectInterval,
			ReconnectBackoff:     cfg.Realtime.ReconnectBackoff,
			MaxReconnectInterval: cfg.Realtime.MaxReconnectInterval,
			MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
			StableConnection:     cfg.Realtime.StableConnection,
			PollInterval:         cfg.Realtime.PollInterval,
			ReUpgradeInterval:    cfg.Realtime.ReUpgradeInterval,
		},
		Logger:        logger,
		Metrics:       sink,
		OnStateChange: deps.OnStateChange,
		OnValue:       deps.OnValue,
	})

	return &Client{
		Tokens:  tokens,
		API:     api,
		Auth:    service.NewAuthService(service.AuthServiceOptions{API: authClient, Tokens: tokens, Logger: logger}),
		Counter: counter,
		Metrics: promSink,
	}, nil
}

// Close stops the counter and the refresh timer.
func (c *Client) Close() {
	c.Counter.Close()
	c.Tokens.Close()
}

//nolint:ireturn // the store backend is picked from configuration.
func newTokenStore(cfg *config.AppConfig, client redis.UniversalClient) (ports.TokenStore, error) {
	if !cfg.UsesRedisTokenStore() {
		return memory.NewTokenStore(), nil
	}
	if client == nil {
		return nil, errors.New("redis token store selected but no redis client provided")
	}
	return redisadapter.NewTokenStore(client, redisadapter.TokenStoreOptions{
		Prefix: cfg.Redis.KeyPrefix,
		Name:   cfg.Auth.SessionName,
		TTL:    cfg.Auth.RefreshTokenLifetime,
	}), nil
}

// newStreamDialer returns nil when no stream endpoint can be built, which the
// counter reports as the Failed state.
//
//nolint:ireturn // nil interface signals an unusable stream endpoint.
func newStreamDialer(cfg *config.AppConfig, logger *slog.Logger) ports.StreamDialer {
	dialer, err := wsstream.NewDialer(wsstream.DialerOptions{
		BaseURL:          cfg.APIBaseURL(),
		Path:             cfg.Realtime.StreamPath,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
	})
	if err != nil {
		logger.Error("stream endpoint unusable", "error", err)
		return nil
	}
	return dialer
}

func buildMetrics(cfg config.ObservabilityConfig, logger *slog.Logger) *metrics.PrometheusSink {
	if !cfg.Metrics.IsEnabled() {
		return nil
	}
	return metrics.NewPrometheusSink(metrics.PrometheusConfig{
		Namespace: cfg.Metrics.Namespace,
		Logger:    logger,
	})
}

func sessionEndedLogger(logger *slog.Logger) func(ctx context.Context, cause error) {
	return func(ctx context.Context, cause error) {
		logger.WarnContext(ctx, "session ended, login required", "error", cause)
	}
}
