package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dkl/dkl-client/config"
	"github.com/dkl/dkl-client/internal/bootstrap"
	"github.com/dkl/dkl-client/internal/domain/realtime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
	logger := bootstrap.InitLogger(cfg.Observability.SlogLevel())

	if err := run(ctx, logger, &cfg); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) error {
	logStartupInfo(ctx, logger, cfg)

	redisClient, err := initRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	client, err := bootstrap.NewClient(bootstrap.ClientDeps{
		Config:      cfg,
		Logger:      logger,
		RedisClient: redisClient,
		OnValue: func(v realtime.CounterValue) {
			logger.Info("total steps", "value", v.Value, "source", string(v.Source))
		},
		OnStateChange: func(from, to realtime.ConnectionState) {
			logger.Info("steps connection", "from", from.String(), "to", to.String())
		},
	})
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}
	defer client.Close()

	if err := restoreSession(ctx, logger, cfg, client); err != nil {
		return err
	}

	if err := client.Counter.Start(ctx); err != nil {
		return fmt.Errorf("start steps counter: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-client.Counter.Done():
		}
		return nil
	})
	if client.Metrics != nil {
		server := bootstrap.NewMetricsServer(bootstrap.MetricsServerConfig{
			Addr:    cfg.Observability.Metrics.Addr,
			Handler: client.Metrics.Handler(),
			Logger:  logger,
		})
		g.Go(func() error {
			return bootstrap.ServeMetrics(gctx, server, logger)
		})
	}

	err = g.Wait()
	logger.InfoContext(ctx, "shutting down", "last_total", client.Counter.Value())
	return err
}

// restoreSession logs in with configured credentials, or resumes a session kept in the token store.
func restoreSession(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig, client *bootstrap.Client) error {
	if cfg.Auth.HasCredentials() {
		user, err := client.Auth.Login(ctx, cfg.Auth.Email, cfg.Auth.Password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		logger.InfoContext(ctx, "logged in", "user_id", user.ID, "email", user.Email)
		return nil
	}

	if client.Auth.IsAuthenticated(ctx) {
		client.Tokens.ScheduleProactiveRefresh(ctx)
		if _, err := client.Auth.Profile(ctx); err != nil {
			logger.WarnContext(ctx, "stored session could not be resumed", "error", err)
			return nil
		}
		logger.InfoContext(ctx, "resumed stored session")
	}
	return nil
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting dkl steps client",
		"api_base_url", cfg.APIBaseURL(),
		"dev", cfg.IsDev,
		"token_store", string(cfg.Auth.TokenStore),
		"metrics_enabled", cfg.Observability.Metrics.IsEnabled())
}

//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func initRedis(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	if !cfg.UsesRedisTokenStore() {
		return nil, nil
	}
	client, err := bootstrap.ConnectRedis(ctx, bootstrap.RedisOptions{Config: cfg.Redis, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}
