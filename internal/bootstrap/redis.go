package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkl/dkl-client/config"
)

const (
	redisPingTimeout = 5 * time.Second
	redisClientName  = "dkl-client"
)

// RedisOptions configures the connection backing the redis token store.
type RedisOptions struct {
	Config config.RedisConfig
	Logger *slog.Logger
}

// ConnectRedis opens the token store connection and pings it once.
//
//nolint:ireturn // the concrete client depends on the configured topology.
func ConnectRedis(ctx context.Context, opts RedisOptions) (redis.UniversalClient, error) {
	uopts, mode, err := universalOptions(opts.Config)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(uopts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis (%s): %w", mode, pingErr)
	}

	if opts.Logger != nil {
		opts.Logger.InfoContext(ctx, "token store connected to redis",
			"mode", mode, "addrs", strings.Join(uopts.Addrs, ","), "db", uopts.DB)
	}
	return client, nil
}

// universalOptions maps the config onto go-redis options. Credentials never
// appear in the returned mode, which is safe to log.
func universalOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	opts := &redis.UniversalOptions{
		ClientName: redisClientName,
		Password:   cfg.Password,
		DB:         cfg.DB,
	}

	switch {
	case cfg.UseCluster:
		opts.Addrs = normalizeAddrs(cfg.ClusterNodes)
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("REDIS_CLUSTER_NODES is required when REDIS_USE_CLUSTER is set")
		}
		// Cluster mode has a single keyspace.
		opts.DB = 0
		opts.IsClusterMode = true
		return opts, "cluster", nil

	case cfg.UseSentinel:
		opts.Addrs = normalizeAddrs(cfg.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("REDIS_SENTINEL_NODES is required when REDIS_USE_SENTINEL is set")
		}
		if strings.TrimSpace(cfg.SentinelMasterName) == "" {
			return nil, "", errors.New("REDIS_SENTINEL_MASTER_NAME is required when REDIS_USE_SENTINEL is set")
		}
		opts.MasterName = cfg.SentinelMasterName
		opts.SentinelPassword = cfg.SentinelPassword
		return opts, "sentinel:" + cfg.SentinelMasterName, nil
	}

	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, "", errors.New("REDIS_URI is required for a single redis node")
	}
	if !strings.HasPrefix(uri, "redis://") && !strings.HasPrefix(uri, "rediss://") {
		opts.Addrs = []string{uri}
		return opts, "single", nil
	}

	parsed, err := redis.ParseURL(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse REDIS_URI: %w", err)
	}
	opts.Addrs = []string{parsed.Addr}
	opts.Username = parsed.Username
	if parsed.Password != "" {
		opts.Password = parsed.Password
	}
	opts.DB = parsed.DB
	opts.TLSConfig = parsed.TLSConfig
	return opts, "single", nil
}

func normalizeAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
