package redis

// Package redis provides Redis-based adapters for the dkl client.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/dkl/dkl-client/internal/domain/auth"
	"github.com/dkl/dkl-client/internal/ports"
)

const (
	defaultPrefix      = "dkl:session:"
	defaultSessionName = "default"
	maxSaveUserRetries = 3
)

// TokenStoreOptions configures a Redis token store.
type TokenStoreOptions struct {
	// Prefix is prepended to the session name. Defaults to "dkl:session:".
	Prefix string
	// Name identifies the session, letting several clients share one Redis.
	Name string
	// TTL bounds how long a stored session survives. Zero keeps it until cleared.
	TTL time.Duration
}

// TokenStore keeps the whole session as one JSON value under a single key,
// so a reader never sees an access token paired with another session's refresh token.
type TokenStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewTokenStore creates a Redis-backed token store.
func NewTokenStore(client redis.UniversalClient, opts TokenStoreOptions) *TokenStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	name := opts.Name
	if name == "" {
		name = defaultSessionName
	}
	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &TokenStore{client: client, key: prefix + name, ttl: ttl}
}

// Key returns the Redis key holding the session.
func (s *TokenStore) Key() string { return s.key }

func (s *TokenStore) Load(ctx context.Context) (domainauth.Session, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ports.ErrNoSession
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}
	return decodeSession(data)
}

func (s *TokenStore) Save(ctx context.Context, sess domainauth.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

// SaveUser rewrites the cached profile under WATCH so a concurrent token
// replacement is never overwritten with the old pair.
func (s *TokenStore) SaveUser(ctx context.Context, user domainauth.UserProfile) error {
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, s.key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ports.ErrNoSession
			}
			return fmt.Errorf("redis get: %w", err)
		}
		sess, err := decodeSession(data)
		if err != nil {
			return err
		}
		sess.User = user
		out, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, out, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxSaveUserRetries; i++ {
		err := s.client.Watch(ctx, txf, s.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("save user: %w", redis.TxFailedErr)
}

func (s *TokenStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func decodeSession(data []byte) (domainauth.Session, error) {
	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}
