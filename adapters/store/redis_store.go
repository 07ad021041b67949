package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is where the session is kept unless configured otherwise
const DefaultKey = "faucetadmin:session"

// RedisStore is a Redis implementation of the CredentialStore interface. The
// session outlives the process: a restarted console confirms it with
// /admin/me and keeps using it until the access credential expires.
type RedisStore struct {
	client *redis.Client
	key    string
	maxTTL time.Duration
}

// NewRedisStore creates a new Redis store. maxTTL bounds how long a session can
// survive without being refreshed; zero means no bound.
func NewRedisStore(client *redis.Client, key string, maxTTL time.Duration) ports.CredentialStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{
		client: client,
		key:    key,
		maxTTL: maxTTL,
	}
}

// Get loads the session from Redis
func (s *RedisStore) Get(ctx context.Context) (*core.Session, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrNoCredential
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session core.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// Set writes the session to Redis
func (s *RedisStore) Set(ctx context.Context, session *core.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.client.Set(ctx, s.key, payload, s.maxTTL).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Clear deletes the session from Redis
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
