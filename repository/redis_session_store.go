package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartpigdefi/smartpig/logger"
	"github.com/smartpigdefi/smartpig/model"
)

// ICacheClient is the subset of the redis client the session store uses.
type ICacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisSessionStore keeps the snapshot under a single key without expiry.
type RedisSessionStore struct {
	client ICacheClient
	key    string
}

func NewRedisSessionStore(client ICacheClient, key string) *RedisSessionStore {
	return &RedisSessionStore{client: client, key: key}
}

func (s *RedisSessionStore) Save(ctx context.Context, snap *model.SessionSnapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		logger.Log.WithError(err).WithField("key", s.key).Error("Failed to save session to redis")
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Load(ctx context.Context) (*model.SessionSnapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return decodeSnapshot(data)
}

func (s *RedisSessionStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
