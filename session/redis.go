package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bastien2203/pi-medias/config"
	"github.com/Bastien2203/pi-medias/core/auth"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the token under one key, so several machines can share
// a session.
type RedisStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// ConnectRedis 初始化Redis连接 and checks it with PING.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStore(client, cfg.SessionKey), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key, now: time.Now}
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("failed to get Redis key: %w", err)
	}
	return token, nil
}

// Save stores the token. When the token carries an expiry the key expires
// with it.
func (s *RedisStore) Save(ctx context.Context, token string) error {
	var ttl time.Duration
	if exp, ok := auth.Expiry(token); ok {
		ttl = exp.Sub(s.now())
		if ttl <= 0 {
			return s.Clear(ctx)
		}
	}
	if err := s.client.Set(ctx, s.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set Redis key: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete Redis key: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}
