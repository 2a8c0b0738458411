package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a token has no stored payload
var ErrNotFound = errors.New("session payload not found")

const keyPrefix = "sess:"

// Payload is what the cookie token resolves to server-side
type Payload struct {
	SessionID int64  `json:"sessionId"`
	Username  string `json:"username"`
	UserID    int64  `json:"userId"`
}

// Store persists session payloads keyed by token
type Store interface {
	Save(ctx context.Context, token string, payload Payload, ttl time.Duration) error
	Load(ctx context.Context, token string) (*Payload, error)
	Delete(ctx context.Context, token string) error
}

// RedisStore keeps payloads as JSON strings with a TTL
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store over an existing client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Connect initializes a Redis client from a redis:// URL or host:port
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func key(token string) string {
	return keyPrefix + token
}

func (s *RedisStore) Save(ctx context.Context, token string, payload Payload, ttl time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key(token), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session payload: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, token string) (*Payload, error) {
	raw, err := s.client.Get(ctx, key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session payload: %w", err)
	}
	var out Payload
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode session payload: %w", err)
	}
	return &out, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, key(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete session payload: %w", err)
	}
	return nil
}
