package store

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string // Redis password, default ""
	DB       int    // Redis database number, default 0
	Prefix   string // Key prefix, default "carebridge:chat:"
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "carebridge:chat:",
	}
}

// RedisConfigFromEnv loads Redis configuration from environment
// variables, falling back to defaults for any missing values.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_CHAT_PREFIX"); prefix != "" {
		cfg.Prefix = prefix
	}
	return cfg
}

// RedisStore keeps the AI-group pointer in Redis, keyed per user.
type RedisStore struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

// NewRedisStore creates a store for the given user's AI-group slot.
func NewRedisStore(cfg *RedisConfig, userID string, logger zerolog.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{
		client: client,
		key:    cfg.Prefix + "ai_group:" + userID,
		logger: logger.With().Str("component", "group-store").Logger(),
	}
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, groupID string) error {
	return s.client.Set(ctx, s.key, groupID, 0).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
