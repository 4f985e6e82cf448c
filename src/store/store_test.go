package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	val, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, s.Set(ctx, "group-1"))
	val, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "group-1", val)

	require.NoError(t, s.Clear(ctx))
	val, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "carebridge:chat:", cfg.Prefix)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_CHAT_PREFIX", "test:chat:")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, "redis.example.com:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, "test:chat:", cfg.Prefix)
}

func TestRedisConfigFromEnvInvalidDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, 0, cfg.DB) // falls back to default
}
