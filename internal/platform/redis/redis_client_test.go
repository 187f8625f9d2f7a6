package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("REDIS_PASSWORD", "secret")

	cfg := LoadConfigFromEnv()

	assert.Equal(t, Config{Host: "cache", Port: "6379", Password: "secret"}, cfg)
	assert.Equal(t, "cache:6379", cfg.Addr())
}

func TestNewRedisClient_NotConfigured(t *testing.T) {
	t.Parallel()

	rdb, err := NewRedisClient(context.Background(), Config{Port: "6379"})

	assert.Nil(t, rdb)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	t.Parallel()

	rdb, err := NewRedisClient(context.Background(), Config{Host: "127.0.0.1", Port: "1"})

	assert.Nil(t, rdb)
	assert.Error(t, err)
}
