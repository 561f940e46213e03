package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proposal-ai-api/internal/config"
)

// unreachable 指向无人监听的端口
func unreachable(t *testing.T) *Client {
	t.Helper()
	c := NewClientNoPing(&config.RedisConfig{
		Host:        "127.0.0.1",
		Port:        1,
		DialTimeout: 200 * time.Millisecond,
		KeyPrefix:   "proposal:",
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_KeyPrefix(t *testing.T) {
	c := unreachable(t)
	assert.Equal(t, "proposal:usage:stats:all", c.Key("usage:stats:all"))
}

func TestCache_ReadErrorSkipsLoader(t *testing.T) {
	cache := NewCache(unreachable(t), "usage_stats")
	called := false

	_, err := cache.GetOrLoadSafe(context.Background(), "usage:stats:all", time.Minute, func() (interface{}, error) {
		called = true
		return map[string]int{"n": 1}, nil
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestRateLimiter_BackendDown(t *testing.T) {
	l := NewRateLimiter(unreachable(t))

	ok, remaining, err := l.Allow(context.Background(), BuildUserRateLimitKey("u1", "/v1/ai/generate"), 10, time.Minute)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Zero(t, remaining)
}

func TestHealthCheck_BackendDown(t *testing.T) {
	require.Error(t, unreachable(t).HealthCheck(context.Background()))
}

func TestBuildUserRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:u1:/v1/ai/audit", BuildUserRateLimitKey("u1", "/v1/ai/audit"))
}
