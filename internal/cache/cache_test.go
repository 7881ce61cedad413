package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/kiranshivaraju/noosphera/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	return setupRedisImage(t, "redis:7-alpine")
}

func setupRedisImage(t *testing.T, image string) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCache("not-a-redis-url")
	assert.Error(t, err)
}

func TestRateLimitKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 42, 0, time.UTC)

	key := cache.RateLimitKey("a1b2c3d4", at, time.Minute)
	assert.Equal(t, "ratelimit:a1b2c3d4:1772366400", key)

	sameWindow := cache.RateLimitKey("a1b2c3d4", at.Add(10*time.Second), time.Minute)
	assert.Equal(t, key, sameWindow)

	nextWindow := cache.RateLimitKey("a1b2c3d4", at.Add(time.Minute), time.Minute)
	assert.NotEqual(t, key, nextWindow)

	assert.NotEqual(t, key, cache.RateLimitKey("ffffffff", at, time.Minute))
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	assert.NoError(t, rc.Ping(context.Background()))
}

func TestIncrWithExpiry_Counts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := rc.IncrWithExpiry(ctx, "ratelimit:test", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	n, err := rc.IncrWithExpiry(ctx, "ratelimit:expiring", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	time.Sleep(1500 * time.Millisecond)

	n, err = rc.IncrWithExpiry(ctx, "ratelimit:expiring", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counter should restart after expiry")
}

func TestIncrWithExpiry_Redis6(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedisImage(t, "redis:6-alpine")
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		n, err := rc.IncrWithExpiry(ctx, "ratelimit:legacy", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
}
