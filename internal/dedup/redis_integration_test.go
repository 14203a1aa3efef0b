//go:build integration

package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"courier/internal/logger"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:8.4.0-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opt, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opt)
	t.Cleanup(func() { client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(pingCtx).Err())

	return client
}

func TestRedisWindow_AdmitAndExpire(t *testing.T) {
	client := setupRedis(t)
	w := NewRedisWindow(NewRepository(client), time.Second, logger.NopLogger())
	ctx := context.Background()

	ok, err := w.Admit(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.Admit(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	size, err := w.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	assert.Eventually(t, func() bool {
		ok, err := w.Admit(ctx, "abc")
		return err == nil && ok
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRedisWindow_SharedBetweenInstances(t *testing.T) {
	client := setupRedis(t)
	a := NewRedisWindow(NewRepository(client), time.Minute, logger.NopLogger())
	b := NewRedisWindow(NewRepository(client), time.Minute, logger.NopLogger())
	ctx := context.Background()

	ok, err := a.Admit(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Admit(ctx, "shared")
	require.NoError(t, err)
	assert.False(t, ok)
}
