//go:build integration

package store

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
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestCachedLookup_ServesFromCacheUntilInvalidated(t *testing.T) {
	client := setupRedis(t)
	inner := &flakyLookup{MemoryStore: NewMemoryStore()}
	inner.PutMessage(&RawMessage{GUID: "m1", ChatGUID: "c1", Subject: "first"})

	hub := NewHub(logger.NopLogger())
	cached := NewCachedLookup(inner, client, time.Minute, logger.NopLogger())
	cached.Follow(hub)
	ctx := context.Background()

	msg, err := cached.Message(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Subject)

	inner.PutMessage(&RawMessage{GUID: "m1", ChatGUID: "c1", Subject: "second"})
	msg, err = cached.Message(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Subject)
	assert.Equal(t, 1, inner.calls)

	hub.Updated.Publish(MessageNotification{ConversationID: "c1", IDs: []string{"m1"}})

	msg, err = cached.Message(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Subject)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedLookup_RoundTripsParts(t *testing.T) {
	client := setupRedis(t)
	mem := NewMemoryStore()
	mem.PutMessage(&RawMessage{GUID: "m1", ChatGUID: "c1", Parts: []interface{}{
		&RawTextChunk{MessageGUID: "m1", ChatGUID: "c1", Index: 0, Text: "hello"},
	}})
	cached := NewCachedLookup(mem, client, time.Minute, logger.NopLogger())
	ctx := context.Background()

	_, err := cached.Message(ctx, "m1")
	require.NoError(t, err)

	msg, err := cached.Message(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, msg.Parts, 1)
	chunk, ok := msg.Parts[0].(*RawTextChunk)
	require.True(t, ok)
	assert.Equal(t, "hello", chunk.Text)
}
