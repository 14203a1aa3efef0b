package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithConversationID(ctx, "chat-1")
	ctx = WithDispatcher(ctx, "messages")
	ctx = WithServiceName(ctx, "courier")

	assert.Equal(t, []interface{}{
		"trace_id", "trace-1",
		"conversation_id", "chat-1",
		"dispatcher", "messages",
		"service_name", "courier",
	}, GetLogFields(ctx))
}

func TestContextKeysDoNotCollideWithPlainStrings(t *testing.T) {
	ctx := context.WithValue(context.Background(), "trace_id", "plain") //nolint:staticcheck
	assert.Equal(t, "", GetTraceID(ctx))
}
