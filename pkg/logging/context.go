package logging

import (
	"context"
)

const (
	TraceIDKey        = "trace_id"
	ConversationIDKey = "conversation_id"
	ServiceNameKey    = "service_name"
	DispatcherKey     = "dispatcher"
)

type ctxKey string

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey(TraceIDKey), traceID)
}

func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ctxKey(ConversationIDKey), conversationID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ctxKey(ServiceNameKey), serviceName)
}

func WithDispatcher(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKey(DispatcherKey), name)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func GetConversationID(ctx context.Context) string {
	return stringValue(ctx, ConversationIDKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, ServiceNameKey)
}

func GetDispatcher(ctx context.Context) string {
	return stringValue(ctx, DispatcherKey)
}

func stringValue(ctx context.Context, key string) string {
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, TraceIDKey, traceID)
	}

	if conversationID := GetConversationID(ctx); conversationID != "" {
		fields = append(fields, ConversationIDKey, conversationID)
	}

	if dispatcher := GetDispatcher(ctx); dispatcher != "" {
		fields = append(fields, DispatcherKey, dispatcher)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, ServiceNameKey, serviceName)
	}

	return fields
}
