package broker

import (
	"context"

	"courier/pkg/models"
)

// Producer writes JSON messages to a topic.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
	Close() error
}

// Consumer feeds change records from a topic to a handler until ctx ends.
type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, rec models.ChangeRecord) error
