package broker

import (
	"context"
	"time"

	"courier/internal/eventbus"
	"courier/internal/logger"
	"courier/pkg/models"
)

const forwardTimeout = 10 * time.Second

// EventForwarder mirrors every bus event onto a topic, keyed by event type.
type EventForwarder struct {
	producer Producer
	topic    string
	logger   logger.Logger

	bus *eventbus.Bus
	sub *eventbus.Subscription
}

func NewEventForwarder(producer Producer, topic string, log logger.Logger) *EventForwarder {
	return &EventForwarder{producer: producer, topic: topic, logger: log.Component("forwarder")}
}

// Attach subscribes the forwarder to bus and holds a consumer slot on it,
// so dispatchers stay awake with no client stream connected.
func (f *EventForwarder) Attach(bus *eventbus.Bus) *eventbus.Subscription {
	if f.sub != nil {
		return f.sub
	}
	f.bus = bus
	f.sub = eventbus.Derive(bus, "forwarder", eventbus.All, f.Forward)
	bus.Attach()
	return f.sub
}

// Detach drops the subscription and releases the consumer slot. Events
// still queued for the forwarder are discarded.
func (f *EventForwarder) Detach() {
	if f.sub == nil {
		return
	}
	f.sub.Unsubscribe()
	f.bus.Detach()
	f.sub = nil
	f.bus = nil
}

func (f *EventForwarder) Forward(ev models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()

	if err := f.producer.Publish(ctx, f.topic, string(ev.Type()), ev); err != nil {
		f.logger.Errorw("Failed to forward event", "type", ev.Type(), "topic", f.topic, "error", err)
	}
}

// Ingestor is the handler side of the consumer.
type Ingestor interface {
	Ingest(ctx context.Context, rec models.ChangeRecord) error
}

// IngestHandler adapts an Ingestor, such as the store hub, to HandlerFunc.
func IngestHandler(in Ingestor) HandlerFunc {
	return in.Ingest
}
