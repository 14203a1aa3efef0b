package eventbus

import (
	"context"
	"fmt"

	"courier/pkg/cel"
	"courier/pkg/models"
)

// Mapper projects an event onto a derived feed. ok=false skips the event.
type Mapper[T any] func(ev models.Event) (v T, ok bool)

// Derive subscribes fn to the values mapper extracts from published
// events. Derived feeds see only events that already passed dedup.
func Derive[T any](b *Bus, feed string, mapper Mapper[T], fn func(T)) *Subscription {
	return b.subscribe(feed, func(ev models.Event) {
		if v, ok := mapper(ev); ok {
			fn(v)
		}
	})
}

// All passes every event.
func All(ev models.Event) (models.Event, bool) {
	return ev, true
}

// Messages yields the message items of every received batch.
func Messages(ev models.Event) ([]models.MessageItem, bool) {
	received, ok := ev.Payload.(models.ItemsReceived)
	if !ok {
		return nil, false
	}

	var out []models.MessageItem
	for _, item := range received.Items {
		if m, ok := item.(models.MessageItem); ok {
			out = append(out, m)
		}
	}
	return out, len(out) > 0
}

// RemoteMessages is Messages restricted to items not sent by the local user.
func RemoteMessages(ev models.Event) ([]models.MessageItem, bool) {
	msgs, ok := Messages(ev)
	if !ok {
		return nil, false
	}

	var out []models.MessageItem
	for _, m := range msgs {
		if !m.IsFromMe {
			out = append(out, m)
		}
	}
	return out, len(out) > 0
}

func StatusChanges(ev models.Event) (models.StatusItem, bool) {
	changed, ok := ev.Payload.(models.ItemStatusChanged)
	if !ok {
		return models.StatusItem{}, false
	}
	return changed.Item, true
}

// OfType passes events whose tag is one of types.
func OfType(types ...models.EventType) Mapper[models.Event] {
	allowed := make(map[models.EventType]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return func(ev models.Event) (models.Event, bool) {
		_, ok := allowed[ev.Type()]
		return ev, ok
	}
}

// Filter decides whether an event belongs on a feed.
type Filter interface {
	Match(ctx context.Context, ev models.Event) (bool, error)
}

// Where passes events the filter matches. An evaluation error excludes
// the event.
func Where(f Filter) Mapper[models.Event] {
	return func(ev models.Event) (models.Event, bool) {
		ok, err := f.Match(context.Background(), ev)
		return ev, err == nil && ok
	}
}

// NewExpressionFilter compiles a CEL predicate over the event's type and
// payload, e.g. `type == "items-received"`.
func NewExpressionFilter(expression string) (Filter, error) {
	eval, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}

	f, err := eval.CompileFilter(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expression, err)
	}
	return f, nil
}
