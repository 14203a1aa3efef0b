package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/pkg/circuitbreaker"
	pkgerrors "courier/pkg/errors"
	"courier/pkg/metrics"
)

const cacheKeyPrefixMessage = "courier:message:"

// CircuitBreakerLookup fails fast while the wrapped lookup keeps erroring.
// A missing entity is an answer, not a failure, and never trips it.
type CircuitBreakerLookup struct {
	lookup Lookup
	cb     *circuitbreaker.Wrapper
}

// WrapWithCircuitBreaker returns lookup unchanged when the breaker is
// disabled.
func WrapWithCircuitBreaker(lookup Lookup, name string, cfg config.CircuitBreakerConfig) Lookup {
	if !cfg.Enabled {
		return lookup
	}
	return &CircuitBreakerLookup{
		lookup: lookup,
		cb:     circuitbreaker.NewWrapper(circuitbreaker.FromConfig(name, cfg)),
	}
}

func (l *CircuitBreakerLookup) State() string {
	return l.cb.State().String()
}

func (l *CircuitBreakerLookup) Message(ctx context.Context, id string) (*RawMessage, error) {
	var notFound error
	msg, err := run(ctx, l.cb, func() (*RawMessage, error) {
		m, err := l.lookup.Message(ctx, id)
		if pkgerrors.IsNotFound(err) {
			notFound = err
			return nil, nil
		}
		return m, err
	})
	if err != nil {
		return nil, err
	}
	if notFound != nil {
		return nil, notFound
	}
	return msg, nil
}

func (l *CircuitBreakerLookup) Conversations(ctx context.Context, limit int) ([]RawChat, error) {
	return run(ctx, l.cb, func() ([]RawChat, error) {
		return l.lookup.Conversations(ctx, limit)
	})
}

func (l *CircuitBreakerLookup) ConversationCount(ctx context.Context) (int, error) {
	return run(ctx, l.cb, func() (int, error) {
		return l.lookup.ConversationCount(ctx)
	})
}

func (l *CircuitBreakerLookup) Contacts(ctx context.Context) ([]RawContact, error) {
	return run(ctx, l.cb, func() ([]RawContact, error) {
		return l.lookup.Contacts(ctx)
	})
}

func run[T any](ctx context.Context, cb *circuitbreaker.Wrapper, fn func() (T, error)) (T, error) {
	v, err := circuitbreaker.Run(ctx, cb, fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return v, pkgerrors.ErrServiceUnavailable.WithCause(err).WithDetail("breaker", cb.Name())
	}
	return v, err
}

// CachedLookup keeps resolved messages in Redis for ttl. Follow drops
// entries as soon as the source reports them updated or deleted, so a
// lookup made by a later subscriber sees the new row.
type CachedLookup struct {
	Lookup
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedLookup(lookup Lookup, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedLookup {
	return &CachedLookup{
		Lookup: lookup,
		client: client,
		ttl:    ttl,
		logger: log.Component("lookup-cache"),
	}
}

// Message serves from the cache and fills it on a miss. Cache errors fall
// through to the wrapped lookup.
func (l *CachedLookup) Message(ctx context.Context, id string) (*RawMessage, error) {
	key := cacheKeyPrefixMessage + id

	val, err := l.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var msg RawMessage
		if err := json.Unmarshal(val, &msg); err == nil {
			metrics.IncLookupCache("hit")
			return &msg, nil
		}
		l.logger.WarnwCtx(ctx, "Dropping undecodable cache entry", "key", key)
		l.client.Del(ctx, key)
	case errors.Is(err, redis.Nil):
	default:
		metrics.IncLookupCache("error")
		l.logger.WarnwCtx(ctx, "Lookup cache read failed", "error", err)
	}

	metrics.IncLookupCache("miss")
	msg, err := l.Lookup.Message(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message %s: %w", id, err)
	}
	if err := l.client.Set(ctx, key, body, l.ttl).Err(); err != nil {
		l.logger.WarnwCtx(ctx, "Lookup cache write failed", "error", err)
	}
	return msg, nil
}

func (l *CachedLookup) Invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cacheKeyPrefixMessage + id
	}
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		l.logger.WarnwCtx(ctx, "Lookup cache invalidation failed", "error", err, "count", len(ids))
	}
}

// Follow subscribes the cache to src. Subscribe it before any consumer
// that resolves ids.
func (l *CachedLookup) Follow(src Source) []Subscription {
	invalidate := func(ids []string) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		l.Invalidate(ctx, ids...)
	}

	return []Subscription{
		src.MessagesUpdated().Subscribe(func(n MessageNotification) {
			ids := append([]string(nil), n.IDs...)
			for _, obj := range n.Objects {
				if msg, ok := obj.(*RawMessage); ok {
					ids = append(ids, msg.GUID)
				}
			}
			invalidate(ids)
		}),
		src.MessagesDeleted().Subscribe(func(n DeletionNotification) {
			invalidate(n.IDs)
		}),
	}
}
