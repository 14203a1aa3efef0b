// Package eventbus publishes canonical events to subscribers, dropping
// repeats seen inside the dedup window.
package eventbus

import (
	"context"
	"sync"
	"time"

	"courier/internal/constants"
	"courier/internal/dedup"
	"courier/internal/logger"
	"courier/internal/serial"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/tracing"
)

// Lifecycle is the part of the supervisor the bus drives.
type Lifecycle interface {
	Wake()
	Sleep()
}

type Option func(*Bus)

func WithLogger(log logger.Logger) Option {
	return func(b *Bus) {
		b.logger = log.Component("eventbus")
	}
}

// WithWindowErrorPolicy sets what happens to an event whose dedup check
// failed: constants.FallbackAllow publishes it, constants.FallbackDeny drops it.
func WithWindowErrorPolicy(policy string) Option {
	return func(b *Bus) {
		b.onWindowError = policy
	}
}

// WithAdmitTimeout bounds a single window lookup.
func WithAdmitTimeout(d time.Duration) Option {
	return func(b *Bus) {
		b.admitTimeout = d
	}
}

type Bus struct {
	window        dedup.Window
	hasher        *dedup.Hasher
	onWindowError string
	admitTimeout  time.Duration
	logger        logger.Logger
	queue         *serial.Queue

	mu         sync.RWMutex
	subs       []*Subscription
	supervisor Lifecycle
	consumers  int
	closed     bool
}

func New(window dedup.Window, hasher *dedup.Hasher, opts ...Option) *Bus {
	b := &Bus{
		window:        window,
		hasher:        hasher,
		onWindowError: constants.FallbackAllow,
		admitTimeout:  time.Second,
		logger:        logger.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.queue = serial.New("eventbus", b.logger)
	return b
}

// Dispatch schedules ev for publication on the bus's serial context.
func (b *Bus) Dispatch(ev models.Event) {
	if ev.Payload == nil {
		b.logger.Debugw("Dropping event without payload")
		return
	}
	if !b.queue.Submit(func() { b.publish(ev) }) {
		metrics.IncEventDispatched(string(ev.Type()), "closed")
	}
}

// Publish runs dedup and delivery for ev right away. Only call it from a
// task already running on the bus's serial context; everyone else uses
// Dispatch.
func (b *Bus) Publish(ev models.Event) {
	if ev.Payload == nil {
		b.logger.Debugw("Dropping event without payload")
		return
	}
	b.publish(ev)
}

// Submit runs fn on the bus's serial context.
func (b *Bus) Submit(fn serial.Task) bool {
	return b.queue.Submit(fn)
}

// Enqueue is Submit for callers that do not care whether the bus is closed.
func (b *Bus) Enqueue(fn func()) {
	b.queue.Submit(fn)
}

func (b *Bus) publish(ev models.Event) {
	start := time.Now()
	eventType := string(ev.Type())

	ctx, span := tracing.GetTracer("eventbus").Start(context.Background(), "eventbus.dispatch")
	defer span.End()

	if !b.admit(ctx, ev) {
		metrics.ObserveDispatchDuration(eventType, time.Since(start))
		return
	}

	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.deliver(ev)
	}

	metrics.IncEventDispatched(eventType, "published")
	metrics.ObserveDispatchDuration(eventType, time.Since(start))
}

// admit reports whether ev is new inside the window. Hashing failures
// publish unconditionally; window failures follow the configured policy.
func (b *Bus) admit(ctx context.Context, ev models.Event) bool {
	eventType := string(ev.Type())

	hash, err := b.hasher.HashEvent(ev)
	if err != nil {
		b.logger.Warnw("Failed to hash event, publishing without dedup", "type", eventType, "error", err)
		metrics.FallbackUsageTotal.WithLabelValues("eventbus", constants.FallbackAllow, "hash_error").Inc()
		return true
	}

	if b.admitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.admitTimeout)
		defer cancel()
	}

	admitted, err := b.window.Admit(ctx, hash)
	if err != nil {
		metrics.FallbackUsageTotal.WithLabelValues("eventbus", b.onWindowError, "window_error").Inc()
		if b.onWindowError == constants.FallbackDeny {
			b.logger.Warnw("Dedup window failed, dropping event", "type", eventType, "error", err)
			metrics.IncEventDispatched(eventType, "dropped")
			return false
		}
		b.logger.Warnw("Dedup window failed, publishing event", "type", eventType, "error", err)
		return true
	}

	if !admitted {
		b.logger.Debugw("Duplicate event suppressed", "type", eventType, "hash", hash)
		metrics.IncEventDispatched(eventType, "duplicate")
		return false
	}
	return true
}

// Subscribe registers fn for every published event. fn runs on the
// subscription's own serial queue.
func (b *Bus) Subscribe(fn func(models.Event)) *Subscription {
	return b.subscribe("all", fn)
}

func (b *Bus) subscribe(feed string, fn func(models.Event)) *Subscription {
	s := newSubscription(b, feed, fn)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.stop()
		return s
	}
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	metrics.SubscribersActive.WithLabelValues(feed).Inc()
	return s
}

func (b *Bus) remove(s *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, cur := range b.subs {
		if cur == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribers is the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// SetSupervisor hands the dispatcher lifecycle to the bus. It is woken
// right away if consumers are already attached.
func (b *Bus) SetSupervisor(s Lifecycle) {
	b.mu.Lock()
	b.supervisor = s
	attached := b.consumers > 0
	b.mu.Unlock()

	if s != nil && attached {
		s.Wake()
	}
}

// Attach counts a downstream consumer (a client stream, a forwarder). The
// first one wakes the supervisor.
func (b *Bus) Attach() {
	b.mu.Lock()
	b.consumers++
	first := b.consumers == 1
	s := b.supervisor
	b.mu.Unlock()

	if first && s != nil {
		s.Wake()
	}
}

// Detach releases a consumer taken with Attach. The last one puts the
// supervisor to sleep. Unbalanced calls are ignored.
func (b *Bus) Detach() {
	b.mu.Lock()
	if b.consumers == 0 {
		b.mu.Unlock()
		b.logger.Warnw("Detach without matching Attach")
		return
	}
	b.consumers--
	last := b.consumers == 0
	s := b.supervisor
	b.mu.Unlock()

	if last && s != nil {
		s.Sleep()
	}
}

// Consumers is the number of attached consumers.
func (b *Bus) Consumers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.consumers
}

// Flush waits until every event dispatched before the call has been
// delivered to every subscriber. Not safe to call from a subscriber or a
// task on the bus.
func (b *Bus) Flush() {
	b.queue.Flush()

	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.queue.Flush()
	}
}

// Close drains queued events, then stops every subscription.
func (b *Bus) Close() {
	b.queue.Close()

	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.queue.Close()
		s.markInactive()
		metrics.SubscribersActive.WithLabelValues(s.feed).Dec()
	}
}
