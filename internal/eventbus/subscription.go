package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"courier/internal/serial"
	"courier/pkg/metrics"
	"courier/pkg/models"
)

// Subscription delivers events in publish order on its own queue, so a
// slow consumer only delays itself.
type Subscription struct {
	id     string
	feed   string
	bus    *Bus
	fn     func(models.Event)
	queue  *serial.Queue
	active atomic.Bool
	once   sync.Once
}

func newSubscription(b *Bus, feed string, fn func(models.Event)) *Subscription {
	s := &Subscription{
		id:   uuid.NewString(),
		feed: feed,
		bus:  b,
		fn:   fn,
	}
	s.queue = serial.New("subscription-"+feed, b.logger)
	s.active.Store(true)
	return s
}

func (s *Subscription) ID() string {
	return s.id
}

func (s *Subscription) Feed() string {
	return s.feed
}

func (s *Subscription) Active() bool {
	return s.active.Load()
}

func (s *Subscription) deliver(ev models.Event) {
	s.queue.Submit(func() {
		if s.active.Load() {
			s.fn(ev)
		}
	})
}

// Unsubscribe stops delivery. Events already queued for this subscription
// are discarded. Safe to call from inside the callback and more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.markInactive()
		if s.bus.remove(s) {
			metrics.SubscribersActive.WithLabelValues(s.feed).Dec()
		}
		go s.queue.Close()
	})
}

func (s *Subscription) markInactive() {
	s.active.Store(false)
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		s.markInactive()
		s.queue.Close()
	})
}
