package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/constants"
	"courier/internal/dedup"
	"courier/pkg/models"
)

type collector struct {
	mu     sync.Mutex
	events []models.Event
}

func (c *collector) add(ev models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) all() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Event, len(c.events))
	copy(out, c.events)
	return out
}

func newTestBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	b := New(dedup.NewMemoryWindow(time.Minute, 0), dedup.NewHasher(constants.HashSHA256), opts...)
	t.Cleanup(b.Close)
	return b
}

func removed(id string) models.Event {
	return models.NewEvent(models.ConversationRemoved{ConversationID: id})
}

func TestBus_DuplicateInsideWindowPublishedOnce(t *testing.T) {
	b := newTestBus(t)
	c := &collector{}
	b.Subscribe(c.add)

	b.Dispatch(removed("c1"))
	b.Dispatch(removed("c1"))
	b.Flush()

	assert.Len(t, c.all(), 1)
}

func TestBus_RepublishesAfterWindowExpires(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	window := dedup.NewMemoryWindow(5*time.Second, 0).WithClock(func() time.Time { return clock })
	b := New(window, dedup.NewHasher(constants.HashSHA256))
	t.Cleanup(b.Close)

	c := &collector{}
	b.Subscribe(c.add)

	b.Dispatch(removed("c1"))
	b.Flush()
	clock = clock.Add(6 * time.Second)
	b.Dispatch(removed("c1"))
	b.Flush()

	assert.Len(t, c.all(), 2)
}

func TestBus_PreservesDispatchOrder(t *testing.T) {
	b := newTestBus(t)
	first := &collector{}
	second := &collector{}
	b.Subscribe(first.add)
	b.Subscribe(second.add)

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		b.Dispatch(removed(id))
	}
	b.Flush()

	for _, c := range []*collector{first, second} {
		got := c.all()
		require.Len(t, got, len(ids))
		for i, ev := range got {
			assert.Equal(t, ids[i], ev.Payload.(models.ConversationRemoved).ConversationID)
		}
	}
}

func TestBus_SlowSubscriberDoesNotStallOthers(t *testing.T) {
	b := newTestBus(t)
	release := make(chan struct{})
	b.Subscribe(func(models.Event) { <-release })

	fast := make(chan models.Event, 1)
	b.Subscribe(func(ev models.Event) { fast <- ev })

	b.Dispatch(removed("c1"))

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber was blocked by the slow one")
	}
	close(release)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t)
	c := &collector{}
	sub := b.Subscribe(c.add)

	b.Dispatch(removed("c1"))
	b.Flush()
	sub.Unsubscribe()
	sub.Unsubscribe()
	b.Dispatch(removed("c2"))
	b.Flush()

	assert.Len(t, c.all(), 1)
	assert.False(t, sub.Active())
	assert.Zero(t, b.Subscribers())
}

func TestBus_SubscriberPanicIsContained(t *testing.T) {
	b := newTestBus(t)
	c := &collector{}
	b.Subscribe(func(models.Event) { panic("boom") })
	b.Subscribe(c.add)

	b.Dispatch(removed("c1"))
	b.Dispatch(removed("c2"))
	b.Flush()

	assert.Len(t, c.all(), 2)
}

type brokenWindow struct{}

func (brokenWindow) Admit(context.Context, string) (bool, error) {
	return false, errors.New("unavailable")
}

func TestBus_WindowErrorPolicy(t *testing.T) {
	tests := []struct {
		policy string
		want   int
	}{
		{policy: constants.FallbackAllow, want: 2},
		{policy: constants.FallbackDeny, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			b := New(brokenWindow{}, dedup.NewHasher(""), WithWindowErrorPolicy(tt.policy))
			t.Cleanup(b.Close)
			c := &collector{}
			b.Subscribe(c.add)

			b.Dispatch(removed("c1"))
			b.Dispatch(removed("c1"))
			b.Flush()

			assert.Len(t, c.all(), tt.want)
		})
	}
}

func TestBus_DropsEmptyEvent(t *testing.T) {
	b := newTestBus(t)
	c := &collector{}
	b.Subscribe(c.add)

	b.Dispatch(models.Event{})
	b.Flush()

	assert.Empty(t, c.all())
}

type fakeLifecycle struct {
	wakes, sleeps int
}

func (f *fakeLifecycle) Wake()  { f.wakes++ }
func (f *fakeLifecycle) Sleep() { f.sleeps++ }

func TestBus_AttachDetachCountConsumers(t *testing.T) {
	b := newTestBus(t)
	b.Attach()
	b.Detach()
	b.Detach()
	assert.Zero(t, b.Consumers())

	f := &fakeLifecycle{}
	b.Attach()
	b.SetSupervisor(f)
	assert.Equal(t, 1, f.wakes, "supervisor set after attach is woken")

	b.Attach()
	b.Detach()
	assert.Equal(t, 0, f.sleeps, "one consumer is still attached")

	b.Detach()
	assert.Equal(t, 1, f.wakes)
	assert.Equal(t, 1, f.sleeps)

	b.Detach()
	assert.Equal(t, 1, f.sleeps)
	assert.Zero(t, b.Consumers())
}

func TestBus_PublishDeliversInline(t *testing.T) {
	b := newTestBus(t)
	c := &collector{}
	b.Subscribe(c.add)

	done := make(chan struct{})
	b.Enqueue(func() {
		b.Publish(removed("c1"))
		b.Publish(removed("c1"))
		b.Publish(models.Event{})
		close(done)
	})
	<-done
	b.Flush()

	assert.Len(t, c.all(), 1)
}

func TestBus_EnqueueRunsOnSerialContext(t *testing.T) {
	b := newTestBus(t)
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		b.Enqueue(func() { order = append(order, i) })
	}
	b.Flush()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestBus_DispatchAfterCloseIsIgnored(t *testing.T) {
	b := New(dedup.NewMemoryWindow(time.Minute, 0), dedup.NewHasher(""))
	c := &collector{}
	b.Subscribe(c.add)
	b.Close()

	b.Dispatch(removed("c1"))
	assert.False(t, b.Submit(func() {}))
	assert.Empty(t, c.all())
}
