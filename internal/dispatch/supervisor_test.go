package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/store"
	"courier/pkg/models"
)

type stubDispatcher struct {
	name          string
	wakes, sleeps int
}

func (s *stubDispatcher) Name() string { return s.name }
func (s *stubDispatcher) Wake()        { s.wakes++ }
func (s *stubDispatcher) Sleep()       { s.sleeps++ }

func stub(name string) (Factory, *stubDispatcher) {
	d := &stubDispatcher{name: name}
	return func(Deps) Dispatcher { return d }, d
}

func TestSupervisor_RegisterRejectsMisuse(t *testing.T) {
	sup := NewSupervisor(Deps{}, nil)

	assert.Error(t, sup.Register(nil))
	assert.Error(t, sup.Register(func(Deps) Dispatcher { return nil }))

	f, _ := stub("a")
	require.NoError(t, sup.Register(f))
	assert.Error(t, sup.Register(f), "duplicate name")
	assert.Equal(t, []string{"a"}, sup.Names())
}

func TestSupervisor_WakeIsIdempotent(t *testing.T) {
	sup := NewSupervisor(Deps{}, nil)
	fa, a := stub("a")
	fb, b := stub("b")
	require.NoError(t, sup.Register(fa))
	require.NoError(t, sup.Register(fb))

	sup.Wake()
	sup.Wake()
	assert.True(t, sup.Awake())
	assert.Equal(t, 1, a.wakes)
	assert.Equal(t, 1, b.wakes)

	sup.Sleep()
	sup.Sleep()
	assert.False(t, sup.Awake())
	assert.Equal(t, 2, a.sleeps, "sleep always reaches every dispatcher")
}

func TestSupervisor_RegisterWhileAwakeWakes(t *testing.T) {
	sup := NewSupervisor(Deps{}, nil)
	sup.Wake()

	f, d := stub("late")
	require.NoError(t, sup.Register(f))
	assert.Equal(t, 1, d.wakes)
}

func TestSupervisor_WakeTwiceDoesNotDuplicateSubscriptions(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.register(t, NewContactDispatcher, NewConversationDispatcher)

	h.sup.Wake()
	count := h.hub.SubscriberCount()
	h.sup.Wake()
	assert.Equal(t, count, h.hub.SubscriberCount())

	h.hub.ContactGone.Publish(store.ContactRemovedNotification{ContactID: "x1"})
	h.waitFor(t, models.EventTypeContactRemoved, 1)
	h.bus.Flush()
	h.bus.Flush()

	assert.Len(t, h.events.ofType(models.EventTypeContactRemoved), 1)
}

func TestSupervisor_SleepUnsubscribes(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.register(t, DefaultFactories()...)

	h.sup.Sleep()
	assert.Zero(t, h.hub.SubscriberCount(), "sleep while asleep is safe")

	h.sup.Wake()
	assert.Positive(t, h.hub.SubscriberCount())

	h.sup.Sleep()
	assert.Zero(t, h.hub.SubscriberCount())

	h.hub.ContactGone.Publish(store.ContactRemovedNotification{ContactID: "x1"})
	h.bus.Flush()
	h.bus.Flush()
	assert.Empty(t, h.events.ofType(models.EventTypeContactRemoved))
}

func TestBus_AttachDetachDriveSupervisor(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.register(t, NewContactDispatcher)

	h.bus.Attach()
	assert.True(t, h.sup.Awake())
	h.bus.Detach()
	assert.False(t, h.sup.Awake())
}

func TestBus_ClientLeavingKeepsForwardingConsumerAwake(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.register(t, NewContactDispatcher)

	h.bus.Attach() // forwarder
	h.bus.Attach() // client stream
	h.bus.Detach()
	require.True(t, h.sup.Awake())

	h.hub.ContactGone.Publish(store.ContactRemovedNotification{ContactID: "x1"})
	h.waitFor(t, models.EventTypeContactRemoved, 1)
}

type closableStub struct {
	stubDispatcher
	closed int
}

func (c *closableStub) Close() { c.closed++ }

func TestSupervisor_CloseSleepsAndReleases(t *testing.T) {
	sup := NewSupervisor(Deps{}, nil)
	c := &closableStub{stubDispatcher: stubDispatcher{name: "closable"}}
	require.NoError(t, sup.Register(func(Deps) Dispatcher { return c }))
	fp, plain := stub("plain")
	require.NoError(t, sup.Register(fp))

	sup.Wake()
	sup.Close()

	assert.False(t, sup.Awake())
	assert.Equal(t, 1, c.sleeps)
	assert.Equal(t, 1, c.closed)
	assert.Equal(t, 1, plain.sleeps)
}
