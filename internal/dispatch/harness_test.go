package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/debounce"
	"courier/internal/dedup"
	"courier/internal/eventbus"
	"courier/internal/ingest"
	"courier/internal/logger"
	"courier/internal/store"
	pkgerrors "courier/pkg/errors"
	"courier/pkg/health"
	"courier/pkg/models"
)

type fakeLookup struct {
	mu        sync.Mutex
	messages  map[string]*store.RawMessage
	transient map[string]int
	calls     map[string]int
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		messages:  make(map[string]*store.RawMessage),
		transient: make(map[string]int),
		calls:     make(map[string]int),
	}
}

func (f *fakeLookup) put(msgs ...*store.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.messages[m.GUID] = m
	}
}

func (f *fakeLookup) callsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeLookup) Message(_ context.Context, id string) (*store.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[id]++
	if f.transient[id] > 0 {
		f.transient[id]--
		return nil, errors.New("connection reset")
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return m, nil
}

func (f *fakeLookup) Conversations(context.Context, int) ([]store.RawChat, error) { return nil, nil }
func (f *fakeLookup) ConversationCount(context.Context) (int, error)            { return 0, nil }
func (f *fakeLookup) Contacts(context.Context) ([]store.RawContact, error)       { return nil, nil }

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

func (c *collector) ofType(t models.EventType) []models.Event {
	var out []models.Event
	for _, ev := range c.all() {
		if ev.Type() == t {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	hub    *store.Hub
	lookup *fakeLookup
	bus    *eventbus.Bus
	health *health.CheckerRegistry
	sup    *Supervisor
	events *collector
}

type harnessOptions struct {
	intervals      map[debounce.Category]time.Duration
	healthInterval time.Duration
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	log := logger.NopLogger()

	bus := eventbus.New(
		dedup.NewMemoryWindow(time.Minute, 0),
		dedup.NewHasher(constants.HashSHA256),
		eventbus.WithLogger(log),
	)

	h := &harness{
		hub:    store.NewHub(log),
		lookup: newFakeLookup(),
		bus:    bus,
		health: health.NewCheckerRegistry(),
		events: &collector{},
	}
	bus.Subscribe(h.events.add)

	h.sup = NewSupervisor(Deps{
		Source:   h.hub,
		Lookup:   h.lookup,
		Registry: ingest.DefaultRegistry(log),
		Bus:      bus,
		Debounce: opts.intervals,
		Health:   h.health,
		Pipeline: config.PipelineConfig{
			LookupConcurrency: 2,
			LookupRetry: config.RetryConfig{
				MaxAttempts:     3,
				InitialInterval: time.Millisecond,
				MaxInterval:     2 * time.Millisecond,
				Multiplier:      2,
			},
			HealthInterval: opts.healthInterval,
		},
	}, log)
	bus.SetSupervisor(h.sup)

	t.Cleanup(func() {
		h.sup.Close()
		bus.Close()
	})
	return h
}

func (h *harness) register(t *testing.T, factories ...Factory) {
	t.Helper()
	for _, f := range factories {
		require.NoError(t, h.sup.Register(f))
	}
}

func (h *harness) waitFor(t *testing.T, typ models.EventType, n int) []models.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.events.ofType(typ)) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %s events", n, typ)
	return h.events.ofType(typ)
}

var testTime = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func rawMessage(id, chat, text string) *store.RawMessage {
	return &store.RawMessage{
		GUID:     id,
		ChatGUID: chat,
		Date:     testTime,
		Parts: []interface{}{
			&store.RawTextChunk{MessageGUID: id, ChatGUID: chat, Index: 0, Text: text},
		},
	}
}
