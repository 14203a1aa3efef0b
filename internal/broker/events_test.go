package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/constants"
	"courier/internal/dedup"
	"courier/internal/eventbus"
	"courier/internal/logger"
	"courier/pkg/models"
)

type published struct {
	topic string
	key   string
	body  []byte
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, value interface{}) error {
	if p.err != nil {
		return p.err
	}
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, key: key, body: body})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func TestEventForwarder_PublishesBusEventsKeyedByType(t *testing.T) {
	bus := eventbus.New(dedup.NewMemoryWindow(time.Minute, 0), dedup.NewHasher(constants.HashSHA256))
	t.Cleanup(bus.Close)

	producer := &fakeProducer{}
	fwd := NewEventForwarder(producer, "courier.events", logger.NopLogger())
	sub := fwd.Attach(bus)
	require.NotNil(t, sub)
	assert.Same(t, sub, fwd.Attach(bus))
	assert.Equal(t, 1, bus.Consumers())

	bus.Dispatch(models.NewEvent(models.ConversationRemoved{ConversationID: "c1"}))
	bus.Dispatch(models.NewEvent(models.BlocklistUpdated{}))
	bus.Flush()

	msgs := producer.all()
	require.Len(t, msgs, 2)

	assert.Equal(t, "courier.events", msgs[0].topic)
	assert.Equal(t, string(models.EventTypeConversationRemoved), msgs[0].key)
	assert.JSONEq(t, `{"type":"conversation-removed","payload":{"conversation_id":"c1"}}`, string(msgs[0].body))

	assert.Equal(t, string(models.EventTypeBlocklistUpdated), msgs[1].key)
	assert.JSONEq(t, `{"type":"blocklist-updated"}`, string(msgs[1].body))
}

type lifecycle struct {
	wakes, sleeps int
}

func (l *lifecycle) Wake()  { l.wakes++ }
func (l *lifecycle) Sleep() { l.sleeps++ }

func TestEventForwarder_HoldsConsumerSlot(t *testing.T) {
	bus := eventbus.New(dedup.NewMemoryWindow(time.Minute, 0), dedup.NewHasher(constants.HashSHA256))
	t.Cleanup(bus.Close)
	life := &lifecycle{}
	bus.SetSupervisor(life)

	fwd := NewEventForwarder(&fakeProducer{}, "courier.events", logger.NopLogger())
	fwd.Attach(bus)
	assert.Equal(t, 1, life.wakes)

	bus.Attach()
	bus.Detach()
	assert.Zero(t, life.sleeps, "a client leaving does not stop forwarding")

	fwd.Detach()
	fwd.Detach()
	assert.Equal(t, 1, life.sleeps)
	assert.Zero(t, bus.Consumers())
}

func TestEventForwarder_ProducerErrorIsSwallowed(t *testing.T) {
	fwd := NewEventForwarder(&fakeProducer{err: fmt.Errorf("broker down")}, "courier.events", logger.NopLogger())
	assert.NotPanics(t, func() {
		fwd.Forward(models.NewEvent(models.ContactRemoved{ContactID: "p1"}))
	})
}

type recordingIngestor struct {
	got []models.ChangeRecord
}

func (r *recordingIngestor) Ingest(_ context.Context, rec models.ChangeRecord) error {
	r.got = append(r.got, rec)
	return nil
}

func TestIngestHandler(t *testing.T) {
	in := &recordingIngestor{}
	h := IngestHandler(in)

	require.NoError(t, h(context.Background(), models.ChangeRecord{ID: "r1", Category: models.CategoryBlocklistUpdated}))
	require.Len(t, in.got, 1)
	assert.Equal(t, "r1", in.got[0].ID)
}
