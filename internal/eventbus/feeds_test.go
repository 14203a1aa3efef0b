package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/pkg/models"
)

func message(id string, fromMe bool) models.MessageItem {
	return models.MessageItem{
		ItemHeader: models.ItemHeader{
			ID:             id,
			ConversationID: "c1",
			IsFromMe:       fromMe,
			Time:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Subject: "s-" + id,
	}
}

func received(items ...models.Item) models.Event {
	return models.NewEvent(models.ItemsReceived{Items: items})
}

func TestDerive_RemoteMessages(t *testing.T) {
	b := newTestBus(t)

	var mu sync.Mutex
	var got []string
	Derive(b, "remote", RemoteMessages, func(msgs []models.MessageItem) {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range msgs {
			got = append(got, m.ID)
		}
	})

	b.Dispatch(received(message("m1", false), message("m2", true)))
	b.Dispatch(received(message("m3", true)))
	b.Dispatch(removed("c1"))
	b.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"m1"}, got)
}

func TestDerive_DoesNotReapplyDedup(t *testing.T) {
	b := newTestBus(t)

	all := &collector{}
	b.Subscribe(all.add)
	typed := &collector{}
	Derive(b, "typed", OfType(models.EventTypeItemsReceived), typed.add)

	ev := received(message("m1", false))
	b.Dispatch(ev)
	b.Dispatch(ev)
	b.Flush()

	assert.Len(t, all.all(), 1)
	assert.Len(t, typed.all(), 1)
}

func TestStatusChanges(t *testing.T) {
	status := models.StatusItem{
		ItemHeader: models.ItemHeader{ID: "s1", ConversationID: "c1"},
		MessageID:  "m1",
		Status:     models.DeliveryStatusRead,
	}

	got, ok := StatusChanges(models.NewEvent(models.ItemStatusChanged{Item: status}))
	require.True(t, ok)
	assert.Equal(t, "m1", got.MessageID)

	_, ok = StatusChanges(removed("c1"))
	assert.False(t, ok)
}

func TestOfType(t *testing.T) {
	m := OfType(models.EventTypeContactCreated, models.EventTypeContactRemoved)

	_, ok := m(models.NewEvent(models.ContactRemoved{ContactID: "x"}))
	assert.True(t, ok)
	_, ok = m(removed("c1"))
	assert.False(t, ok)
}

func TestWhere_ExpressionFilter(t *testing.T) {
	f, err := NewExpressionFilter(`type == "conversation-removed" && payload.conversation_id == "c2"`)
	require.NoError(t, err)

	b := newTestBus(t)
	c := &collector{}
	Derive(b, "filtered", Where(f), c.add)

	b.Dispatch(removed("c1"))
	b.Dispatch(removed("c2"))
	b.Dispatch(models.NewEvent(models.BlocklistUpdated{}))
	b.Flush()

	got := c.all()
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].Payload.(models.ConversationRemoved).ConversationID)
}

func TestNewExpressionFilter_Invalid(t *testing.T) {
	_, err := NewExpressionFilter(`type ==`)
	assert.Error(t, err)

	_, err = NewExpressionFilter(`type`)
	assert.Error(t, err)
}
