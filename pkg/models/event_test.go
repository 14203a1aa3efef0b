package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestEvent_JSONEnvelope(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "conversation removed",
			ev:   NewEvent(ConversationRemoved{ConversationID: "c1"}),
			want: `{"type":"conversation-removed","payload":{"conversation_id":"c1"}}`,
		},
		{
			name: "blocklist has no payload",
			ev:   NewEvent(BlocklistUpdated{}),
			want: `{"type":"blocklist-updated"}`,
		},
		{
			name: "items are tagged",
			ev: NewEvent(ItemsReceived{Items: Items{
				TextPartItem{ItemHeader: ItemHeader{ID: "0/m1", ConversationID: "c1", Time: at}, MessageID: "m1", Text: "hi"},
			}}),
			want: `{"type":"items-received","payload":{"items":[{"type":"text-part","payload":{"id":"0/m1","conversation_id":"c1","is_from_me":false,"time":"2024-03-01T12:00:00Z","message_id":"m1","index":0,"text":"hi"}}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(tt.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(body))
		})
	}
}

func TestEvent_ZeroValue(t *testing.T) {
	var ev Event
	assert.Equal(t, EventType(""), ev.Type())
	assert.Nil(t, ev.Envelope().Payload)
}

func TestEvent_CBORIsDeterministic(t *testing.T) {
	build := func(checks map[string]string) Event {
		return NewEvent(HealthChanged{Status: "healthy", Checks: checks, CheckedAt: at})
	}

	a := map[string]string{"redis": "healthy", "postgres": "healthy", "kafka": "degraded"}
	b := map[string]string{"kafka": "degraded", "postgres": "healthy", "redis": "healthy"}

	first, err := build(a).MarshalCBOR()
	require.NoError(t, err)
	second, err := build(b).MarshalCBOR()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := build(map[string]string{"redis": "unhealthy"}).MarshalCBOR()
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestEvent_CBORDistinguishesTypesWithSamePayloadShape(t *testing.T) {
	created, err := NewEvent(ContactCreated{Contact: Contact{ID: "p1"}}).MarshalCBOR()
	require.NoError(t, err)
	updated, err := NewEvent(ContactUpdated{Contact: Contact{ID: "p1"}}).MarshalCBOR()
	require.NoError(t, err)
	assert.NotEqual(t, created, updated)
}

func TestItems_Helpers(t *testing.T) {
	items := Items{
		MessageItem{ItemHeader: ItemHeader{ID: "m1"}, Parts: Items{
			TextPartItem{ItemHeader: ItemHeader{ID: "0/m1"}, Text: "hello "},
			AttachmentItem{ItemHeader: ItemHeader{ID: "a1"}},
			TextPartItem{ItemHeader: ItemHeader{ID: "2/m1"}, Text: "world"},
		}},
		StatusItem{ItemHeader: ItemHeader{ID: "s1"}, MessageID: "m1", Status: DeliveryStatusRead},
		StatusItem{ItemHeader: ItemHeader{ID: "s2"}, MessageID: "m2", Status: DeliveryStatusDelivered},
	}

	assert.Equal(t, []string{"m1", "s1", "s2"}, items.IDs())
	assert.Len(t, items.OfKind(ItemKindStatus), 2)
	assert.Empty(t, items.OfKind(ItemKindPlugin))
	assert.Equal(t, "hello world", items[0].(MessageItem).Text())
}

func TestItems_MarshalSkipsNil(t *testing.T) {
	body, err := json.Marshal(Items{nil, StatusItem{ItemHeader: ItemHeader{ID: "s1", Time: at}, Status: DeliveryStatusSent}})
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "status", decoded[0]["type"])
}

func TestAllItemKinds(t *testing.T) {
	kinds := AllItemKinds()
	assert.Len(t, kinds, 8)
	assert.Equal(t, ItemKindMessage, kinds[0])
}

func TestContact_DisplayName(t *testing.T) {
	tests := []struct {
		name    string
		contact Contact
		want    string
	}{
		{"nickname wins", Contact{ID: "p1", Nickname: "Sam", FirstName: "Samuel"}, "Sam"},
		{"full name", Contact{ID: "p1", FirstName: "Ada", LastName: "Lovelace"}, "Ada Lovelace"},
		{"last name only", Contact{ID: "p1", LastName: "Lovelace"}, "Lovelace"},
		{"first handle", Contact{ID: "p1", Handles: []string{"+15550100", "ada@example.com"}}, "+15550100"},
		{"falls back to id", Contact{ID: "p1"}, "p1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.contact.DisplayName())
		})
	}
}
