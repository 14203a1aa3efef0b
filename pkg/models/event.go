package models

import (
	"encoding/json"
	"time"
)

// EventType is the wire tag of an Event. It is never stored on the Event;
// it is derived from the payload's concrete type.
type EventType string

const (
	EventTypeBootstrap                      EventType = "bootstrap"
	EventTypeItemsReceived                  EventType = "items-received"
	EventTypeItemsUpdated                   EventType = "items-updated"
	EventTypeItemStatusChanged              EventType = "item-status-changed"
	EventTypeItemsRemoved                   EventType = "items-removed"
	EventTypeParticipantsChanged            EventType = "participants-changed"
	EventTypeConversationCreated            EventType = "conversation-created"
	EventTypeConversationRemoved            EventType = "conversation-removed"
	EventTypeConversationDisplayNameChanged EventType = "conversation-display-name-changed"
	EventTypeConversationJoinStateChanged   EventType = "conversation-join-state-changed"
	EventTypeContactCreated                 EventType = "contact-created"
	EventTypeContactUpdated                 EventType = "contact-updated"
	EventTypeContactRemoved                 EventType = "contact-removed"
	EventTypeBlocklistUpdated               EventType = "blocklist-updated"
	EventTypeHealthChanged                  EventType = "health-changed"
)

// Payload is implemented by every event case.
type Payload interface {
	EventType() EventType
}

// payloadless marks cases that serialize without a payload key.
type payloadless interface {
	omitPayload()
}

// Event is the transport-facing unit published by the event bus.
type Event struct {
	Payload Payload
}

func NewEvent(p Payload) Event {
	return Event{Payload: p}
}

// Type returns the tag for the event, or "" for the zero Event.
func (e Event) Type() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}

// Envelope is the self-describing form of an Event.
type Envelope struct {
	Type    EventType   `json:"type" cbor:"type"`
	Payload interface{} `json:"payload,omitempty" cbor:"payload,omitempty"`
}

func (e Event) Envelope() Envelope {
	env := Envelope{Type: e.Type()}
	if _, ok := e.Payload.(payloadless); !ok {
		env.Payload = e.Payload
	}
	return env
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Envelope())
}

// MarshalCBOR encodes the envelope with the canonical (deterministic)
// encoder, so equal events always produce identical bytes.
func (e Event) MarshalCBOR() ([]byte, error) {
	return canonicalEncMode.Marshal(e.Envelope())
}

type Bootstrap struct {
	Conversations []Conversation `json:"conversations"`
	Contacts      []Contact      `json:"contacts"`
	TotalChats    int            `json:"total_chats"`
}

func (Bootstrap) EventType() EventType { return EventTypeBootstrap }

type ItemsReceived struct {
	Items Items `json:"items"`
}

func (ItemsReceived) EventType() EventType { return EventTypeItemsReceived }

type ItemsUpdated struct {
	Items Items `json:"items"`
}

func (ItemsUpdated) EventType() EventType { return EventTypeItemsUpdated }

type ItemStatusChanged struct {
	Item StatusItem `json:"item"`
}

func (ItemStatusChanged) EventType() EventType { return EventTypeItemStatusChanged }

type ItemsRemoved struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	IDs            []string `json:"ids"`
}

func (ItemsRemoved) EventType() EventType { return EventTypeItemsRemoved }

type ParticipantsChanged struct {
	ConversationID string   `json:"conversation_id"`
	Participants   []string `json:"participants"`
}

func (ParticipantsChanged) EventType() EventType { return EventTypeParticipantsChanged }

type ConversationCreated struct {
	Conversation Conversation `json:"conversation"`
}

func (ConversationCreated) EventType() EventType { return EventTypeConversationCreated }

type ConversationRemoved struct {
	ConversationID string `json:"conversation_id"`
}

func (ConversationRemoved) EventType() EventType { return EventTypeConversationRemoved }

type ConversationDisplayNameChanged struct {
	ConversationID string `json:"conversation_id"`
	DisplayName    string `json:"display_name"`
}

func (ConversationDisplayNameChanged) EventType() EventType {
	return EventTypeConversationDisplayNameChanged
}

type ConversationJoinStateChanged struct {
	ConversationID string `json:"conversation_id"`
	Joined         bool   `json:"joined"`
}

func (ConversationJoinStateChanged) EventType() EventType {
	return EventTypeConversationJoinStateChanged
}

type ContactCreated struct {
	Contact Contact `json:"contact"`
}

func (ContactCreated) EventType() EventType { return EventTypeContactCreated }

type ContactUpdated struct {
	Contact Contact `json:"contact"`
}

func (ContactUpdated) EventType() EventType { return EventTypeContactUpdated }

type ContactRemoved struct {
	ContactID string `json:"contact_id"`
}

func (ContactRemoved) EventType() EventType { return EventTypeContactRemoved }

// BlocklistUpdated tells consumers to refetch the blocklist; it has no payload.
type BlocklistUpdated struct{}

func (BlocklistUpdated) EventType() EventType { return EventTypeBlocklistUpdated }

func (BlocklistUpdated) omitPayload() {}

type HealthChanged struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

func (HealthChanged) EventType() EventType { return EventTypeHealthChanged }
