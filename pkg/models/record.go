package models

import (
	"encoding/json"
	"time"
)

// ChangeCategory names one raw change stream of the conversation store.
type ChangeCategory string

const (
	CategoryMessageReceived     ChangeCategory = "message-received"
	CategoryMessageUpdated      ChangeCategory = "message-updated"
	CategoryMessagesDeleted     ChangeCategory = "message-deleted"
	CategoryStatusChanged       ChangeCategory = "status-changed"
	CategoryParticipantsChanged ChangeCategory = "participants-changed"
	CategoryDisplayNameChanged  ChangeCategory = "display-name-changed"
	CategoryJoinStateChanged    ChangeCategory = "join-state-changed"
	CategoryChatCreated         ChangeCategory = "chat-created"
	CategoryChatRemoved         ChangeCategory = "chat-removed"
	CategoryContactCreated      ChangeCategory = "contact-created"
	CategoryContactUpdated      ChangeCategory = "contact-updated"
	CategoryContactRemoved      ChangeCategory = "contact-removed"
	CategoryBlocklistUpdated    ChangeCategory = "blocklist-updated"
)

var knownCategories = map[ChangeCategory]bool{
	CategoryMessageReceived:     true,
	CategoryMessageUpdated:      true,
	CategoryMessagesDeleted:     true,
	CategoryStatusChanged:       true,
	CategoryParticipantsChanged: true,
	CategoryDisplayNameChanged:  true,
	CategoryJoinStateChanged:    true,
	CategoryChatCreated:         true,
	CategoryChatRemoved:         true,
	CategoryContactCreated:      true,
	CategoryContactUpdated:      true,
	CategoryContactRemoved:      true,
	CategoryBlocklistUpdated:    true,
}

func (c ChangeCategory) Known() bool {
	return knownCategories[c]
}

// ScopedToConversation reports whether records of this category must name
// their owning conversation.
func (c ChangeCategory) ScopedToConversation() bool {
	switch c {
	case CategoryParticipantsChanged, CategoryDisplayNameChanged,
		CategoryJoinStateChanged, CategoryChatRemoved:
		return true
	}
	return false
}

// ChangeRecord is the wire form of a raw change notification as it arrives
// on the input topic.
type ChangeRecord struct {
	ID             string          `json:"id"`
	Category       ChangeCategory  `json:"category"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Objects        []RawObject     `json:"objects,omitempty"` // Inline raw objects
	IDs            []string        `json:"ids,omitempty"`     // References the consumer resolves itself
	Value          json.RawMessage `json:"value,omitempty"`   // Category-specific scalar data (names, flags)
	Metadata       Metadata        `json:"metadata"`
}

// RawObject is one opaque store object tagged with its store-side type name.
type RawObject struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Metadata struct {
	TraceID string `json:"trace_id,omitempty"`
}
