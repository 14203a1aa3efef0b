package ingest

import (
	"courier/internal/store"
	"courier/pkg/models"
)

// Conversation normalizes a chat row.
func Conversation(c store.RawChat) (models.Conversation, error) {
	if c.GUID == "" {
		return models.Conversation{}, malformed("chat without guid")
	}

	participants := c.Participants
	if participants == nil {
		participants = []string{}
	}

	return models.Conversation{
		ID:           c.GUID,
		DisplayName:  c.DisplayName,
		Participants: participants,
		IsGroup:      c.Style == store.ChatStyleGroup || len(participants) > 1,
		Service:      c.Service,
		LastActivity: c.LastActivity.UTC(),
		UnreadCount:  c.UnreadCount,
		Joined:       c.Joined,
	}, nil
}

// Contact normalizes a contact card.
func Contact(c store.RawContact) (models.Contact, error) {
	if c.Identifier == "" {
		return models.Contact{}, malformed("contact without identifier")
	}

	handles := c.Handles
	if handles == nil {
		handles = []string{}
	}

	return models.Contact{
		ID:        c.Identifier,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Nickname:  c.Nickname,
		Handles:   handles,
	}, nil
}
