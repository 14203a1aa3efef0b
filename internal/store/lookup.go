package store

import "context"

// Lookup resolves entities the change feed only references by id.
type Lookup interface {
	Message(ctx context.Context, id string) (*RawMessage, error)
	Conversations(ctx context.Context, limit int) ([]RawChat, error)
	ConversationCount(ctx context.Context) (int, error)
	Contacts(ctx context.Context) ([]RawContact, error)
}
