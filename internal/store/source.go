package store

// Subscription is the handle returned by Stream.Subscribe.
type Subscription interface {
	Unsubscribe()
}

// Stream delivers one category of raw change notifications.
type Stream[T any] interface {
	Subscribe(fn func(T)) Subscription
}

// Source is the raw change-notification collaborator: one typed stream per
// change category.
type Source interface {
	MessagesReceived() Stream[MessageNotification]
	MessagesUpdated() Stream[MessageNotification]
	MessagesDeleted() Stream[DeletionNotification]
	StatusChanged() Stream[StatusNotification]
	ParticipantsChanged() Stream[ParticipantsNotification]
	DisplayNameChanged() Stream[DisplayNameNotification]
	JoinStateChanged() Stream[JoinStateNotification]
	ChatCreated() Stream[ChatNotification]
	ChatRemoved() Stream[ChatRemovedNotification]
	ContactCreated() Stream[ContactNotification]
	ContactUpdated() Stream[ContactNotification]
	ContactRemoved() Stream[ContactRemovedNotification]
	BlocklistUpdated() Stream[BlocklistNotification]
}

// MessageNotification carries already-loaded raw objects, ids the consumer
// must resolve itself, or both.
type MessageNotification struct {
	ConversationID string
	Objects        []interface{}
	IDs            []string
	TraceID        string
}

type DeletionNotification struct {
	ConversationID string
	IDs            []string
}

type StatusNotification struct {
	ConversationID string
	Objects        []interface{}
}

type ParticipantsNotification struct {
	ConversationID string
	Participants   []string
}

type DisplayNameNotification struct {
	ConversationID string
	DisplayName    string
}

type JoinStateNotification struct {
	ConversationID string
	Joined         bool
}

type ChatNotification struct {
	Chat RawChat
}

type ChatRemovedNotification struct {
	ConversationID string
}

type ContactNotification struct {
	Contact RawContact
}

type ContactRemovedNotification struct {
	ContactID string
}

type BlocklistNotification struct{}
