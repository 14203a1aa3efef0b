package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"courier/internal/logger"
	pkgerrors "courier/pkg/errors"
	"courier/pkg/logging"
	"courier/pkg/models"
)

// Topic is an in-process Stream. Publish calls subscribers synchronously in
// subscription order.
type Topic[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []topicSub[T]
}

type topicSub[T any] struct {
	id uint64
	fn func(T)
}

type topicSubscription[T any] struct {
	topic *Topic[T]
	id    uint64
	once  sync.Once
}

func (s *topicSubscription[T]) Unsubscribe() {
	s.once.Do(func() { s.topic.remove(s.id) })
}

func (t *Topic[T]) Subscribe(fn func(T)) Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	t.subs = append(t.subs, topicSub[T]{id: t.nextID, fn: fn})
	return &topicSubscription[T]{topic: t, id: t.nextID}
}

func (t *Topic[T]) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, sub := range t.subs {
		if sub.id == id {
			t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
			return
		}
	}
}

func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	subs := make([]topicSub[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(v)
	}
}

func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Hub is the in-memory Source. Change records arriving from the broker are
// decoded by Ingest and fanned out on the matching topic.
type Hub struct {
	Received      *Topic[MessageNotification]
	Updated       *Topic[MessageNotification]
	Deleted       *Topic[DeletionNotification]
	Status        *Topic[StatusNotification]
	Participants  *Topic[ParticipantsNotification]
	DisplayName   *Topic[DisplayNameNotification]
	JoinState     *Topic[JoinStateNotification]
	Created       *Topic[ChatNotification]
	Removed       *Topic[ChatRemovedNotification]
	ContactAdded  *Topic[ContactNotification]
	ContactEdited *Topic[ContactNotification]
	ContactGone   *Topic[ContactRemovedNotification]
	Blocklist     *Topic[BlocklistNotification]

	logger logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		Received:      &Topic[MessageNotification]{},
		Updated:       &Topic[MessageNotification]{},
		Deleted:       &Topic[DeletionNotification]{},
		Status:        &Topic[StatusNotification]{},
		Participants:  &Topic[ParticipantsNotification]{},
		DisplayName:   &Topic[DisplayNameNotification]{},
		JoinState:     &Topic[JoinStateNotification]{},
		Created:       &Topic[ChatNotification]{},
		Removed:       &Topic[ChatRemovedNotification]{},
		ContactAdded:  &Topic[ContactNotification]{},
		ContactEdited: &Topic[ContactNotification]{},
		ContactGone:   &Topic[ContactRemovedNotification]{},
		Blocklist:     &Topic[BlocklistNotification]{},
		logger:        log.Component("hub"),
	}
}

func (h *Hub) MessagesReceived() Stream[MessageNotification]           { return h.Received }
func (h *Hub) MessagesUpdated() Stream[MessageNotification]            { return h.Updated }
func (h *Hub) MessagesDeleted() Stream[DeletionNotification]           { return h.Deleted }
func (h *Hub) StatusChanged() Stream[StatusNotification]               { return h.Status }
func (h *Hub) ParticipantsChanged() Stream[ParticipantsNotification]   { return h.Participants }
func (h *Hub) DisplayNameChanged() Stream[DisplayNameNotification]     { return h.DisplayName }
func (h *Hub) JoinStateChanged() Stream[JoinStateNotification]         { return h.JoinState }
func (h *Hub) ChatCreated() Stream[ChatNotification]                   { return h.Created }
func (h *Hub) ChatRemoved() Stream[ChatRemovedNotification]            { return h.Removed }
func (h *Hub) ContactCreated() Stream[ContactNotification]             { return h.ContactAdded }
func (h *Hub) ContactUpdated() Stream[ContactNotification]             { return h.ContactEdited }
func (h *Hub) ContactRemoved() Stream[ContactRemovedNotification]      { return h.ContactGone }
func (h *Hub) BlocklistUpdated() Stream[BlocklistNotification]         { return h.Blocklist }

// SubscriberCount is the total number of live subscriptions across topics.
func (h *Hub) SubscriberCount() int {
	return h.Received.Len() + h.Updated.Len() + h.Deleted.Len() + h.Status.Len() +
		h.Participants.Len() + h.DisplayName.Len() + h.JoinState.Len() + h.Created.Len() +
		h.Removed.Len() + h.ContactAdded.Len() + h.ContactEdited.Len() + h.ContactGone.Len() +
		h.Blocklist.Len()
}

// Ingest decodes a change record and publishes it on its topic. Objects
// that do not decode are skipped and their siblings still published. A
// record with an invalid envelope returns an error wrapping
// ErrMalformedObject or ErrValidation and is not published.
func (h *Hub) Ingest(ctx context.Context, rec models.ChangeRecord) error {
	if err := models.ValidateChangeRecord(&rec); err != nil {
		return pkgerrors.ErrValidation.WithCause(err)
	}

	ctx = logging.WithConversationID(ctx, rec.ConversationID)
	if rec.Metadata.TraceID != "" {
		ctx = logging.WithTraceID(ctx, rec.Metadata.TraceID)
	}

	skip := func(i int, obj models.RawObject, err error) {
		h.logger.DebugwCtx(ctx, "Skipping undecodable object",
			"record_id", rec.ID,
			"index", i,
			"object_type", obj.Type,
			"error", err,
		)
	}

	switch rec.Category {
	case models.CategoryMessageReceived, models.CategoryMessageUpdated:
		objects := DecodeObjects(rec.Objects, skip)
		n := MessageNotification{
			ConversationID: rec.ConversationID,
			Objects:        objects,
			IDs:            rec.IDs,
			TraceID:        rec.Metadata.TraceID,
		}
		if rec.Category == models.CategoryMessageReceived {
			h.Received.Publish(n)
		} else {
			h.Updated.Publish(n)
		}

	case models.CategoryMessagesDeleted:
		h.Deleted.Publish(DeletionNotification{ConversationID: rec.ConversationID, IDs: rec.IDs})

	case models.CategoryStatusChanged:
		objects := DecodeObjects(rec.Objects, skip)
		h.Status.Publish(StatusNotification{ConversationID: rec.ConversationID, Objects: objects})

	case models.CategoryParticipantsChanged:
		var participants []string
		if err := decodeValue(rec, &participants); err != nil {
			return err
		}
		h.Participants.Publish(ParticipantsNotification{ConversationID: rec.ConversationID, Participants: participants})

	case models.CategoryDisplayNameChanged:
		var name string
		if err := decodeValue(rec, &name); err != nil {
			return err
		}
		h.DisplayName.Publish(DisplayNameNotification{ConversationID: rec.ConversationID, DisplayName: name})

	case models.CategoryJoinStateChanged:
		var joined bool
		if err := decodeValue(rec, &joined); err != nil {
			return err
		}
		h.JoinState.Publish(JoinStateNotification{ConversationID: rec.ConversationID, Joined: joined})

	case models.CategoryChatCreated:
		chat, err := decodeSingle[RawChat](rec, ObjectChat)
		if err != nil {
			return err
		}
		h.Created.Publish(ChatNotification{Chat: *chat})

	case models.CategoryChatRemoved:
		h.Removed.Publish(ChatRemovedNotification{ConversationID: rec.ConversationID})

	case models.CategoryContactCreated, models.CategoryContactUpdated:
		contact, err := decodeSingle[RawContact](rec, ObjectContact)
		if err != nil {
			return err
		}
		if rec.Category == models.CategoryContactCreated {
			h.ContactAdded.Publish(ContactNotification{Contact: *contact})
		} else {
			h.ContactEdited.Publish(ContactNotification{Contact: *contact})
		}

	case models.CategoryContactRemoved:
		h.ContactGone.Publish(ContactRemovedNotification{ContactID: rec.IDs[0]})

	case models.CategoryBlocklistUpdated:
		h.Blocklist.Publish(BlocklistNotification{})
	}

	h.logger.DebugwCtx(ctx, "Change record ingested",
		"record_id", rec.ID,
		"category", rec.Category,
	)
	return nil
}

func decodeValue(rec models.ChangeRecord, dst interface{}) error {
	if err := json.Unmarshal(rec.Value, dst); err != nil {
		return pkgerrors.ErrMalformedObject.WithCause(err).WithDetail("category", string(rec.Category))
	}
	return nil
}

func decodeSingle[T any](rec models.ChangeRecord, objectType string) (*T, error) {
	if len(rec.Objects) != 1 || rec.Objects[0].Type != objectType {
		return nil, pkgerrors.ErrMalformedObject.WithDetail("message",
			fmt.Sprintf("%s record must carry exactly one %s object", rec.Category, objectType))
	}

	v, err := DecodeObject(rec.Objects[0])
	if err != nil {
		return nil, err
	}

	out, ok := v.(*T)
	if !ok {
		return nil, pkgerrors.ErrMalformedObject.WithDetail("message", fmt.Sprintf("unexpected %T", v))
	}
	return out, nil
}
