package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	pkgerrors "courier/pkg/errors"
)

// MemoryStore is a Lookup backed by maps. Track keeps it current with a
// Source so a deployment without PostgreSQL can still serve bootstrap
// snapshots and id lookups.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*RawMessage
	chats    map[string]RawChat
	contacts map[string]RawContact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]*RawMessage),
		chats:    make(map[string]RawChat),
		contacts: make(map[string]RawContact),
	}
}

func (s *MemoryStore) PutMessage(msg *RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.GUID] = msg
}

func (s *MemoryStore) DeleteMessages(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.messages, id)
	}
}

func (s *MemoryStore) PutChat(chat RawChat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.GUID] = chat
}

func (s *MemoryStore) DeleteChat(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, id)
}

func (s *MemoryStore) PutContact(contact RawContact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[contact.Identifier] = contact
}

func (s *MemoryStore) DeleteContact(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contacts, id)
}

func (s *MemoryStore) Message(ctx context.Context, id string) (*RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("message %s not found", id))
	}
	return msg, nil
}

// Conversations returns the most recently active chats first.
func (s *MemoryStore) Conversations(ctx context.Context, limit int) ([]RawChat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	chats := make([]RawChat, 0, len(s.chats))
	for _, chat := range s.chats {
		chats = append(chats, chat)
	}
	s.mu.RUnlock()

	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].LastActivity.Equal(chats[j].LastActivity) {
			return chats[i].LastActivity.After(chats[j].LastActivity)
		}
		return chats[i].GUID < chats[j].GUID
	})

	if limit >= 0 && len(chats) > limit {
		chats = chats[:limit]
	}
	return chats, nil
}

func (s *MemoryStore) ConversationCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats), nil
}

func (s *MemoryStore) Contacts(ctx context.Context) ([]RawContact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	contacts := make([]RawContact, 0, len(s.contacts))
	for _, c := range s.contacts {
		contacts = append(contacts, c)
	}
	s.mu.RUnlock()

	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].Identifier < contacts[j].Identifier
	})
	return contacts, nil
}

// Track subscribes the store to src. The returned subscriptions stay live
// until unsubscribed.
func (s *MemoryStore) Track(src Source) []Subscription {
	putMessages := func(n MessageNotification) {
		for _, obj := range n.Objects {
			if msg, ok := obj.(*RawMessage); ok {
				s.PutMessage(msg)
			}
		}
	}

	return []Subscription{
		src.MessagesReceived().Subscribe(putMessages),
		src.MessagesUpdated().Subscribe(putMessages),
		src.MessagesDeleted().Subscribe(func(n DeletionNotification) {
			s.DeleteMessages(n.IDs...)
		}),
		src.ChatCreated().Subscribe(func(n ChatNotification) {
			s.PutChat(n.Chat)
		}),
		src.ChatRemoved().Subscribe(func(n ChatRemovedNotification) {
			s.DeleteChat(n.ConversationID)
		}),
		src.DisplayNameChanged().Subscribe(func(n DisplayNameNotification) {
			s.updateChat(n.ConversationID, func(c *RawChat) { c.DisplayName = n.DisplayName })
		}),
		src.ParticipantsChanged().Subscribe(func(n ParticipantsNotification) {
			s.updateChat(n.ConversationID, func(c *RawChat) { c.Participants = n.Participants })
		}),
		src.JoinStateChanged().Subscribe(func(n JoinStateNotification) {
			s.updateChat(n.ConversationID, func(c *RawChat) { c.Joined = n.Joined })
		}),
		src.ContactCreated().Subscribe(func(n ContactNotification) {
			s.PutContact(n.Contact)
		}),
		src.ContactUpdated().Subscribe(func(n ContactNotification) {
			s.PutContact(n.Contact)
		}),
		src.ContactRemoved().Subscribe(func(n ContactRemovedNotification) {
			s.DeleteContact(n.ContactID)
		}),
	}
}

func (s *MemoryStore) updateChat(id string, fn func(*RawChat)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[id]
	if !ok {
		return
	}
	fn(&chat)
	s.chats[id] = chat
}
