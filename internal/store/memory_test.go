package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/logger"
	pkgerrors "courier/pkg/errors"
)

func TestMemoryStore_ConversationsOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		s.PutChat(RawChat{GUID: id, LastActivity: base.Add(time.Duration(i) * time.Hour)})
	}

	ctx := context.Background()
	chats, err := s.Conversations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "d", chats[0].GUID)
	assert.Equal(t, "c", chats[1].GUID)

	count, err := s.ConversationCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestMemoryStore_MessageNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Message(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestMemoryStore_TrackFollowsSource(t *testing.T) {
	hub := NewHub(logger.NopLogger())
	s := NewMemoryStore()
	s.Track(hub)

	ctx := context.Background()

	hub.Created.Publish(ChatNotification{Chat: RawChat{GUID: "c1", DisplayName: "old"}})
	hub.DisplayName.Publish(DisplayNameNotification{ConversationID: "c1", DisplayName: "new"})
	hub.Received.Publish(MessageNotification{ConversationID: "c1", Objects: []interface{}{
		&RawMessage{GUID: "m1", ChatGUID: "c1"},
	}})
	hub.ContactAdded.Publish(ContactNotification{Contact: RawContact{Identifier: "p1"}})

	chats, err := s.Conversations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "new", chats[0].DisplayName)

	msg, err := s.Message(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "c1", msg.ChatGUID)

	hub.Deleted.Publish(DeletionNotification{ConversationID: "c1", IDs: []string{"m1"}})
	_, err = s.Message(ctx, "m1")
	assert.True(t, pkgerrors.IsNotFound(err))

	hub.ContactGone.Publish(ContactRemovedNotification{ContactID: "p1"})
	contacts, err := s.Contacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, contacts)

	hub.Removed.Publish(ChatRemovedNotification{ConversationID: "c1"})
	count, err := s.ConversationCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Contacts(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
