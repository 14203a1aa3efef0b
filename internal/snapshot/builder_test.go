package snapshot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/logger"
	"courier/internal/store"
)

func seeded(t *testing.T, chats int) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < chats; i++ {
		s.PutChat(store.RawChat{
			GUID:         fmt.Sprintf("c%02d", i),
			Participants: []string{"a"},
			LastActivity: base.Add(time.Duration(i) * time.Minute),
		})
	}
	s.PutContact(store.RawContact{Identifier: "k1", FirstName: "Ada"})
	s.PutContact(store.RawContact{Identifier: "k2", Nickname: "Bo"})
	return s
}

func TestBuilder_LimitClamp(t *testing.T) {
	b := NewBuilder(store.NewMemoryStore(), 10, 50, logger.NopLogger())

	assert.Equal(t, 10, b.Limit(0))
	assert.Equal(t, 10, b.Limit(-3))
	assert.Equal(t, 25, b.Limit(25))
	assert.Equal(t, 50, b.Limit(500))
}

func TestBuilder_AtMostLimitConversations(t *testing.T) {
	b := NewBuilder(seeded(t, 12), 5, 8, logger.NopLogger())

	snap, err := b.Build(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, snap.Conversations, 3)
	assert.Equal(t, 12, snap.TotalChats, "total counts every conversation")
	assert.Equal(t, "c11", snap.Conversations[0].ID, "most recent first")
	assert.Len(t, snap.Contacts, 2)

	snap, err = b.Build(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, snap.Conversations, 8)
}

func TestBuilder_EmptyStore(t *testing.T) {
	b := NewBuilder(store.NewMemoryStore(), 5, 5, logger.NopLogger())

	snap, err := b.Build(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, snap.Conversations)
	assert.NotNil(t, snap.Contacts)
	assert.Zero(t, snap.TotalChats)
}

type failingLookup struct {
	store.Lookup
}

func (failingLookup) Contacts(context.Context) ([]store.RawContact, error) {
	return nil, errors.New("contacts unavailable")
}

func TestBuilder_LookupErrorFails(t *testing.T) {
	b := NewBuilder(failingLookup{Lookup: seeded(t, 2)}, 5, 5, logger.NopLogger())

	_, err := b.Build(context.Background(), 0)
	assert.ErrorContains(t, err, "contacts unavailable")
}
