package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	pkgerrors "courier/pkg/errors"
	"courier/pkg/metrics"
	"courier/pkg/models"
)

// PostgresStore reads the conversation store's relational read model. The
// tables are created by migrations/postgres.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Message(ctx context.Context, id string) (*RawMessage, error) {
	query := `
		SELECT guid, chat_guid, handle, is_from_me, date, subject, service, reply_to_guid, is_read, parts
		FROM messages
		WHERE guid = $1
	`

	start := time.Now()
	row := s.db.QueryRowContext(ctx, query, id)

	var (
		msg   RawMessage
		parts []byte
	)
	err := row.Scan(
		&msg.GUID, &msg.ChatGUID, &msg.Handle, &msg.IsFromMe, &msg.Date,
		&msg.Subject, &msg.Service, &msg.ReplyToGUID, &msg.IsRead, &parts,
	)
	observe("message", start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithCause(err).WithDetail("message", fmt.Sprintf("message %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	var objects []models.RawObject
	if err := json.Unmarshal(parts, &objects); err != nil {
		return nil, pkgerrors.ErrMalformedObject.WithCause(err).WithDetail("guid", id)
	}
	msg.Parts = DecodeObjects(objects, func(int, models.RawObject, error) { msg.Skipped++ })

	return &msg, nil
}

func (s *PostgresStore) Conversations(ctx context.Context, limit int) ([]RawChat, error) {
	query := `
		SELECT guid, display_name, participants, style, service, last_activity, unread_count, joined
		FROM chats
		ORDER BY last_activity DESC, guid ASC
		LIMIT $1
	`

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, limit)
	observe("conversations", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var chats []RawChat
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		var chat RawChat
		if err := rows.Scan(
			&chat.GUID, &chat.DisplayName, pq.Array(&chat.Participants), &chat.Style,
			&chat.Service, &chat.LastActivity, &chat.UnreadCount, &chat.Joined,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		chats = append(chats, chat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return chats, nil
}

func (s *PostgresStore) ConversationCount(ctx context.Context) (int, error) {
	start := time.Now()
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&count)
	observe("conversation_count", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Contacts(ctx context.Context) ([]RawContact, error) {
	query := `
		SELECT identifier, first_name, last_name, nickname, handles
		FROM contacts
		ORDER BY identifier ASC
	`

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	observe("contacts", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []RawContact
	for rows.Next() {
		var c RawContact
		if err := rows.Scan(&c.Identifier, &c.FirstName, &c.LastName, &c.Nickname, pq.Array(&c.Handles)); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}

	return contacts, nil
}

func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	metrics.IncDatabaseQuery("courier", "postgres", operation, status)
	metrics.ObserveDatabaseQueryDuration("courier", "postgres", operation, time.Since(start))
}
