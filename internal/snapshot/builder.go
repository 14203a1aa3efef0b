// Package snapshot assembles the bootstrap state a client loads before it
// starts consuming events.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"courier/internal/constants"
	"courier/internal/ingest"
	"courier/internal/logger"
	"courier/internal/store"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/tracing"
)

type Builder struct {
	lookup       store.Lookup
	defaultLimit int
	maxLimit     int
	logger       logger.Logger
}

func NewBuilder(lookup store.Lookup, defaultLimit, maxLimit int, log logger.Logger) *Builder {
	if defaultLimit < 1 {
		defaultLimit = constants.DefaultBootstrapLimit
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &Builder{
		lookup:       lookup,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       log.Component("snapshot"),
	}
}

// Limit clamps a requested conversation count. Non-positive means default.
func (b *Builder) Limit(requested int) int {
	switch {
	case requested <= 0:
		return b.defaultLimit
	case requested > b.maxLimit:
		return b.maxLimit
	default:
		return requested
	}
}

// Build returns up to limit most recent conversations, every contact, and
// the total conversation count. Unconvertible rows are skipped.
func (b *Builder) Build(ctx context.Context, limit int) (models.Bootstrap, error) {
	limit = b.Limit(limit)
	start := time.Now()

	ctx, span := tracing.GetTracer("snapshot").Start(ctx, "snapshot.build")
	defer span.End()

	var (
		chats    []store.RawChat
		contacts []store.RawContact
		total    int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chats, err = b.lookup.Conversations(gctx, limit)
		if err != nil {
			return fmt.Errorf("failed to load conversations: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		contacts, err = b.lookup.Contacts(gctx)
		if err != nil {
			return fmt.Errorf("failed to load contacts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		total, err = b.lookup.ConversationCount(gctx)
		if err != nil {
			return fmt.Errorf("failed to count conversations: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		metrics.IncLookup("snapshot", "error")
		return models.Bootstrap{}, err
	}
	metrics.IncLookup("snapshot", "success")
	metrics.ObserveLookupDuration("snapshot", time.Since(start))

	if len(chats) > limit {
		chats = chats[:limit]
	}

	out := models.Bootstrap{
		Conversations: make([]models.Conversation, 0, len(chats)),
		Contacts:      make([]models.Contact, 0, len(contacts)),
		TotalChats:    total,
	}
	for _, c := range chats {
		conv, err := ingest.Conversation(c)
		if err != nil {
			b.logger.DebugwCtx(ctx, "Skipping conversation in snapshot", "guid", c.GUID, "error", err)
			continue
		}
		out.Conversations = append(out.Conversations, conv)
	}
	for _, c := range contacts {
		contact, err := ingest.Contact(c)
		if err != nil {
			b.logger.DebugwCtx(ctx, "Skipping contact in snapshot", "identifier", c.Identifier, "error", err)
			continue
		}
		out.Contacts = append(out.Contacts, contact)
	}
	if out.TotalChats < len(out.Conversations) {
		out.TotalChats = len(out.Conversations)
	}

	return out, nil
}
