package dispatch

import (
	"courier/internal/debounce"
	"courier/internal/ingest"
	"courier/internal/store"
	"courier/pkg/models"
)

const NameConversations = "conversations"

type ConversationDispatcher struct {
	base
	deps      Deps
	debouncer *debounce.Manager
}

func NewConversationDispatcher(deps Deps) Dispatcher {
	return &ConversationDispatcher{
		base:      newBase(NameConversations, deps.Logger),
		deps:      deps,
		debouncer: newDebouncer(deps, debounce.CategoryParticipantsChanged),
	}
}

func (d *ConversationDispatcher) Wake() {
	d.wake(d.subscribe, nil)
}

func (d *ConversationDispatcher) Sleep() {
	d.sleep(nil)
}

func (d *ConversationDispatcher) Close() {
	d.debouncer.Close()
}

func (d *ConversationDispatcher) subscribe() []store.Subscription {
	src := d.deps.Source
	bus := d.deps.Bus
	return []store.Subscription{
		src.ParticipantsChanged().Subscribe(func(n store.ParticipantsNotification) {
			bus.Enqueue(func() { d.participants(n) })
		}),
		src.DisplayNameChanged().Subscribe(func(n store.DisplayNameNotification) {
			bus.Enqueue(func() {
				d.publish(n.ConversationID, models.ConversationDisplayNameChanged{
					ConversationID: n.ConversationID,
					DisplayName:    n.DisplayName,
				})
			})
		}),
		src.JoinStateChanged().Subscribe(func(n store.JoinStateNotification) {
			bus.Enqueue(func() {
				d.publish(n.ConversationID, models.ConversationJoinStateChanged{
					ConversationID: n.ConversationID,
					Joined:         n.Joined,
				})
			})
		}),
		src.ChatCreated().Subscribe(func(n store.ChatNotification) {
			bus.Enqueue(func() { d.created(n) })
		}),
		src.ChatRemoved().Subscribe(func(n store.ChatRemovedNotification) {
			bus.Enqueue(func() {
				d.publish(n.ConversationID, models.ConversationRemoved{ConversationID: n.ConversationID})
			})
		}),
	}
}

func (d *ConversationDispatcher) publish(conversationID string, p models.Payload) {
	if conversationID == "" {
		d.logger.Debugw("Dropping conversation change without conversation id", "type", p.EventType())
		return
	}
	d.deps.Bus.Publish(models.NewEvent(p))
}

// participants debounces membership churn per conversation; the last list
// wins.
func (d *ConversationDispatcher) participants(n store.ParticipantsNotification) {
	participants := make([]string, len(n.Participants))
	copy(participants, n.Participants)

	payload := models.ParticipantsChanged{ConversationID: n.ConversationID, Participants: participants}
	if n.ConversationID == "" {
		d.publish(n.ConversationID, payload)
		return
	}
	d.debouncer.Submit(n.ConversationID, debounce.CategoryParticipantsChanged, func() {
		d.publish(n.ConversationID, payload)
	})
}

func (d *ConversationDispatcher) created(n store.ChatNotification) {
	conv, err := ingest.Conversation(n.Chat)
	if err != nil {
		d.logger.Debugw("Dropping unconvertible chat", "guid", n.Chat.GUID, "error", err)
		return
	}
	d.deps.Bus.Publish(models.NewEvent(models.ConversationCreated{Conversation: conv}))
}
