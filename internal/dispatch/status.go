package dispatch

import (
	"courier/internal/debounce"
	"courier/internal/ingest"
	"courier/internal/store"
	"courier/pkg/models"
)

const NameStatus = "status"

// StatusDispatcher publishes delivery status changes, debounced per message.
type StatusDispatcher struct {
	base
	deps      Deps
	debouncer *debounce.Manager
}

func NewStatusDispatcher(deps Deps) Dispatcher {
	return &StatusDispatcher{
		base:      newBase(NameStatus, deps.Logger),
		deps:      deps,
		debouncer: newDebouncer(deps, debounce.CategoryStatusChanged),
	}
}

func (d *StatusDispatcher) Wake() {
	d.wake(func() []store.Subscription {
		return []store.Subscription{
			d.deps.Source.StatusChanged().Subscribe(func(n store.StatusNotification) {
				d.deps.Bus.Enqueue(func() { d.changed(n) })
			}),
		}
	}, nil)
}

func (d *StatusDispatcher) Sleep() {
	d.sleep(nil)
}

// Close drops pending debounced statuses.
func (d *StatusDispatcher) Close() {
	d.debouncer.Close()
}

func (d *StatusDispatcher) changed(n store.StatusNotification) {
	items := d.deps.Registry.ClassifyBatch(n.Objects, ingest.NewContext(n.ConversationID))
	for _, item := range items {
		status, ok := item.(models.StatusItem)
		if !ok {
			d.logger.Debugw("Ignoring non-status item on status stream", "kind", item.Kind(), "id", item.Header().ID)
			continue
		}
		submitStatus(d.debouncer, d.deps.Bus, status)
	}
}

// submitStatus debounces a status item by message id. Only the latest
// status for a message inside the interval is published. Runs on the bus's
// serial context, as do the actions the debouncer fires.
func submitStatus(deb *debounce.Manager, bus Bus, item models.StatusItem) {
	publish := func() {
		bus.Publish(models.NewEvent(models.ItemStatusChanged{Item: item}))
	}
	if deb == nil {
		publish()
		return
	}
	deb.Submit(item.MessageID, debounce.CategoryStatusChanged, publish)
}
