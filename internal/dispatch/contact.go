package dispatch

import (
	"courier/internal/ingest"
	"courier/internal/store"
	"courier/pkg/models"
)

const NameContacts = "contacts"

type ContactDispatcher struct {
	base
	deps Deps
}

func NewContactDispatcher(deps Deps) Dispatcher {
	return &ContactDispatcher{base: newBase(NameContacts, deps.Logger), deps: deps}
}

func (d *ContactDispatcher) Wake() {
	d.wake(d.subscribe, nil)
}

func (d *ContactDispatcher) Sleep() {
	d.sleep(nil)
}

func (d *ContactDispatcher) subscribe() []store.Subscription {
	src := d.deps.Source
	bus := d.deps.Bus
	return []store.Subscription{
		src.ContactCreated().Subscribe(func(n store.ContactNotification) {
			bus.Enqueue(func() { d.contact(n, false) })
		}),
		src.ContactUpdated().Subscribe(func(n store.ContactNotification) {
			bus.Enqueue(func() { d.contact(n, true) })
		}),
		src.ContactRemoved().Subscribe(func(n store.ContactRemovedNotification) {
			bus.Enqueue(func() {
				if n.ContactID == "" {
					return
				}
				bus.Publish(models.NewEvent(models.ContactRemoved{ContactID: n.ContactID}))
			})
		}),
		src.BlocklistUpdated().Subscribe(func(store.BlocklistNotification) {
			bus.Enqueue(func() { bus.Publish(models.NewEvent(models.BlocklistUpdated{})) })
		}),
	}
}

func (d *ContactDispatcher) contact(n store.ContactNotification, updated bool) {
	c, err := ingest.Contact(n.Contact)
	if err != nil {
		d.logger.Debugw("Dropping unconvertible contact", "identifier", n.Contact.Identifier, "error", err)
		return
	}
	if updated {
		d.deps.Bus.Publish(models.NewEvent(models.ContactUpdated{Contact: c}))
		return
	}
	d.deps.Bus.Publish(models.NewEvent(models.ContactCreated{Contact: c}))
}
