package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"courier/internal/constants"
	"courier/internal/debounce"
	"courier/internal/ingest"
	"courier/internal/serial"
	"courier/internal/store"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/retry"
	"courier/pkg/tracing"
)

const (
	NameMessages = "messages"

	batchReceived = "received"
	batchUpdated  = "updated"
)

// MessageDispatcher publishes received, updated and removed items.
// Notifications of all three kinds share one private queue and are handled
// one at a time in arrival order; ids inside one notification are looked up
// concurrently.
type MessageDispatcher struct {
	base
	deps        Deps
	policy      retry.Policy
	concurrency int
	debouncer   *debounce.Manager
	work        *serial.Queue
}

func NewMessageDispatcher(deps Deps) Dispatcher {
	return newMessageDispatcher(deps)
}

func newMessageDispatcher(deps Deps) *MessageDispatcher {
	concurrency := deps.Pipeline.LookupConcurrency
	if concurrency < 1 {
		concurrency = constants.DefaultLookupConcurrency
	}
	return &MessageDispatcher{
		base:        newBase(NameMessages, deps.Logger),
		deps:        deps,
		policy:      retry.FromConfig(deps.Pipeline.LookupRetry),
		concurrency: concurrency,
		debouncer:   newDebouncer(deps, debounce.CategoryStatusChanged),
	}
}

func (d *MessageDispatcher) Wake() {
	d.wake(d.subscribe, func() {
		d.work = serial.New("dispatch-"+d.name, d.logger)
	})
}

// Sleep stops new notifications. Conversions already queued still run and
// may publish.
func (d *MessageDispatcher) Sleep() {
	d.sleep(func() {
		go d.work.Close()
		d.work = nil
	})
}

// Close drops status items still waiting in the debouncer.
func (d *MessageDispatcher) Close() {
	d.debouncer.Close()
}

func (d *MessageDispatcher) subscribe() []store.Subscription {
	src := d.deps.Source
	return []store.Subscription{
		src.MessagesReceived().Subscribe(func(n store.MessageNotification) {
			d.schedule(func() { d.convert(n, batchReceived) })
		}),
		src.MessagesUpdated().Subscribe(func(n store.MessageNotification) {
			d.schedule(func() { d.convert(n, batchUpdated) })
		}),
		src.MessagesDeleted().Subscribe(func(n store.DeletionNotification) {
			d.schedule(func() { d.deps.Bus.Enqueue(func() { d.removed(n) }) })
		}),
	}
}

func (d *MessageDispatcher) schedule(fn func()) {
	d.mu.Lock()
	q := d.work
	d.mu.Unlock()
	if q != nil {
		q.Submit(fn)
	}
}

func (d *MessageDispatcher) convert(n store.MessageNotification, batch string) {
	ctx := logging.WithDispatcher(context.Background(), d.name)
	if n.TraceID != "" {
		ctx = logging.WithTraceID(ctx, n.TraceID)
	}
	if n.ConversationID != "" {
		ctx = logging.WithConversationID(ctx, n.ConversationID)
	}
	ctx, span := tracing.GetTracer("dispatch").Start(ctx, "dispatch.messages."+batch)
	defer span.End()

	ictx := ingest.NewContext(n.ConversationID)
	items := d.deps.Registry.ClassifyBatchCtx(ctx, n.Objects, ictx)
	if len(n.IDs) > 0 {
		items = append(items, d.deps.Registry.ClassifyBatchCtx(ctx, d.resolve(ctx, n.IDs), ictx)...)
	}

	d.deps.Bus.Enqueue(func() { d.publish(ctx, items, batch) })
}

// resolve looks up ids concurrently and returns the found messages in id
// order. Failed lookups are logged and left out.
func (d *MessageDispatcher) resolve(ctx context.Context, ids []string) []interface{} {
	found := make([]*store.RawMessage, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			start := time.Now()
			var msg *store.RawMessage
			err := retry.Retry(gctx, d.policy, func() error {
				m, err := d.deps.Lookup.Message(gctx, id)
				if err != nil {
					return err
				}
				msg = m
				return nil
			})
			metrics.ObserveLookupDuration(d.name, time.Since(start))

			if err != nil {
				metrics.IncLookup(d.name, "error")
				d.logger.DebugwCtx(ctx, "Message lookup failed", "message_id", id, "error", err)
				return nil
			}
			metrics.IncLookup(d.name, "success")
			found[i] = msg
			return nil
		})
	}
	_ = g.Wait()

	out := make([]interface{}, 0, len(ids))
	for _, m := range found {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// publish runs on the bus's serial context. Status items in a received
// batch go through the debounced status path instead.
func (d *MessageDispatcher) publish(ctx context.Context, items models.Items, batch string) {
	if batch == batchUpdated {
		if len(items) > 0 {
			d.deps.Bus.Publish(models.NewEvent(models.ItemsUpdated{Items: items}))
		}
		return
	}

	var rest models.Items
	for _, item := range items {
		if status, ok := item.(models.StatusItem); ok {
			submitStatus(d.debouncer, d.deps.Bus, status)
			continue
		}
		rest = append(rest, item)
	}
	if len(rest) == 0 {
		return
	}

	d.logger.DebugwCtx(ctx, "Publishing received items", "count", len(rest))
	d.deps.Bus.Publish(models.NewEvent(models.ItemsReceived{Items: rest}))
}

func (d *MessageDispatcher) removed(n store.DeletionNotification) {
	if len(n.IDs) == 0 {
		return
	}
	ids := make([]string, len(n.IDs))
	copy(ids, n.IDs)
	d.deps.Bus.Publish(models.NewEvent(models.ItemsRemoved{ConversationID: n.ConversationID, IDs: ids}))
}
