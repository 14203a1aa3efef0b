// Package dispatch turns raw store notifications into canonical events.
package dispatch

import (
	"sync"
	"time"

	"courier/internal/config"
	"courier/internal/debounce"
	"courier/internal/ingest"
	"courier/internal/logger"
	"courier/internal/serial"
	"courier/internal/store"
	"courier/pkg/health"
	"courier/pkg/metrics"
	"courier/pkg/models"
)

// Dispatcher owns the subscriptions for one family of change streams.
// Wake and Sleep are idempotent.
type Dispatcher interface {
	Name() string
	Wake()
	Sleep()
}

// Bus is the publishing side of the event bus. Publish is for tasks that
// already run on the bus's serial context; Dispatch is for everyone else.
type Bus interface {
	Dispatch(ev models.Event)
	Publish(ev models.Event)
	Enqueue(fn func())
	Submit(fn serial.Task) bool
}

// Deps are the collaborators shared by every dispatcher. Debounce holds the
// intervals; each dispatcher that coalesces builds its own manager from
// them.
type Deps struct {
	Source   store.Source
	Lookup   store.Lookup
	Registry *ingest.Registry
	Bus      Bus
	Debounce map[debounce.Category]time.Duration
	Health   *health.CheckerRegistry
	Pipeline config.PipelineConfig
	Logger   logger.Logger
}

type Factory func(deps Deps) Dispatcher

// newDebouncer builds a manager for cats only, firing on the bus's serial
// context.
func newDebouncer(deps Deps, cats ...debounce.Category) *debounce.Manager {
	intervals := make(map[debounce.Category]time.Duration, len(cats))
	for _, c := range cats {
		if d, ok := deps.Debounce[c]; ok {
			intervals[c] = d
		}
	}
	log := deps.Logger
	if log == nil {
		log = logger.NopLogger()
	}
	return debounce.NewManager(intervals, deps.Bus, log)
}

// base tracks the awake flag and the live subscriptions of a dispatcher.
type base struct {
	name   string
	logger logger.Logger

	mu    sync.Mutex
	awake bool
	subs  []store.Subscription
}

func newBase(name string, log logger.Logger) base {
	if log == nil {
		log = logger.NopLogger()
	}
	return base{name: name, logger: log.Component(name)}
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Awake() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.awake
}

// wake runs subscribe unless already awake. onWake runs under the same
// lock, after subscribing.
func (b *base) wake(subscribe func() []store.Subscription, onWake func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.awake {
		return
	}
	b.subs = subscribe()
	b.awake = true
	if onWake != nil {
		onWake()
	}
	metrics.SetDispatcherAwake(b.name, true)
	b.logger.Debugw("Dispatcher awake", "subscriptions", len(b.subs))
}

func (b *base) sleep(onSleep func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.awake {
		return
	}
	for _, s := range b.subs {
		s.Unsubscribe()
	}
	b.subs = nil
	b.awake = false
	if onSleep != nil {
		onSleep()
	}
	metrics.SetDispatcherAwake(b.name, false)
	b.logger.Debugw("Dispatcher asleep")
}
