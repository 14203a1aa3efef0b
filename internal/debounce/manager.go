// Package debounce coalesces bursts of per-key updates into one trailing
// action.
package debounce

import (
	"container/list"
	"sync"
	"time"

	"courier/internal/logger"
	"courier/internal/serial"
	"courier/pkg/metrics"
)

type Category string

const (
	CategoryStatusChanged       Category = "status-changed"
	CategoryParticipantsChanged Category = "participants-changed"
)

// Executor runs fired actions. The event bus's serial queue satisfies it.
type Executor interface {
	Submit(fn serial.Task) bool
}

type entry struct {
	key      string
	action   func()
	deadline time.Time
}

// category holds one table of pending entries. Every submission moves its
// entry to the back with deadline now+interval, so the list stays ordered
// by deadline and the single timer only tracks the front.
type category struct {
	name     Category
	interval time.Duration
	entries  map[string]*list.Element
	order    *list.List
	timer    *time.Timer
	armedFor time.Time
}

// Manager is a trailing-edge debouncer. A submission for a pending
// (category, key) replaces its action and pushes its deadline to
// now+interval; the latest action runs once, through the executor, when
// the deadline passes without another submission.
type Manager struct {
	mu         sync.Mutex
	categories map[Category]*category
	exec       Executor
	logger     logger.Logger
	closed     bool
}

func NewManager(intervals map[Category]time.Duration, exec Executor, log logger.Logger) *Manager {
	m := &Manager{
		categories: make(map[Category]*category, len(intervals)),
		exec:       exec,
		logger:     log.Component("debounce"),
	}
	for name, interval := range intervals {
		if interval <= 0 {
			continue
		}
		m.categories[name] = &category{
			name:     name,
			interval: interval,
			entries:  make(map[string]*list.Element),
			order:    list.New(),
		}
	}
	return m
}

// Submit never fails. An unknown category, or one configured with a zero
// interval, runs the action through the executor right away.
func (m *Manager) Submit(key string, cat Category, action func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	c, ok := m.categories[cat]
	if !ok {
		m.mu.Unlock()
		metrics.IncDebounceSubmission(string(cat), "immediate")
		m.exec.Submit(action)
		return
	}

	now := time.Now()
	deadline := now.Add(c.interval)

	if el, pending := c.entries[key]; pending {
		e := el.Value.(*entry)
		e.action = action
		e.deadline = deadline
		c.order.MoveToBack(el)
		metrics.IncDebounceSubmission(string(cat), "coalesced")
	} else {
		c.entries[key] = c.order.PushBack(&entry{key: key, action: action, deadline: deadline})
		metrics.IncDebounceSubmission(string(cat), "scheduled")
	}

	metrics.SetDebouncePending(string(cat), c.order.Len())
	m.arm(c, now)
	m.mu.Unlock()
}

// Pending is the number of entries waiting to fire in cat.
func (m *Manager) Pending(cat Category) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.categories[cat]
	if !ok {
		return 0
	}
	return c.order.Len()
}

// Interval reports the configured interval of cat, or 0 if unknown.
func (m *Manager) Interval(cat Category) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.categories[cat]; ok {
		return c.interval
	}
	return 0
}

// Close stops every timer and drops pending actions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	for _, c := range m.categories {
		if c.timer != nil {
			c.timer.Stop()
		}
		if n := c.order.Len(); n > 0 {
			m.logger.Debugw("Dropping pending debounced actions", "category", c.name, "count", n)
		}
		c.order.Init()
		c.entries = make(map[string]*list.Element)
		metrics.SetDebouncePending(string(c.name), 0)
	}
}

// arm points the category timer at the front entry's deadline. Callers
// hold m.mu.
func (m *Manager) arm(c *category, now time.Time) {
	front := c.order.Front()
	if front == nil {
		if c.timer != nil {
			c.timer.Stop()
		}
		c.armedFor = time.Time{}
		return
	}

	deadline := front.Value.(*entry).deadline
	if deadline.Equal(c.armedFor) {
		return
	}

	wait := deadline.Sub(now)
	if c.timer == nil {
		c.timer = time.AfterFunc(wait, func() { m.fire(c) })
	} else {
		c.timer.Stop()
		c.timer.Reset(wait)
	}
	c.armedFor = deadline
}

func (m *Manager) fire(c *category) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	now := time.Now()
	var due []*entry
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		e := el.Value.(*entry)
		if e.deadline.After(now) {
			break
		}
		c.order.Remove(el)
		delete(c.entries, e.key)
		due = append(due, e)
	}

	c.armedFor = time.Time{}
	m.arm(c, now)
	metrics.SetDebouncePending(string(c.name), c.order.Len())
	m.mu.Unlock()

	for _, e := range due {
		metrics.IncDebounceFired(string(c.name))
		if !m.exec.Submit(e.action) {
			m.logger.Debugw("Executor closed, debounced action dropped", "category", c.name, "key", e.key)
		}
	}
}
