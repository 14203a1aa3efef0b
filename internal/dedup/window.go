package dedup

import (
	"container/list"
	"context"
	"sync"
	"time"

	"courier/pkg/metrics"
)

// Window is a TTL-bounded set of content hashes.
type Window interface {
	// Admit reports true iff hash was absent; it is then inserted with the
	// window's TTL. A present hash is left untouched.
	Admit(ctx context.Context, hash string) (bool, error)
}

type windowEntry struct {
	hash    string
	expires time.Time
}

// MemoryWindow keeps hashes in insertion order. The TTL is fixed, so
// insertion order is also expiry order and eviction only ever looks at the
// front. maxEntries, when positive, caps the set by evicting the oldest.
type MemoryWindow struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

func NewMemoryWindow(ttl time.Duration, maxEntries int) *MemoryWindow {
	return &MemoryWindow{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// WithClock replaces the time source.
func (w *MemoryWindow) WithClock(now func() time.Time) *MemoryWindow {
	w.now = now
	return w
}

func (w *MemoryWindow) Admit(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evictExpired(now)

	if _, seen := w.entries[hash]; seen {
		return false, nil
	}

	w.entries[hash] = w.order.PushBack(&windowEntry{hash: hash, expires: now.Add(w.ttl)})
	if w.maxEntries > 0 {
		for w.order.Len() > w.maxEntries {
			w.remove(w.order.Front())
		}
	}

	metrics.SetDedupCacheSize(w.order.Len())
	return true, nil
}

// Len is the number of live entries, counting any not yet evicted.
func (w *MemoryWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.order.Len()
}

func (w *MemoryWindow) evictExpired(now time.Time) {
	for el := w.order.Front(); el != nil; el = w.order.Front() {
		if el.Value.(*windowEntry).expires.After(now) {
			return
		}
		w.remove(el)
	}
}

func (w *MemoryWindow) remove(el *list.Element) {
	e := w.order.Remove(el).(*windowEntry)
	delete(w.entries, e.hash)
}

// instrumented records outcome counters and latency for a backend.
type instrumented struct {
	Window
	backend string
}

// Instrument wraps w with dedup metrics labelled by backend.
func Instrument(w Window, backend string) Window {
	return &instrumented{Window: w, backend: backend}
}

func (i *instrumented) Admit(ctx context.Context, hash string) (bool, error) {
	start := time.Now()
	admitted, err := i.Window.Admit(ctx, hash)

	status := "duplicate"
	switch {
	case err != nil:
		status = "error"
	case admitted:
		status = "unique"
	}
	metrics.IncDedup(i.backend, status)
	metrics.ObserveDedupDuration(time.Since(start), status)
	return admitted, err
}
