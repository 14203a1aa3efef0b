package dispatch

import (
	"fmt"
	"sync"

	"courier/internal/logger"
)

// Supervisor owns the dispatchers and wakes or sleeps them together.
type Supervisor struct {
	deps   Deps
	logger logger.Logger

	mu          sync.Mutex
	dispatchers []Dispatcher
	names       map[string]struct{}
	awake       bool
}

func NewSupervisor(deps Deps, log logger.Logger) *Supervisor {
	if log == nil {
		log = logger.NopLogger()
	}
	if deps.Logger == nil {
		deps.Logger = log
	}
	return &Supervisor{
		deps:   deps,
		logger: log.Component("supervisor"),
		names:  make(map[string]struct{}),
	}
}

// Register builds a dispatcher from factory. A dispatcher registered while
// the supervisor is awake is woken immediately.
func (s *Supervisor) Register(factory Factory) error {
	if factory == nil {
		return fmt.Errorf("dispatcher factory is nil")
	}

	d := factory(s.deps)
	if d == nil {
		return fmt.Errorf("dispatcher factory returned nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := d.Name()
	if _, dup := s.names[name]; dup {
		return fmt.Errorf("dispatcher %q already registered", name)
	}
	s.names[name] = struct{}{}
	s.dispatchers = append(s.dispatchers, d)

	if s.awake {
		d.Wake()
	}
	return nil
}

// Wake wakes every dispatcher in registration order. No-op when awake.
func (s *Supervisor) Wake() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.awake {
		return
	}
	for _, d := range s.dispatchers {
		d.Wake()
	}
	s.awake = true
	s.logger.Infow("Dispatchers awake", "count", len(s.dispatchers))
}

// Sleep puts every dispatcher to sleep, whatever the current state.
func (s *Supervisor) Sleep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.dispatchers {
		d.Sleep()
	}
	if s.awake {
		s.logger.Infow("Dispatchers asleep", "count", len(s.dispatchers))
	}
	s.awake = false
}

// Close puts every dispatcher to sleep and releases what they own, such as
// their debouncers. The supervisor must not be woken afterwards.
func (s *Supervisor) Close() {
	s.Sleep()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dispatchers {
		if c, ok := d.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

func (s *Supervisor) Awake() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awake
}

func (s *Supervisor) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.dispatchers))
	for _, d := range s.dispatchers {
		names = append(names, d.Name())
	}
	return names
}

// DefaultFactories lists the dispatchers the service runs.
func DefaultFactories() []Factory {
	return []Factory{
		NewMessageDispatcher,
		NewStatusDispatcher,
		NewConversationDispatcher,
		NewContactDispatcher,
		NewHealthDispatcher,
	}
}
