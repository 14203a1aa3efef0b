package dedup

import (
	"context"
	"fmt"

	"courier/internal/config"
	"courier/pkg/circuitbreaker"
)

// CircuitBreakerWindow fails fast while the wrapped window keeps erroring.
type CircuitBreakerWindow struct {
	window Window
	cb     *circuitbreaker.Wrapper
}

func NewCircuitBreakerWindow(window Window, name string, cfg config.CircuitBreakerConfig) *CircuitBreakerWindow {
	if !cfg.Enabled {
		return &CircuitBreakerWindow{window: window}
	}
	return &CircuitBreakerWindow{
		window: window,
		cb:     circuitbreaker.NewWrapper(circuitbreaker.FromConfig(name, cfg)),
	}
}

func (w *CircuitBreakerWindow) Admit(ctx context.Context, hash string) (bool, error) {
	if w.cb == nil {
		return w.window.Admit(ctx, hash)
	}

	admitted, err := circuitbreaker.Run(ctx, w.cb, func() (bool, error) {
		return w.window.Admit(ctx, hash)
	})
	if err != nil {
		if w.cb.IsOpen() {
			return false, fmt.Errorf("circuit breaker is open for %s: %w", w.cb.Name(), err)
		}
		return false, err
	}
	return admitted, nil
}

func (w *CircuitBreakerWindow) State() string {
	if w.cb == nil {
		return "disabled"
	}
	return w.cb.State().String()
}
