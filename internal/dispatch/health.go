package dispatch

import (
	"context"
	"time"

	"courier/internal/store"
	"courier/pkg/health"
	"courier/pkg/models"
)

const (
	NameHealth = "health"

	defaultHealthInterval = 30 * time.Second
)

// HealthDispatcher polls the checker registry while awake and publishes
// when the overall status changes. The first poll after waking always
// publishes.
type HealthDispatcher struct {
	base
	deps     Deps
	interval time.Duration
	cancel   context.CancelFunc
}

func NewHealthDispatcher(deps Deps) Dispatcher {
	interval := deps.Pipeline.HealthInterval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthDispatcher{
		base:     newBase(NameHealth, deps.Logger),
		deps:     deps,
		interval: interval,
	}
}

func (d *HealthDispatcher) Wake() {
	d.wake(func() []store.Subscription { return nil }, func() {
		if d.deps.Health == nil {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		d.cancel = cancel
		go d.poll(ctx)
	})
}

func (d *HealthDispatcher) Sleep() {
	d.sleep(func() {
		if d.cancel != nil {
			d.cancel()
			d.cancel = nil
		}
	})
}

func (d *HealthDispatcher) poll(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var last health.Status
	for {
		report := d.deps.Health.Check(ctx)
		if ctx.Err() != nil {
			return
		}
		if report.Status != last {
			last = report.Status
			d.logger.Infow("Health status changed", "status", report.Status)
			d.deps.Bus.Dispatch(models.NewEvent(models.HealthChanged{
				Status:    string(report.Status),
				Checks:    report.Summary(),
				CheckedAt: report.Timestamp.UTC(),
			}))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
