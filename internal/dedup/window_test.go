package dedup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/config"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMemoryWindow_AdmitsOnce(t *testing.T) {
	w := NewMemoryWindow(time.Minute, 0)
	ctx := context.Background()

	ok, err := w.Admit(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.Admit(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = w.Admit(ctx, "h2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, w.Len())
}

func TestMemoryWindow_ExpiresAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	w := NewMemoryWindow(5*time.Second, 0).WithClock(clock.Now)
	ctx := context.Background()

	ok, _ := w.Admit(ctx, "h1")
	require.True(t, ok)

	clock.Advance(4 * time.Second)
	ok, _ = w.Admit(ctx, "h1")
	assert.False(t, ok, "duplicate inside the window")

	clock.Advance(time.Second)
	ok, _ = w.Admit(ctx, "h1")
	assert.True(t, ok, "admitted again once the TTL has elapsed")
}

func TestMemoryWindow_DuplicateDoesNotRefreshTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	w := NewMemoryWindow(5*time.Second, 0).WithClock(clock.Now)
	ctx := context.Background()

	_, _ = w.Admit(ctx, "h1")
	clock.Advance(3 * time.Second)
	_, _ = w.Admit(ctx, "h1")
	clock.Advance(2 * time.Second)

	ok, _ := w.Admit(ctx, "h1")
	assert.True(t, ok)
}

func TestMemoryWindow_MaxEntriesEvictsOldest(t *testing.T) {
	w := NewMemoryWindow(time.Hour, 3)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		ok, err := w.Admit(ctx, fmt.Sprintf("h%d", i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 3, w.Len())

	ok, _ := w.Admit(ctx, "h0")
	assert.True(t, ok, "oldest entry was evicted")
	ok, _ = w.Admit(ctx, "h3")
	assert.False(t, ok)
}

func TestMemoryWindow_CancelledContext(t *testing.T) {
	w := NewMemoryWindow(time.Minute, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Admit(ctx, "h1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, w.Len())
}

type failingWindow struct {
	calls int
}

func (f *failingWindow) Admit(context.Context, string) (bool, error) {
	f.calls++
	return false, errors.New("backend unavailable")
}

func TestInstrument_PassesThrough(t *testing.T) {
	w := Instrument(NewMemoryWindow(time.Minute, 0), "memory")
	ok, err := w.Admit(context.Background(), "h")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Instrument(&failingWindow{}, "redis").Admit(context.Background(), "h")
	assert.Error(t, err)
}

func TestCircuitBreakerWindow_OpensAfterFailures(t *testing.T) {
	inner := &failingWindow{}
	w := NewCircuitBreakerWindow(inner, "dedup-test", config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  3,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := w.Admit(ctx, "h")
		require.Error(t, err)
	}
	assert.Equal(t, "open", w.State())

	_, err := w.Admit(ctx, "h")
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls, "open breaker does not reach the window")
}

func TestCircuitBreakerWindow_Disabled(t *testing.T) {
	w := NewCircuitBreakerWindow(NewMemoryWindow(time.Minute, 0), "dedup-off", config.CircuitBreakerConfig{})
	assert.Equal(t, "disabled", w.State())

	ok, err := w.Admit(context.Background(), "h")
	require.NoError(t, err)
	assert.True(t, ok)
}
