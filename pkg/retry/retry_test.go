package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"courier/internal/config"
	pkgerrors "courier/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(4), func() error {
		calls++
		return errors.New("down")
	})

	assert.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestRetry_FatalErrorStopsImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "wrapped fatal", err: NewFatalError(errors.New("bad input"))},
		{name: "not found", err: pkgerrors.ErrNotFound.WithCause(errors.New("m1"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastPolicy(5), func() error {
				calls++
				return tt.err
			})
			assert.Error(t, err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestRetry_RetryableCodedErrorIsRetried(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return pkgerrors.ErrInternal.WithCause(errors.New("io"))
	})
	assert.Equal(t, 3, calls)
}

func TestRetryWithCallback_ReportsAttempts(t *testing.T) {
	var attempts []int
	_ = RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		return errors.New("down")
	}, func(attempt int, err error, next time.Duration) {
		attempts = append(attempts, attempt)
		assert.Positive(t, next)
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, Policy{MaxAttempts: 5, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}, func() error {
		calls++
		return errors.New("down")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{MaxAttempts: 7, InitialInterval: 10 * time.Millisecond})

	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, p.InitialInterval)
	assert.Equal(t, DefaultPolicy().MaxInterval, p.MaxInterval)
	assert.Equal(t, DefaultPolicy().Multiplier, p.Multiplier)
}
