package dedup

import (
	"context"
	"time"

	"courier/internal/constants"
	"courier/internal/logger"
	"courier/pkg/metrics"
)

// RedisWindow shares one window between replicas consuming the same feed.
// Expiry is delegated to Redis key TTLs.
type RedisWindow struct {
	repo   Repository
	ttl    time.Duration
	prefix string
	logger logger.Logger
}

func NewRedisWindow(repo Repository, ttl time.Duration, log logger.Logger) *RedisWindow {
	return &RedisWindow{
		repo:   repo,
		ttl:    ttl,
		prefix: constants.CacheKeyPrefixDedup,
		logger: log.Component("dedup"),
	}
}

func (w *RedisWindow) Admit(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return w.repo.SetNX(ctx, w.prefix+hash, time.Now().Unix(), w.ttl)
}

func (w *RedisWindow) Size(ctx context.Context) (int, error) {
	return w.repo.CountKeys(ctx, w.prefix)
}

// ReportSize publishes the window size gauge every interval until ctx is
// done.
func (w *RedisWindow) ReportSize(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			size, err := w.Size(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Debugw("Failed to get dedup window size for metrics", "error", err)
				continue
			}
			metrics.SetDedupCacheSize(size)
		}
	}
}
