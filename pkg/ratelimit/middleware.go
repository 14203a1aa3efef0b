package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"courier/internal/config"
	"courier/pkg/metrics"
)

type limiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

func DefaultConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:         true,
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// Limiters keeps one token bucket per client IP.
type Limiters struct {
	cfg config.RateLimitConfig

	mu       sync.RWMutex
	limiters map[string]*limiter
}

func NewLimiters(cfg config.RateLimitConfig) *Limiters {
	def := DefaultConfig()
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	return &Limiters{cfg: cfg, limiters: make(map[string]*limiter)}
}

// Cleanup evicts idle clients every CleanupInterval until ctx is done.
func (l *Limiters) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evictIdle(now)
		}
	}
}

func (l *Limiters) evictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, lim := range l.limiters {
		lim.mu.Lock()
		lastSeen := lim.lastSeen
		lim.mu.Unlock()
		if now.Sub(lastSeen) > l.cfg.MaxAge {
			delete(l.limiters, ip)
		}
	}
}

func (l *Limiters) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

func (l *Limiters) get(clientIP string) *limiter {
	l.mu.RLock()
	lim, ok := l.limiters[clientIP]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok = l.limiters[clientIP]
	if !ok {
		lim = &limiter{
			limiter:  rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst),
			lastSeen: time.Now(),
		}
		l.limiters[clientIP] = lim
	}
	return lim
}

func (l *Limiters) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		lim := l.get(clientIP)
		lim.mu.Lock()
		lim.lastSeen = time.Now()
		lim.mu.Unlock()

		c.Header("X-RateLimit-Limit", strconv.Itoa(int(l.cfg.RPS)))

		if !lim.limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		remaining := lim.limiter.Burst() - int(lim.limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}
