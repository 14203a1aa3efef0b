// Package transport exposes the event stream and bootstrap snapshot over
// HTTP.
package transport

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/eventbus"
	"courier/internal/logger"
	"courier/internal/snapshot"
	pkgerrors "courier/pkg/errors"
	"courier/pkg/health"
	"courier/pkg/metrics"
	"courier/pkg/middleware"
	"courier/pkg/models"
	"courier/pkg/ratelimit"
	"courier/pkg/tracing"
)

const defaultHeartbeat = 15 * time.Second

type Server struct {
	bus       *eventbus.Bus
	snapshots *snapshot.Builder
	health    *health.CheckerRegistry
	cfg       config.TransportConfig
	limiters  *ratelimit.Limiters
	logger    logger.Logger
	engine    *gin.Engine

	mu      sync.Mutex
	streams map[string]struct{}
}

func NewServer(bus *eventbus.Bus, snapshots *snapshot.Builder, checks *health.CheckerRegistry, cfg config.TransportConfig, log logger.Logger) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if checks == nil {
		checks = health.NewCheckerRegistry()
	}

	s := &Server{
		bus:       bus,
		snapshots: snapshots,
		health:    checks,
		cfg:       cfg,
		logger:    log.Component("transport"),
		streams:   make(map[string]struct{}),
	}
	if cfg.RateLimit.Enabled {
		s.limiters = ratelimit.NewLimiters(cfg.RateLimit)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(s.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(tracing.GinMiddleware(constants.ServiceName))
	router.Use(middleware.LoggerMiddleware(s.logger))

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	if s.limiters != nil {
		v1.Use(s.limiters.Middleware())
	}
	{
		v1.GET("/bootstrap", s.handleBootstrap)
		v1.GET("/events", s.handleEvents)
	}
	return router
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run evicts idle rate-limit buckets until ctx is done.
func (s *Server) Run(ctx context.Context) {
	if s.limiters != nil {
		s.limiters.Cleanup(ctx)
	}
}

func (s *Server) handleError(c *gin.Context, err error) {
	s.logger.WarnwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(pkgerrors.ToHTTPStatus(err), pkgerrors.ToErrorResponse(err))
}

func (s *Server) handleHealth(c *gin.Context) {
	report := s.health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":    report.Status,
		"timestamp": report.Timestamp,
		"checks":    report.Checks,
		"streams":   s.Streams(),
	})
}

// handleBootstrap serves the snapshot as a bootstrap event.
func (s *Server) handleBootstrap(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.handleError(c, pkgerrors.ErrValidation.WithDetail("limit", raw))
			return
		}
		limit = n
	}

	snap, err := s.snapshots.Build(c.Request.Context(), limit)
	if err != nil {
		s.handleError(c, pkgerrors.ErrInternal.WithCause(err))
		return
	}
	c.JSON(http.StatusOK, models.NewEvent(snap))
}

// Streams is the number of attached event streams.
func (s *Server) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// attach registers a stream as a bus consumer.
func (s *Server) attach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[id]; ok {
		return
	}
	s.streams[id] = struct{}{}
	metrics.StreamsActive.Set(float64(len(s.streams)))
	s.logger.Debugw("Stream attached", "stream_id", id, "streams", len(s.streams))
	s.bus.Attach()
}

// detach releases the stream's consumer slot on the bus.
func (s *Server) detach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[id]; !ok {
		return
	}
	delete(s.streams, id)
	metrics.StreamsActive.Set(float64(len(s.streams)))
	s.logger.Debugw("Stream detached", "stream_id", id, "streams", len(s.streams))
	s.bus.Detach()
}
