package transport

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"courier/internal/eventbus"
	pkgerrors "courier/pkg/errors"
	"courier/pkg/models"
)

const streamBuffer = 64

// handleEvents streams bus events as server-sent events. The optional
// filter query parameter is a CEL predicate over type and payload.
func (s *Server) handleEvents(c *gin.Context) {
	var filter eventbus.Filter
	if expr := c.Query("filter"); expr != "" {
		f, err := eventbus.NewExpressionFilter(expr)
		if err != nil {
			s.handleError(c, pkgerrors.ErrValidation.WithCause(err).WithDetail("filter", expr))
			return
		}
		filter = f
	}

	ctx := c.Request.Context()
	id := uuid.NewString()
	events := make(chan models.Event, streamBuffer)

	deliver := func(ev models.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	var sub *eventbus.Subscription
	if filter != nil {
		sub = eventbus.Derive(s.bus, "stream", eventbus.Where(filter), deliver)
	} else {
		sub = eventbus.Derive(s.bus, "stream", eventbus.All, deliver)
	}
	defer sub.Unsubscribe()

	s.attach(id)
	defer s.detach(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Stream-ID", id)

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	s.logger.InfowCtx(ctx, "Stream attached", "stream_id", id, "filtered", filter != nil)
	c.SSEvent("ready", gin.H{"stream_id": id})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			c.SSEvent(string(ev.Type()), ev)
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"at": time.Now().UTC()})
			return true
		}
	})

	s.logger.InfowCtx(ctx, "Stream detached", "stream_id", id)
}
