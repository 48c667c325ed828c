package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/amoylab/redsess/internal/session"
)

const (
	watchBuffer      = 16
	watchUnsubscribe = 5 * time.Second
)

type watchEvent struct {
	rec session.Record
	err error
}

// handleWatch streams changes of one session as server-sent events
func (s *Server) handleWatch(c *gin.Context) {
	sid := c.Param("sid")
	once := c.Query("once") == "true"
	ctx := c.Request.Context()

	events := make(chan watchEvent, watchBuffer)
	handler := func(rec session.Record, err error) {
		select {
		case events <- watchEvent{rec: rec, err: err}:
		case <-ctx.Done():
		case <-s.shutdownCh:
		}
	}

	var (
		id  session.SubscriptionID
		err error
	)
	if once {
		id, err = s.sessions.SubscribeOnce(ctx, sid, handler)
	} else {
		id, err = s.sessions.Subscribe(ctx, sid, handler)
	}
	if err != nil {
		s.logger.Error("failed to subscribe", zap.String("sid", sid), zap.Error(err))
		s.sendError(c, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.Background(), watchUnsubscribe)
		defer cancel()
		if err := s.sessions.Unsubscribe(uctx, sid, id); err != nil {
			s.logger.Warn("failed to unsubscribe", zap.String("sid", sid), zap.Error(err))
		}
	}()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache, no-transform")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	if _, err := fmt.Fprint(c.Writer, ": subscribed\n\n"); err != nil {
		return
	}
	c.Writer.Flush()

	for {
		select {
		case ev := <-events:
			if ev.err != nil {
				c.SSEvent("error", ev.err.Error())
			} else {
				c.SSEvent("change", ev.rec)
			}
			c.Writer.Flush()
			if once {
				return
			}
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		}
	}
}
