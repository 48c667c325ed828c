package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// requestFields describes the request by route and session id. Unmatched
// requests fall back to the raw path.
func requestFields(c *gin.Context) []zap.Field {
	fields := []zap.Field{zap.String("method", c.Request.Method)}
	if route := c.FullPath(); route != "" {
		fields = append(fields, zap.String("route", route))
	} else {
		fields = append(fields, zap.String("path", c.Request.URL.Path))
	}
	if sid := c.Param("sid"); sid != "" {
		fields = append(fields, zap.String("sid", sid))
	}
	return fields
}

// loggerMiddleware logs every session request once it has been answered
func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		s.logger.Debug("incoming request",
			append(requestFields(c), zap.String("remote_addr", c.Request.RemoteAddr))...)

		c.Next()

		s.logger.Info("outgoing response", append(requestFields(c),
			zap.Int("status", c.Writer.Status()),
			zap.Int("size", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
		)...)
	}
}

// recoveryMiddleware recovers from panics and returns 500 error
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					append(requestFields(c), zap.Any("error", err))...)
				s.sendError(c, http.StatusInternalServerError, "internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
