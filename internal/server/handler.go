package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/amoylab/redsess/internal/session"
)

const maxBodyBytes = 1 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (s *Server) sendError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// handleGet returns the whole record, or a single value when ?field=<gjson path> is given
func (s *Server) handleGet(c *gin.Context) {
	sid := c.Param("sid")
	rec, err := s.sessions.Get(c.Request.Context(), sid)
	if err != nil {
		s.logger.Error("failed to get session", zap.String("sid", sid), zap.Error(err))
		s.sendError(c, http.StatusInternalServerError, "failed to get session")
		return
	}
	if rec == nil {
		s.sendError(c, http.StatusNotFound, "session not found")
		return
	}

	field := c.Query("field")
	if field == "" {
		c.JSON(http.StatusOK, rec)
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		s.sendError(c, http.StatusInternalServerError, "failed to encode session")
		return
	}
	value := gjson.GetBytes(data, field)
	if !value.Exists() {
		s.sendError(c, http.StatusNotFound, "field not found")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(value.Raw))
}

// handlePut stores the JSON object body, with an optional ?ttl=<duration>
func (s *Server) handlePut(c *gin.Context) {
	sid := c.Param("sid")

	var ttl time.Duration
	if raw := c.Query("ttl"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.sendError(c, http.StatusBadRequest, "invalid ttl")
			return
		}
		ttl = d
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(c, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		s.sendError(c, http.StatusBadRequest, "failed to read body")
		return
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		s.sendError(c, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	var rec session.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		s.sendError(c, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	if ttl > 0 {
		err = s.sessions.SetWithTTL(c.Request.Context(), sid, rec, ttl)
	} else {
		err = s.sessions.Set(c.Request.Context(), sid, rec)
	}
	if err != nil {
		s.logger.Error("failed to set session", zap.String("sid", sid), zap.Error(err))
		if errors.Is(err, session.ErrEncode) {
			s.sendError(c, http.StatusBadRequest, "failed to encode session")
			return
		}
		s.sendError(c, http.StatusInternalServerError, "failed to set session")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDelete(c *gin.Context) {
	sid := c.Param("sid")
	if err := s.sessions.Destroy(c.Request.Context(), sid); err != nil {
		s.logger.Error("failed to destroy session", zap.String("sid", sid), zap.Error(err))
		s.sendError(c, http.StatusInternalServerError, "failed to destroy session")
		return
	}
	c.Status(http.StatusNoContent)
}
