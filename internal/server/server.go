package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/amoylab/redsess/internal/common/config"
	"github.com/amoylab/redsess/internal/session"
	"github.com/amoylab/redsess/pkg/metrics"
)

type (
	// Server exposes a session store over HTTP
	Server struct {
		logger  *zap.Logger
		cfg     *config.Config
		router  *gin.Engine
		httpSrv *http.Server
		// sessions is the store every handler works on
		sessions session.Store
		metrics  *metrics.Metrics
		// shutdownCh is used to signal shutdown to all watch streams
		shutdownCh   chan struct{}
		shutdownOnce sync.Once
	}
)

// NewServer creates a new HTTP server with all routes registered
func NewServer(logger *zap.Logger, cfg *config.Config, sessions session.Store, m *metrics.Metrics) *Server {
	s := &Server{
		logger:     logger.Named("server"),
		cfg:        cfg,
		router:     gin.New(),
		sessions:   sessions,
		metrics:    m,
		shutdownCh: make(chan struct{}),
	}

	s.router.Use(s.recoveryMiddleware())
	if cfg.Tracing.Enabled {
		s.router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	if cfg.Metrics.Enabled {
		s.router.Use(m.Middleware())
	}
	s.router.Use(s.loggerMiddleware())

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if s.cfg.Metrics.Enabled {
		s.router.GET(s.cfg.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	sessions := s.router.Group("/sessions")
	sessions.GET("/:sid", s.handleGet)
	sessions.PUT("/:sid", s.handlePut)
	sessions.DELETE("/:sid", s.handleDelete)
	sessions.GET("/:sid/watch", s.handleWatch)
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP in the background
func (s *Server) Start() {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", s.cfg.HTTP.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to start server", zap.Error(err))
		}
	}()
}

// Shutdown closes watch streams and stops accepting requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
