package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/amara-nwosu/docscan/internal/ingest"
)

// Server exposes the ingestion gateway over HTTP. Authentication sits in
// front of this service; the owning principal arrives as a header set by
// the gateway.
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	ingest  *ingest.Service
	db      *sql.DB
	logger  *slog.Logger
	maxBody int64
}

func New(svc *ingest.Service, db *sql.DB, addr string, maxBody int64, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		engine:  engine,
		ingest:  svc,
		db:      db,
		logger:  logger,
		maxBody: maxBody,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	v1 := s.engine.Group("/v1")
	{
		v1.POST("/documents", s.handleUpload)
		v1.GET("/documents/:id", s.handleGet)
		v1.POST("/documents/:id/reprocess", s.handleReprocess)
	}
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http.request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
