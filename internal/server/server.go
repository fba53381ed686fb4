// Package server is the HTTP boundary: one prediction endpoint, a health
// endpoint for external monitoring, and the audit-trail export. All claim
// processing lives in internal/pipeline; handlers only translate between
// HTTP and Submission/Result.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/audit"
	"github.com/claimlens/claimlens/internal/pipeline"
)

type Server struct {
	router *gin.Engine
	pipe   *pipeline.Pipeline
	health HealthCheckers
	store  *audit.Store // nil disables the export endpoint
	logger *zap.Logger

	maxUploadBytes int64
}

func NewServer(pipe *pipeline.Pipeline, health HealthCheckers, store *audit.Store, maxUploadBytes int64, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:         router,
		pipe:           pipe,
		health:         health,
		store:          store,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	api.POST("/predict", s.handlePredict)
	api.GET("/health", s.handleHealth)
	api.GET("/audit/export", s.handleAuditExport)
}

// Handler exposes the router so the caller owns the http.Server lifecycle.
func (s *Server) Handler() http.Handler { return s.router }
