// Package server exposes the HTTP API: ingestion, querying, feedback and
// annotation intake, evaluation triggers, and health.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plantdocs/scada-rag/internal/registry"
)

// Server wraps the gin router around the component registry.
type Server struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// New creates a server over the registry.
func New(reg *registry.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{reg: reg, logger: logger}
}

// Router builds the route table.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)

	r.POST("/ingest/check-pending", s.handleCheckPending)
	r.POST("/ingest/process", s.handleProcess)

	r.POST("/query", s.handleQuery)

	r.POST("/feedback", s.handleFeedback)
	r.POST("/annotations", s.handleAnnotations)
	r.GET("/feedback/low-rated", s.handleLowRated)

	r.POST("/evaluation/run", s.handleEvaluationRun)
	r.GET("/evaluation/results", s.handleEvaluationResults)

	return r
}

// HTTPServer returns a configured http.Server ready to listen.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
}

// bindStrict decodes a JSON body, rejecting unknown fields so malformed
// payloads fail loudly at the boundary instead of being half-read.
func bindStrict(c *gin.Context, out any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
