// Package server exposes the ask pipeline over HTTP with gin.
package server

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/kyleking/dataverse-agent/internal/agent"
	"github.com/kyleking/dataverse-agent/internal/config"
	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/history"
	"github.com/kyleking/dataverse-agent/internal/logging"
	"github.com/kyleking/dataverse-agent/internal/metrics"
	"github.com/kyleking/dataverse-agent/internal/schema"
)

const shutdownTimeout = 10 * time.Second

// Pipeline is the subset of the agent the HTTP layer drives
type Pipeline interface {
	Ask(ctx context.Context, question string) (*agent.Result, error)
	Plan(ctx context.Context, question string) (*agent.Result, error)
	Schema(ctx context.Context) (*agent.Schema, error)
}

// AskRequest is the body of POST /ask and POST /plan
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// Server serves the HTTP API and the demo page
type Server struct {
	pipeline Pipeline
	history  history.Store
	cfg      config.ServerConfig
	logger   *logging.Logger
	engine   *gin.Engine
}

// New builds the router. A nil store serves an empty history.
func New(pipeline Pipeline, store history.Store, cfg config.ServerConfig, serviceName string, logger *logging.Logger) *Server {
	if store == nil {
		store = history.NopStore{}
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	if mode := strings.ToLower(strings.TrimSpace(cfg.Mode)); mode != "" {
		gin.SetMode(mode)
	}

	s := &Server{
		pipeline: pipeline,
		history:  store,
		cfg:      cfg,
		logger:   logger.WithField("component", "server"),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(RequestID())
	r.Use(Metrics())
	r.Use(RequestLog(s.logger))

	r.GET("/", s.handleIndex)
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/entitysets", s.handleEntitySets)
	r.GET("/history", s.handleHistory)
	r.POST("/ask", s.handleAsk)
	r.POST("/plan", s.handlePlan)

	s.engine = r

	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.engine,
		ReadTimeout:       config.Duration(s.cfg.ReadTimeout),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      config.Duration(s.cfg.WriteTimeout),
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.WithField("address", s.cfg.Address).Info("HTTP server listening")

		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, errors.ErrTypeConfig, "HTTP server failed")
		}

		return nil
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAsk(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	result, err := s.pipeline.Ask(c.Request.Context(), req.Question)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePlan(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	result, err := s.pipeline.Plan(c.Request.Context(), req.Question)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plan": result.Plan, "odata": result.OData})
}

func (s *Server) handleEntitySets(c *gin.Context) {
	sch, err := s.pipeline.Schema(c.Request.Context())
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := schema.WriteListing(&buf, sch.Index); err != nil {
		respondPipelineError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := history.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondError(c, http.StatusBadRequest, "bad_request",
				errors.Newf(errors.ErrTypeValidation, "limit must be a positive integer: %q", raw))
			return
		}
		limit = n
	}

	entries, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
