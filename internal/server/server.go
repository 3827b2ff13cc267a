// File: internal/server/server.go
// Package server exposes the serve-mode command surface: a small JSON API to
// start, stop and observe the automation flow, accept externally generated
// week payloads, and stream progress over WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weifanh/classsync-cli/internal/config"
	"github.com/weifanh/classsync-cli/internal/flow"
	"github.com/weifanh/classsync-cli/internal/schedule"
)

// Runner is the flow surface the API drives.
type Runner interface {
	Run(ctx context.Context, runID string) (*schedule.FillOutcome, error)
	Stop()
	Status() flow.Status
}

// PayloadAcceptor receives externally submitted week payloads.
type PayloadAcceptor interface {
	Accept(ctx context.Context, p *schedule.WeekPayload) error
}

// Server wires the HTTP routes. Runs launched through it live on the base
// context, so shutting the server down winds down the active run too.
type Server struct {
	logger *zap.Logger
	cfg    config.ServerConfig
	runner Runner
	accept PayloadAcceptor

	baseCtx context.Context
	engine  *gin.Engine
}

// New assembles the server. hub, when non-nil, is mounted at /ws for
// progress streaming.
func New(ctx context.Context, logger *zap.Logger, cfg config.ServerConfig, runner Runner, acceptor PayloadAcceptor, hub http.Handler) *Server {
	s := &Server{
		logger:  logger.Named("server"),
		cfg:     cfg,
		runner:  runner,
		accept:  acceptor,
		baseCtx: ctx,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if len(cfg.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{"Content-Type", "Authorization"},
		}))
	}

	api := engine.Group("/api")
	api.POST("/start", s.handleStart)
	api.POST("/stop", s.handleStop)
	api.GET("/status", s.handleStatus)
	api.POST("/payload", s.handlePayload)
	if hub != nil {
		engine.GET("/ws", gin.WrapH(hub))
	}

	s.engine = engine
	return s
}

// Handler returns the HTTP handler for mounting on an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// launch starts a run in the background. Outcomes surface through the
// status endpoint and the progress feed; the HTTP request does not wait.
func (s *Server) launch(runID string) {
	go func() {
		if _, err := s.runner.Run(s.baseCtx, runID); err != nil && !errors.Is(err, flow.ErrStopped) {
			s.logger.Warn("Run ended with error", zap.String("runID", runID), zap.Error(err))
		}
	}()
}

func (s *Server) handleStart(c *gin.Context) {
	if s.runner.Status().Running {
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already active"})
		return
	}
	runID := uuid.NewString()
	s.launch(runID)
	s.logger.Info("Run requested via API", zap.String("runID", runID))
	c.JSON(http.StatusAccepted, gin.H{"runId": runID})
}

func (s *Server) handleStop(c *gin.Context) {
	s.runner.Stop()
	c.JSON(http.StatusOK, gin.H{"stopping": true})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.runner.Status())
}

// handlePayload stores a submitted week payload and, when no run is active,
// launches one with it, mirroring how submitting a schedule from the
// companion site kicks the automation off.
func (s *Server) handlePayload(c *gin.Context) {
	var payload schedule.WeekPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload document"})
		return
	}
	if err := s.accept.Accept(c.Request.Context(), &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"ok": true}
	if !s.runner.Status().Running {
		runID := uuid.NewString()
		s.launch(runID)
		resp["runId"] = runID
		s.logger.Info("Run auto-launched for submitted payload", zap.String("runID", runID))
	}
	c.JSON(http.StatusOK, resp)
}
