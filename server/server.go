// Package server exposes the case intake HTTP surface: a health probe and a
// synchronous case submission endpoint that runs the triage workflow and
// returns the reduced result.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/triagemesh/triagemesh/core"
	"github.com/triagemesh/triagemesh/logging"
	"github.com/triagemesh/triagemesh/triage"
)

// CaseProcessor runs one case sheet through the workflow.
type CaseProcessor interface {
	ProcessCase(ctx context.Context, caseSheet string) (string, error)
}

// Options configures a Server.
type Options struct {
	// RequestTimeout bounds one case submission end to end. Defaults to 5m.
	RequestTimeout time.Duration
	// Logger receives request logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Server is the HTTP intake for triage cases.
type Server struct {
	processor CaseProcessor
	timeout   time.Duration
	logger    logging.Logger
	engine    *gin.Engine
}

// New creates a Server over the given processor.
func New(processor CaseProcessor, optFns ...func(o *Options)) *Server {
	opts := Options{
		RequestTimeout: 5 * time.Minute,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		processor: processor,
		timeout:   opts.RequestTimeout,
		logger:    opts.Logger,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/health", s.handleHealth)
	engine.POST("/cases", s.handleCase)
	s.engine = engine
	return s
}

// Handler returns the HTTP handler, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

type caseRequest struct {
	CaseSheet string `json:"case_sheet" binding:"required"`
}

type caseResponse struct {
	Result string `json:"result"`
}

func (s *Server) handleCase(c *gin.Context) {
	var req caseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "case_sheet is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.processor.ProcessCase(ctx, req.CaseSheet)
	if err != nil {
		s.logger.Error("case processing failed after %s: %v", time.Since(start), err)
		switch {
		case errors.Is(err, triage.ErrEmptyCaseSheet):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, core.ErrContractViolation):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		case errors.Is(err, context.DeadlineExceeded):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "case processing timed out"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	s.logger.Info("case processed in %s", time.Since(start))
	c.JSON(http.StatusOK, caseResponse{Result: result})
}
