// Package api exposes the risk engine over HTTP: a gin router with
// request-ID and CORS middleware, graceful shutdown, a health endpoint,
// and the single POST /v1/analyze endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/periop-health/risk-engine/internal/domain"
)

// Engine is the subset of service.Engine the API layer depends on.
type Engine interface {
	Analyze(ctx context.Context, hpiText string, options domain.AnalyzeOptions) (*domain.AnalysisResult, error)
	CurrentVersion() string
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	engine        Engine
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, engine Engine) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on the configured log level
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())

	server := &Server{
		configManager: configManager,
		engine:        engine,
		router:        router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/v1")
	{
		v1.POST("/analyze", s.handleAnalyze)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"timestamp":        time.Now(),
		"evidence_version": s.engine.CurrentVersion(),
	})
}

// analyzeRequest is the wire shape of POST /v1/analyze.
type analyzeRequest struct {
	HPIText            string `json:"hpi_text" binding:"required"`
	EvidenceVersion    string `json:"evidence_version"`
	ContextOverride    string `json:"context_override"`
	Mode               string `json:"mode"`
	IncludeMedications bool   `json:"include_medications"`
}

// handleAnalyze runs analyze(hpi_text, options) -> AnalysisResult.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": domain.ErrInvalidInput,
			"message": err.Error(),
		})
		return
	}

	options := domain.AnalyzeOptions{
		EvidenceVersion:    req.EvidenceVersion,
		ContextOverride:    req.ContextOverride,
		Mode:               domain.Mode(req.Mode),
		IncludeMedications: req.IncludeMedications,
	}
	if options.Mode == "" {
		options.Mode = domain.ModeModelBased
	}

	result, err := s.engine.Analyze(c.Request.Context(), req.HPIText, options)
	if err != nil {
		var reqErr *domain.RequestError
		if errors.As(err, &reqErr) {
			status := http.StatusBadRequest
			if reqErr.Kind == domain.ErrVersionNotFound {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": reqErr.Kind, "message": reqErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware adds a unique request ID to each request
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// generateRequestID generates a simple request ID
func generateRequestID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
