// Package gateway provides the unillm HTTP gateway.
// It exposes the model catalogue, the agent loop and single-turn streaming
// over a small JSON/SSE API.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/liteclaw/unillm/internal/config"
	"github.com/liteclaw/unillm/pkg/agent"
	"github.com/liteclaw/unillm/pkg/llm"
)

// Server represents the unillm gateway server.
type Server struct {
	config config.GatewayConfig
	agent  config.AgentConfig
	client *agent.Client
	echo   *echo.Echo
	logger zerolog.Logger

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// New creates a gateway serving client. Routes are registered immediately so
// Handler can be used without Start.
func New(cfg *config.Config, client *agent.Client, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewCustomValidator()

	s := &Server{
		config: cfg.Gateway,
		agent:  cfg.Agent,
		client: client,
		echo:   e,
		logger: logger.With().Str("component", "gateway").Logger(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Bind, s.config.Port)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("gateway already running")
	}
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr()).Strs("providers", s.client.ProviderNames()).Msg("Gateway server starting")
		errCh <- s.echo.Start(s.Addr())
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Gateway server stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// IsRunning reports whether Run is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns how long the gateway has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startTime)
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Int64("duration_ms", v.Latency.Milliseconds()).
				Msg("request")
			return nil
		},
	}))

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/", s.handleRoot)

	v1 := s.echo.Group("/v1")
	{
		v1.GET("/models", s.handleModels)
		v1.POST("/chat", s.handleChat)
		v1.POST("/chat/stream", s.handleChatStream)
	}
}

// request converts a bound body into a generic request with config defaults.
func (s *Server) request(body *ChatBody) *llm.ChatRequest {
	req := &llm.ChatRequest{
		Model:        body.Model,
		Messages:     body.Messages,
		SystemPrompt: body.SystemPrompt,
		MaxTokens:    body.MaxTokens,
		Temperature:  body.Temperature,
		TopP:         body.TopP,
		Stop:         body.Stop,
	}
	if req.SystemPrompt == "" {
		req.SystemPrompt = s.agent.SystemPrompt
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = s.agent.MaxTokens
	}
	return req
}
