package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/liteclaw/unillm/internal/version"
	"github.com/liteclaw/unillm/pkg/agent"
	"github.com/liteclaw/unillm/pkg/llm"
)

// ChatBody is the request body of both chat routes.
type ChatBody struct {
	// Provider selects a registered provider; Model may also carry a
	// "provider/model" prefix.
	Provider     string        `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
	Messages     []llm.Message `json:"messages" validate:"required,min=1,dive"`
	SystemPrompt string        `json:"systemPrompt,omitempty"`
	MaxTokens    int           `json:"maxTokens,omitempty" validate:"gte=0"`
	Temperature  *float64      `json:"temperature,omitempty"`
	TopP         *float64      `json:"topP,omitempty"`
	Stop         []string      `json:"stop,omitempty"`
}

// ChatResponse is the body returned by POST /v1/chat.
type ChatResponse struct {
	*agent.Result
	Error string `json:"error,omitempty"`
}

// ModelEntry is one row of GET /v1/models.
type ModelEntry struct {
	Key               string `json:"key"`
	Provider          string `json:"provider"`
	ID                string `json:"id"`
	SupportsStreaming bool   `json:"supportsStreaming"`
	SupportsTools     bool   `json:"supportsTools"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error      string `json:"error"`
	Provider   string `json:"provider,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"name":      "unillm gateway",
		"version":   version.Version,
		"providers": s.client.ProviderNames(),
	})
}

// handleModels handles GET /v1/models
func (s *Server) handleModels(c echo.Context) error {
	catalogue := s.client.Models()
	out := make([]ModelEntry, 0, len(catalogue))
	for _, m := range catalogue {
		out = append(out, ModelEntry{
			Key:               m.Key(),
			Provider:          m.Provider,
			ID:                m.ID,
			SupportsStreaming: m.SupportsStreaming,
			SupportsTools:     m.SupportsTools,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"models": out})
}

// handleChat handles POST /v1/chat. It runs the full agent loop.
func (s *Server) handleChat(c echo.Context) error {
	body, err := s.bind(c)
	if err != nil {
		return err
	}

	res, err := s.client.Run(c.Request().Context(), s.request(body), agent.RunOptions{Provider: body.Provider})
	var limit *agent.IterationLimitError
	switch {
	case errors.As(err, &limit):
		return c.JSON(http.StatusUnprocessableEntity, ChatResponse{Result: res, Error: err.Error()})
	case err != nil:
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, ChatResponse{Result: res})
}

// handleChatStream handles POST /v1/chat/stream. It streams a single turn
// as server-sent events, one StreamChunk per event, then "[DONE]".
func (s *Server) handleChatStream(c echo.Context) error {
	body, err := s.bind(c)
	if err != nil {
		return err
	}

	req := s.request(body)
	if body.Provider != "" {
		if _, err := s.client.Provider(body.Provider); err != nil {
			return s.fail(c, err)
		}
		if _, _, prefixed := s.client.SplitModel(req.Model); !prefixed {
			req.Model = body.Provider + "/" + req.Model
		}
	}

	chunks, err := s.client.Stream(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for chunk := range chunks {
		data, err := json.Marshal(chunk)
		if err != nil {
			s.logger.Warn().Err(err).Msg("encode chunk")
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return nil
		}
		w.Flush()
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	w.Flush()
	return nil
}

func (s *Server) bind(c echo.Context) (*ChatBody, error) {
	var body ChatBody
	if err := c.Bind(&body); err != nil {
		return nil, err
	}
	if err := c.Validate(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

// fail maps loop and provider errors onto HTTP responses.
func (s *Server) fail(c echo.Context, err error) error {
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	switch pe, ok := llm.AsProviderError(err); {
	case errors.Is(err, agent.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, agent.ErrUnknownProvider):
		status = http.StatusNotFound
	case errors.Is(err, agent.ErrNoProvider):
		status = http.StatusServiceUnavailable
	case ok:
		status = http.StatusBadGateway
		resp.Provider = pe.Provider
		resp.StatusCode = pe.StatusCode
	}

	s.logger.Warn().Err(err).Int("status", status).Msg("request failed")
	return c.JSON(status, resp)
}
