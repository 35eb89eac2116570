// Package ollama adapts the Ollama /api/chat endpoint, which answers with a
// plain JSON object or, when streaming, newline-delimited JSON.
package ollama

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/liteclaw/unillm/pkg/llm"
	"github.com/liteclaw/unillm/pkg/llm/transport"
	"github.com/liteclaw/unillm/pkg/llm/wire"
)

// DefaultBaseURL is the local Ollama daemon.
const DefaultBaseURL = "http://localhost:11434"

// DefaultModels is the catalogue used when Config.Models is empty.
var DefaultModels = []llm.ModelInfo{
	{ID: "llama3.1", SupportsStreaming: true, SupportsTools: true},
	{ID: "qwen2.5", SupportsStreaming: true, SupportsTools: true},
	{ID: "mistral", SupportsStreaming: true, SupportsTools: true},
	{ID: "gemma2", SupportsStreaming: true, SupportsTools: false},
}

// Config configures a Provider.
type Config struct {
	Name    string
	BaseURL string
	Model   string
	Models  []llm.ModelInfo
}

// Provider implements llm.Provider for Ollama.
type Provider struct {
	name   string
	model  string
	models []llm.ModelInfo
	http   *transport.Client
	logger zerolog.Logger
}

// New creates a provider.
func New(cfg Config, opts ...transport.Option) *Provider {
	if cfg.Name == "" {
		cfg.Name = "ollama"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels
	}
	if cfg.Model == "" {
		cfg.Model = cfg.Models[0].ID
	}
	hc := transport.New(cfg.Name, cfg.BaseURL, opts...)
	return &Provider{
		name:   cfg.Name,
		model:  cfg.Model,
		models: cfg.Models,
		http:   hc,
		logger: hc.Logger(),
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Models() []llm.ModelInfo {
	return append([]llm.ModelInfo(nil), p.models...)
}

// Chat sends a request with stream disabled.
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := p.buildRequest(req, false)
	p.logger.Debug().Str("provider", p.name).Str("model", body.Model).Bool("stream", false).Msg("chat request")

	var resp chatResponse
	if err := p.http.PostJSON(ctx, "api/chat", nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &llm.ProviderError{Provider: p.name, Message: resp.Error}
	}

	out := &llm.ChatResponse{
		Content:  resp.Message.Content,
		Thinking: resp.Message.Thinking,
		Model:    resp.Model,
		Usage:    resp.usage(),
	}
	for _, tc := range resp.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, tc.generic())
	}
	out.StopReason = resp.DoneReason
	if len(out.ToolCalls) > 0 {
		out.StopReason = llm.StopReasonToolCall
	}
	return out, nil
}

// Stream sends a request with stream enabled and reads NDJSON lines.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	body := p.buildRequest(req, true)
	p.logger.Debug().Str("provider", p.name).Str("model", body.Model).Bool("stream", true).Msg("chat request")

	cur, err := p.http.OpenNDJSON(ctx, "api/chat", nil, body)
	if err != nil {
		return nil, err
	}
	return transport.Pump(ctx, cur, handleLine, func(out *llm.Emitter) {
		out.Emit(llm.DoneChunk())
	}), nil
}

// handleLine maps one NDJSON line. Tool calls arrive whole and without ids,
// so each gets a synthesized id and is emitted as a complete fragment.
func handleLine(ev wire.Event, out *llm.Emitter) bool {
	var resp chatResponse
	if err := ev.Decode(&resp); err != nil {
		return true
	}
	if resp.Error != "" {
		out.Emit(llm.ErrorChunk(resp.Error))
		return false
	}

	if resp.Message.Thinking != "" && !out.Emit(llm.ThinkingChunk(resp.Message.Thinking)) {
		return false
	}
	if resp.Message.Content != "" && !out.Emit(llm.TextChunk(resp.Message.Content)) {
		return false
	}
	for _, tc := range resp.Message.ToolCalls {
		if !out.Emit(llm.ToolCallChunk(tc.generic())) {
			return false
		}
	}
	if resp.Done {
		if !out.Emit(llm.UsageChunk(resp.usage())) {
			return false
		}
		out.Emit(llm.DoneChunk())
		return false
	}
	return true
}

func (p *Provider) buildRequest(req *llm.ChatRequest, stream bool) chatRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	out := chatRequest{
		Model:    model,
		Messages: convertMessages(req.Messages, req.SystemPrompt),
		Stream:   stream,
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, tool{
			Type:     "function",
			Function: toolFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	if req.MaxTokens > 0 || req.Temperature != nil || req.TopP != nil || len(req.Stop) > 0 {
		out.Options = &options{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
			TopP:        req.TopP,
			Stop:        req.Stop,
		}
	}
	return out
}

func convertMessages(msgs []llm.Message, systemPrompt string) []message {
	out := make([]message, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, message{Role: string(llm.RoleSystem), Content: systemPrompt})
	}
	for _, m := range msgs {
		msg := message{Role: string(m.Role), Content: m.Content}
		if m.Role == llm.RoleTool {
			msg.ToolName = m.Name
		}
		for _, tc := range m.ToolCalls {
			args := map[string]any(tc.Arguments)
			if args == nil {
				args = map[string]any{}
			}
			msg.ToolCalls = append(msg.ToolCalls, toolCall{Function: functionCall{Name: tc.Name, Arguments: args}})
		}
		out = append(out, msg)
	}
	return out
}

func (tc toolCall) generic() llm.ToolCall {
	args := llm.Arguments(tc.Function.Arguments)
	if args == nil {
		args = llm.Arguments{}
	}
	id := tc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	return llm.ToolCall{ID: id, Name: tc.Function.Name, Arguments: args}
}

func (r chatResponse) usage() llm.Usage {
	return llm.Usage{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalTokens:      r.PromptEvalCount + r.EvalCount,
	}
}
