// Package gemini adapts the Gemini generateContent API, whose responses
// carry "candidates" with typed parts, to the generic llm model.
package gemini

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/liteclaw/unillm/pkg/llm"
	"github.com/liteclaw/unillm/pkg/llm/transport"
	"github.com/liteclaw/unillm/pkg/llm/wire"
)

// DefaultBaseURL is the public Generative Language endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultModels is the catalogue used when Config.Models is empty.
var DefaultModels = []llm.ModelInfo{
	{ID: "gemini-2.0-flash", SupportsStreaming: true, SupportsTools: true},
	{ID: "gemini-2.5-flash", SupportsStreaming: true, SupportsTools: true},
	{ID: "gemini-2.5-pro", SupportsStreaming: true, SupportsTools: true},
	{ID: "gemini-1.5-flash", SupportsStreaming: true, SupportsTools: true},
}

// Config configures a Provider.
type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	Models  []llm.ModelInfo
}

// Provider implements llm.Provider for Gemini.
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
		cfg.Name = "gemini"
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
	if cfg.APIKey != "" {
		opts = append([]transport.Option{transport.WithHeader("x-goog-api-key", cfg.APIKey)}, opts...)
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

// Chat calls generateContent.
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := p.resolveModel(req)
	p.logger.Debug().Str("provider", p.name).Str("model", model).Bool("stream", false).Msg("chat request")

	var resp generateResponse
	if err := p.http.PostJSON(ctx, "models/"+model+":generateContent", nil, buildRequest(req), &resp); err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, &llm.ProviderError{Provider: p.name, Message: llm.ErrNoChoices.Error(), Err: llm.ErrNoChoices}
	}

	cand := resp.Candidates[0]
	out := &llm.ChatResponse{Model: resp.ModelVersion}
	if out.Model == "" {
		out.Model = model
	}
	var text, thinking strings.Builder
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			out.ToolCalls = append(out.ToolCalls, part.FunctionCall.toolCall())
		case part.Thought:
			thinking.WriteString(part.Text)
		default:
			text.WriteString(part.Text)
		}
	}
	out.Content = text.String()
	out.Thinking = thinking.String()
	out.StopReason = stopReason(cand.FinishReason, len(out.ToolCalls) > 0)
	if resp.UsageMetadata != nil {
		out.Usage = resp.UsageMetadata.usage()
	}
	return out, nil
}

// Stream calls streamGenerateContent with alt=sse.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	model := p.resolveModel(req)
	p.logger.Debug().Str("provider", p.name).Str("model", model).Bool("stream", true).Msg("chat request")

	cur, err := p.http.OpenSSE(ctx, "models/"+model+":streamGenerateContent", map[string]string{"alt": "sse"}, buildRequest(req))
	if err != nil {
		return nil, err
	}
	return transport.Pump(ctx, cur, handleEvent, func(out *llm.Emitter) {
		out.Emit(llm.DoneChunk())
	}), nil
}

func (p *Provider) resolveModel(req *llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

// handleEvent maps one streamed candidate. Gemini delivers each function
// call whole, so every call becomes a single complete fragment.
func handleEvent(ev wire.Event, out *llm.Emitter) bool {
	if _, ok := ev.Map()["error"]; ok {
		msg, _ := transport.EventMessage(ev.Raw())
		out.Emit(llm.ErrorChunk(msg))
		return false
	}

	var resp generateResponse
	if err := ev.Decode(&resp); err != nil {
		return true
	}
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			var c llm.StreamChunk
			switch {
			case part.FunctionCall != nil:
				c = llm.ToolCallChunk(part.FunctionCall.toolCall())
			case part.Text == "":
				continue
			case part.Thought:
				c = llm.ThinkingChunk(part.Text)
			default:
				c = llm.TextChunk(part.Text)
			}
			if !out.Emit(c) {
				return false
			}
		}
	}
	if resp.UsageMetadata != nil {
		return out.Emit(llm.UsageChunk(resp.UsageMetadata.usage()))
	}
	return true
}

func stopReason(finish string, hasCalls bool) string {
	switch {
	case hasCalls:
		return llm.StopReasonToolCall
	case finish == "STOP":
		return llm.StopReasonEnd
	case finish == "MAX_TOKENS":
		return llm.StopReasonLength
	default:
		return finish
	}
}

func (fc *functionCall) toolCall() llm.ToolCall {
	args := llm.Arguments(fc.Args)
	if args == nil {
		args = llm.Arguments{}
	}
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	return llm.ToolCall{ID: id, Name: fc.Name, Arguments: args}
}

func (u *usageMetadata) usage() llm.Usage {
	return llm.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount + u.ThoughtsTokenCount,
		TotalTokens:      u.TotalTokenCount,
	}
}
