// Package anthropic adapts the Anthropic Messages API, which streams typed
// content blocks, to the generic llm model.
package anthropic

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/liteclaw/unillm/pkg/llm"
	"github.com/liteclaw/unillm/pkg/llm/transport"
	"github.com/liteclaw/unillm/pkg/llm/wire"
)

const (
	// DefaultBaseURL is the public Anthropic endpoint.
	DefaultBaseURL = "https://api.anthropic.com/v1"
	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"
	// DefaultMaxTokens is used when a request leaves MaxTokens unset; the
	// API rejects requests without it.
	DefaultMaxTokens = 4096
)

// DefaultModels is the catalogue used when Config.Models is empty.
var DefaultModels = []llm.ModelInfo{
	{ID: "claude-sonnet-4-20250514", SupportsStreaming: true, SupportsTools: true},
	{ID: "claude-opus-4-20250514", SupportsStreaming: true, SupportsTools: true},
	{ID: "claude-3-7-sonnet-latest", SupportsStreaming: true, SupportsTools: true},
	{ID: "claude-3-5-haiku-latest", SupportsStreaming: true, SupportsTools: true},
}

// Config configures a Provider.
type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	Models  []llm.ModelInfo
}

// Provider implements llm.Provider for Anthropic.
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
		cfg.Name = "anthropic"
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
	base := []transport.Option{transport.WithHeader("anthropic-version", APIVersion)}
	if cfg.APIKey != "" {
		base = append(base, transport.WithHeader("x-api-key", cfg.APIKey))
	}
	hc := transport.New(cfg.Name, cfg.BaseURL, append(base, opts...)...)
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

// Chat sends a non-streaming messages request.
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := p.buildRequest(req, false)
	p.logger.Debug().Str("provider", p.name).Str("model", body.Model).Bool("stream", false).Msg("chat request")

	var resp messagesResponse
	if err := p.http.PostJSON(ctx, "messages", nil, body, &resp); err != nil {
		return nil, err
	}

	out := &llm.ChatResponse{
		Model:      resp.Model,
		StopReason: stopReason(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	var text, thinking strings.Builder
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
		case "thinking":
			thinking.WriteString(b.Thinking)
		case "tool_use":
			args, err := llm.ParseArguments(string(b.Input))
			if err != nil {
				return nil, &llm.ProviderError{Provider: p.name, Message: "malformed tool_use input", Err: err}
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	out.Content = text.String()
	out.Thinking = thinking.String()
	return out, nil
}

// Stream sends a streaming messages request.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	body := p.buildRequest(req, true)
	p.logger.Debug().Str("provider", p.name).Str("model", body.Model).Bool("stream", true).Msg("chat request")

	cur, err := p.http.OpenSSE(ctx, "messages", nil, body)
	if err != nil {
		return nil, err
	}
	st := &streamState{blocks: make(map[int]*toolBlock)}
	return transport.Pump(ctx, cur, st.handle, st.finish), nil
}

func (p *Provider) buildRequest(req *llm.ChatRequest, stream bool) messagesRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	system, msgs := buildMessages(req.Messages, req.SystemPrompt)
	return messagesRequest{
		Model:         model,
		MaxTokens:     maxTokens,
		System:        system,
		Messages:      msgs,
		Tools:         buildTools(req.Tools),
		Stream:        stream,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
	}
}

type toolBlock struct {
	id   string
	json strings.Builder
}

type streamState struct {
	blocks      map[int]*toolBlock
	inputTokens int
	done        bool
}

func (s *streamState) handle(ev wire.Event, out *llm.Emitter) bool {
	var e streamEvent
	if err := ev.Decode(&e); err != nil {
		return true
	}

	switch e.Type {
	case "message_start":
		if e.Message != nil {
			s.inputTokens = e.Message.Usage.InputTokens
		}
	case "content_block_start":
		b := e.ContentBlock
		if b == nil {
			return true
		}
		switch b.Type {
		case "tool_use":
			s.blocks[e.Index] = &toolBlock{id: b.ID}
			return out.Emit(llm.ToolCallChunk(llm.ToolCall{ID: b.ID, Name: b.Name}))
		case "text":
			if b.Text != "" {
				return out.Emit(llm.TextChunk(b.Text))
			}
		case "thinking":
			if b.Thinking != "" {
				return out.Emit(llm.ThinkingChunk(b.Thinking))
			}
		}
	case "content_block_delta":
		d := e.Delta
		if d == nil {
			return true
		}
		switch d.Type {
		case "text_delta":
			return out.Emit(llm.TextChunk(d.Text))
		case "thinking_delta":
			return out.Emit(llm.ThinkingChunk(d.Thinking))
		case "input_json_delta":
			if tb, ok := s.blocks[e.Index]; ok {
				tb.json.WriteString(d.PartialJSON)
			}
		}
	case "content_block_stop":
		return s.closeBlock(e.Index, out)
	case "message_delta":
		if e.Usage != nil {
			return out.Emit(llm.UsageChunk(llm.Usage{
				PromptTokens:     s.inputTokens,
				CompletionTokens: e.Usage.OutputTokens,
				TotalTokens:      s.inputTokens + e.Usage.OutputTokens,
			}))
		}
	case "message_stop":
		s.finish(out)
		return false
	case "error":
		msg := "stream error"
		if e.Error != nil && e.Error.Message != "" {
			msg = e.Error.Message
		}
		out.Emit(llm.ErrorChunk(msg))
		return false
	}
	return true
}

// closeBlock emits the arguments of a finished tool_use block. Input that
// does not parse leaves the call incomplete.
func (s *streamState) closeBlock(index int, out *llm.Emitter) bool {
	tb, ok := s.blocks[index]
	if !ok {
		return true
	}
	delete(s.blocks, index)
	args, err := llm.ParseArguments(tb.json.String())
	if err != nil {
		return true
	}
	return out.Emit(llm.ToolCallChunk(llm.ToolCall{ID: tb.id, Arguments: args}))
}

// finish flushes blocks left open by a truncated stream and emits done.
func (s *streamState) finish(out *llm.Emitter) {
	if s.done {
		return
	}
	s.done = true
	for idx := range s.blocks {
		if !s.closeBlock(idx, out) {
			return
		}
	}
	out.Emit(llm.DoneChunk())
}

func stopReason(r string) string {
	switch r {
	case "end_turn", "stop_sequence":
		return llm.StopReasonEnd
	case "max_tokens":
		return llm.StopReasonLength
	case "tool_use":
		return llm.StopReasonToolCall
	default:
		return r
	}
}
