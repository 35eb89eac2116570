// Package openai adapts chat-completions style APIs (OpenAI, DeepSeek,
// OpenRouter and other compatible endpoints) to the generic llm model.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	"github.com/liteclaw/unillm/pkg/llm"
	"github.com/liteclaw/unillm/pkg/llm/transport"
	"github.com/liteclaw/unillm/pkg/llm/wire"
)

// DefaultBaseURL is the public OpenAI endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultModels is the catalogue used when Config.Models is empty.
var DefaultModels = []llm.ModelInfo{
	{ID: goopenai.GPT4o, SupportsStreaming: true, SupportsTools: true},
	{ID: goopenai.GPT4oMini, SupportsStreaming: true, SupportsTools: true},
	{ID: goopenai.GPT4Turbo, SupportsStreaming: true, SupportsTools: true},
	{ID: goopenai.O1Mini, SupportsStreaming: true, SupportsTools: false},
	{ID: goopenai.GPT3Dot5Turbo, SupportsStreaming: true, SupportsTools: true},
}

// Config configures a Provider.
type Config struct {
	// Name defaults to "openai"; compatible vendors set their own.
	Name    string
	BaseURL string
	APIKey  string
	// Model is used when a request leaves Model empty.
	Model  string
	Models []llm.ModelInfo
}

// Provider implements llm.Provider for chat-completions endpoints.
type Provider struct {
	name   string
	model  string
	models []llm.ModelInfo
	http   *transport.Client
	logger zerolog.Logger
}

// New creates a provider. Transport options may set the HTTP client or logger.
func New(cfg Config, opts ...transport.Option) *Provider {
	if cfg.Name == "" {
		cfg.Name = "openai"
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
		opts = append([]transport.Option{transport.WithHeader("Authorization", "Bearer "+cfg.APIKey)}, opts...)
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

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// Models returns the static model catalogue.
func (p *Provider) Models() []llm.ModelInfo {
	return append([]llm.ModelInfo(nil), p.models...)
}

// Chat sends a non-streaming chat completion request.
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := p.buildRequest(req, false)
	p.logger.Debug().Str("provider", p.name).Str("model", body.Model).Bool("stream", false).Msg("chat request")

	var raw json.RawMessage
	if err := p.http.PostJSON(ctx, "chat/completions", nil, body, &raw); err != nil {
		return nil, err
	}
	var resp goopenai.ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &llm.ProviderError{Provider: p.name, Message: "unparseable response body", Body: raw, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.ProviderError{Provider: p.name, Message: llm.ErrNoChoices.Error(), Body: raw, Err: llm.ErrNoChoices}
	}

	choice := resp.Choices[0]
	out := &llm.ChatResponse{
		Content:    choice.Message.Content,
		Thinking:   gjson.GetBytes(raw, "choices.0.message.reasoning_content").String(),
		Model:      resp.Model,
		StopReason: string(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		args, err := llm.ParseArguments(tc.Function.Arguments)
		if err != nil {
			return nil, &llm.ProviderError{Provider: p.name, Message: "malformed tool call arguments", Body: raw, Err: err}
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	// Legacy function_call responses carry no id.
	if len(out.ToolCalls) == 0 && choice.Message.FunctionCall != nil {
		fc := choice.Message.FunctionCall
		args, err := llm.ParseArguments(fc.Arguments)
		if err != nil {
			return nil, &llm.ProviderError{Provider: p.name, Message: "malformed tool call arguments", Body: raw, Err: err}
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: "call_" + fc.Name, Name: fc.Name, Arguments: args})
	}
	return out, nil
}

// Stream sends a streaming chat completion request.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	body := p.buildRequest(req, true)
	p.logger.Debug().Str("provider", p.name).Str("model", body.Model).Bool("stream", true).Msg("chat request")

	cur, err := p.http.OpenSSE(ctx, "chat/completions", nil, body)
	if err != nil {
		return nil, err
	}
	st := newStreamState()
	return transport.Pump(ctx, cur, st.handle, st.finish), nil
}

func (p *Provider) buildRequest(req *llm.ChatRequest, stream bool) goopenai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	out := goopenai.ChatCompletionRequest{
		Model:     model,
		Messages:  convertMessages(req.Messages, req.SystemPrompt),
		MaxTokens: req.MaxTokens,
		Stop:      req.Stop,
		Stream:    stream,
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		out.TopP = float32(*req.TopP)
	}
	if tools := convertTools(req.Tools); len(tools) > 0 {
		out.Tools = tools
		out.ToolChoice = "auto"
	}
	if stream {
		out.StreamOptions = &goopenai.StreamOptions{IncludeUsage: true}
	}
	return out
}

func convertMessages(msgs []llm.Message, systemPrompt string) []goopenai.ChatCompletionMessage {
	result := make([]goopenai.ChatCompletionMessage, 0, len(msgs)+1)
	if systemPrompt != "" {
		result = append(result, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, m := range msgs {
		msg := goopenai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == llm.RoleTool {
			msg.Name = m.Name
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments.JSON(),
				},
			})
		}
		result = append(result, msg)
	}
	return result
}

func convertTools(tools []llm.ToolDefinition) []goopenai.Tool {
	var result []goopenai.Tool
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

// pendingCall accumulates one streamed tool call. Vendors key deltas by
// index and send the id and name once, followed by argument text.
type pendingCall struct {
	id        string
	name      string
	args      strings.Builder
	announced bool
}

// streamState reassembles tool-call deltas. Deltas are keyed by index; for
// endpoints that omit it, by call id, with id-less deltas continuing the
// most recent call.
type streamState struct {
	calls   map[int]*pendingCall
	byID    map[string]int
	order   []int
	last    int
	next    int
	flushed bool
}

func newStreamState() *streamState {
	return &streamState{calls: make(map[int]*pendingCall), byID: make(map[string]int)}
}

func (s *streamState) slot(tc goopenai.ToolCall) int {
	switch {
	case tc.Index != nil:
		return *tc.Index
	case tc.ID != "":
		if idx, ok := s.byID[tc.ID]; ok {
			return idx
		}
		return s.next
	case len(s.order) > 0:
		return s.last
	default:
		return s.next
	}
}

func (s *streamState) handle(ev wire.Event, out *llm.Emitter) bool {
	if msg, ok := streamError(ev); ok {
		out.Emit(llm.ErrorChunk(msg))
		return false
	}

	var resp goopenai.ChatCompletionStreamResponse
	if err := ev.Decode(&resp); err != nil {
		return true
	}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if r := gjson.GetBytes(ev.Raw(), "choices.0.delta.reasoning_content"); r.String() != "" {
			if !out.Emit(llm.ThinkingChunk(r.String())) {
				return false
			}
		}
		if choice.Delta.Content != "" {
			if !out.Emit(llm.TextChunk(choice.Delta.Content)) {
				return false
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			if !s.addDelta(tc, out) {
				return false
			}
		}
		if choice.FinishReason != "" && !s.flush(out) {
			return false
		}
	}

	if resp.Usage != nil {
		return out.Emit(llm.UsageChunk(llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}))
	}
	return true
}

func (s *streamState) addDelta(tc goopenai.ToolCall, out *llm.Emitter) bool {
	idx := s.slot(tc)
	pc, ok := s.calls[idx]
	if !ok {
		pc = &pendingCall{}
		s.calls[idx] = pc
		s.order = append(s.order, idx)
	}
	s.last = idx
	if idx >= s.next {
		s.next = idx + 1
	}
	if tc.ID != "" {
		if _, seen := s.byID[tc.ID]; !seen {
			s.byID[tc.ID] = idx
		}
	}
	if tc.ID != "" && pc.id == "" {
		pc.id = tc.ID
	}
	if tc.Function.Name != "" {
		pc.name = tc.Function.Name
	}
	pc.args.WriteString(tc.Function.Arguments)

	if pc.id != "" && pc.name != "" && !pc.announced {
		pc.announced = true
		return out.Emit(llm.ToolCallChunk(llm.ToolCall{ID: pc.id, Name: pc.name}))
	}
	return true
}

// flush emits the arguments of every pending call once the text is complete.
// Calls whose arguments never form a JSON object are left incomplete.
func (s *streamState) flush(out *llm.Emitter) bool {
	if s.flushed {
		return true
	}
	s.flushed = true
	for _, idx := range s.order {
		pc := s.calls[idx]
		args, err := llm.ParseArguments(pc.args.String())
		if err != nil {
			args = nil
		}
		frag := llm.ToolCall{ID: pc.id, Arguments: args}
		if frag.ID == "" {
			frag.ID = "call_" + uuid.NewString()
		}
		if !pc.announced {
			frag.Name = pc.name
		}
		if !out.Emit(llm.ToolCallChunk(frag)) {
			return false
		}
	}
	return true
}

func (s *streamState) finish(out *llm.Emitter) {
	if s.flush(out) {
		out.Emit(llm.DoneChunk())
	}
}

func streamError(ev wire.Event) (string, bool) {
	if _, ok := ev.Map()["error"]; !ok {
		return "", false
	}
	if msg, ok := transport.EventMessage(ev.Raw()); ok {
		return msg, true
	}
	return fmt.Sprintf("%v", ev.Map()["error"]), true
}
