// Package llm provides the provider-neutral chat model shared by every adapter.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Provider is the interface for LLM provider adapters.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Models returns the static list of models this adapter knows about.
	Models() []ModelInfo

	// Chat sends a non-streaming chat request and returns the full response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream sends a streaming chat request. The channel is closed after a
	// ChunkDone or ChunkError chunk, or when ctx is cancelled. Consumers that
	// stop reading early must cancel ctx.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
}

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ModelInfo describes one model an adapter supports.
type ModelInfo struct {
	ID                string `json:"id"`
	SupportsStreaming bool   `json:"supportsStreaming"`
	SupportsTools     bool   `json:"supportsTools"`
}

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	Model        string           `json:"model,omitempty"`
	Messages     []Message        `json:"messages" validate:"required,min=1,dive"`
	Tools        []ToolDefinition `json:"tools,omitempty" validate:"dive"`
	SystemPrompt string           `json:"systemPrompt,omitempty"`
	MaxTokens    int              `json:"maxTokens,omitempty" validate:"gte=0"`
	Temperature  *float64         `json:"temperature,omitempty"`
	TopP         *float64         `json:"topP,omitempty"`
	Stop         []string         `json:"stop,omitempty"`
}

// Clone returns a copy whose slices can be appended to without touching r.
func (r *ChatRequest) Clone() *ChatRequest {
	out := *r
	out.Messages = append([]Message(nil), r.Messages...)
	out.Tools = append([]ToolDefinition(nil), r.Tools...)
	out.Stop = append([]string(nil), r.Stop...)
	return &out
}

// ChatResponse represents a non-streaming chat completion response.
type ChatResponse struct {
	Content    string     `json:"content"`
	Thinking   string     `json:"thinking,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	Usage      Usage      `json:"usage"`
	Model      string     `json:"model,omitempty"`
	StopReason string     `json:"stopReason,omitempty"`
}

// Common stop reasons. Adapters pass vendor values through unchanged when
// they do not map onto one of these.
const (
	StopReasonEnd      = "stop"
	StopReasonLength   = "length"
	StopReasonToolCall = "tool_calls"
)

// Message represents a chat message.
type Message struct {
	Role       Role       `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty" validate:"required_if=Role tool"`
	Name       string     `json:"name,omitempty"`
}

// UserMessage builds a user message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// AssistantMessage builds an assistant message, optionally carrying tool calls.
func AssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolResultMessage builds the tool-role reply to the call identified by id.
func ToolResultMessage(id, name, text string) Message {
	return Message{Role: RoleTool, Content: text, ToolCallID: id, Name: name}
}

// ToolExecutor runs one tool call. It may fail.
type ToolExecutor func(ctx context.Context, args Arguments) (string, error)

// ToolDefinition declares a tool to the model.
type ToolDefinition struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	// Parameters is a JSON Schema object forwarded verbatim to the vendor.
	Parameters map[string]any `json:"parameters,omitempty"`
	// Execute is optional; the agent loop prefers it over registry lookups.
	Execute ToolExecutor `json:"-"`
}

// ToolCall represents a model's request to call a tool.
type ToolCall struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Arguments Arguments `json:"arguments"`
}

// Complete reports whether both name and arguments are known.
func (tc ToolCall) Complete() bool {
	return tc.Name != "" && tc.Arguments != nil
}

// Usage represents token usage for one turn.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// Arguments holds decoded tool-call arguments.
type Arguments map[string]any

// ParseArguments decodes a JSON object. Empty input yields an empty map.
func ParseArguments(raw string) (Arguments, error) {
	if raw == "" {
		return Arguments{}, nil
	}
	var args Arguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode tool arguments: %w", err)
	}
	if args == nil {
		args = Arguments{}
	}
	return args, nil
}

// String returns the string value stored under key.
func (a Arguments) String(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

// Float returns the numeric value stored under key.
func (a Arguments) Float(key string) (float64, bool) {
	f, ok := a[key].(float64)
	return f, ok
}

// Bool returns the boolean value stored under key.
func (a Arguments) Bool(key string) (bool, bool) {
	b, ok := a[key].(bool)
	return b, ok
}

// Decode copies the arguments into the struct pointed to by v.
func (a Arguments) Decode(v any) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// JSON returns the compact JSON encoding, "{}" for nil.
func (a Arguments) JSON() string {
	if a == nil {
		return "{}"
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// merge shallow-merges src into a copy of a; src wins on conflicting keys.
func (a Arguments) merge(src Arguments) Arguments {
	out := make(Arguments, len(a)+len(src))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
