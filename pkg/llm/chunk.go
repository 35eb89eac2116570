package llm

import (
	"context"

	"github.com/liteclaw/unillm/pkg/stream"
)

// ChunkType tags the variant carried by a StreamChunk.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkThinking ChunkType = "thinking"
	ChunkToolCall ChunkType = "tool_call"
	ChunkUsage    ChunkType = "usage"
	ChunkError    ChunkType = "error"
	ChunkDone     ChunkType = "done"
)

// StreamChunk is one generic streaming event.
//
// Text is set for ChunkText and ChunkThinking, ToolCall for ChunkToolCall,
// Usage for ChunkUsage and Error for ChunkError. A tool-call chunk may carry
// only a fragment of the final call.
type StreamChunk struct {
	Type     ChunkType `json:"type"`
	Text     string    `json:"text,omitempty"`
	ToolCall *ToolCall `json:"toolCall,omitempty"`
	Usage    *Usage    `json:"usage,omitempty"`
	Error    string    `json:"error,omitempty"`
	// Provider is only set by fan-out helpers that merge several providers.
	Provider string `json:"provider,omitempty"`
}

func TextChunk(text string) StreamChunk     { return StreamChunk{Type: ChunkText, Text: text} }
func ThinkingChunk(text string) StreamChunk { return StreamChunk{Type: ChunkThinking, Text: text} }
func ToolCallChunk(tc ToolCall) StreamChunk { return StreamChunk{Type: ChunkToolCall, ToolCall: &tc} }
func UsageChunk(u Usage) StreamChunk        { return StreamChunk{Type: ChunkUsage, Usage: &u} }
func ErrorChunk(msg string) StreamChunk     { return StreamChunk{Type: ChunkError, Error: msg} }
func DoneChunk() StreamChunk                { return StreamChunk{Type: ChunkDone} }

// Terminal reports whether no chunk follows c on the same stream.
func (c StreamChunk) Terminal() bool {
	return c.Type == ChunkDone || c.Type == ChunkError
}

// TextOnly projects a chunk stream onto its text deltas.
func TextOnly(ctx context.Context, chunks <-chan StreamChunk) <-chan string {
	text := stream.Filter(ctx, chunks, func(c StreamChunk) bool { return c.Type == ChunkText })
	return stream.Map(ctx, text, func(c StreamChunk) string { return c.Text })
}

// Emitter sends chunks from an adapter goroutine, giving up once ctx ends.
type Emitter struct {
	ctx context.Context
	out chan<- StreamChunk
}

// NewEmitter wraps out for use by a producer goroutine.
func NewEmitter(ctx context.Context, out chan<- StreamChunk) *Emitter {
	return &Emitter{ctx: ctx, out: out}
}

// Emit sends c and reports whether the consumer is still listening.
func (e *Emitter) Emit(c StreamChunk) bool {
	select {
	case e.out <- c:
		return true
	case <-e.ctx.Done():
		return false
	}
}
