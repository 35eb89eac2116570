package anthropic

import (
	"encoding/json"

	"github.com/liteclaw/unillm/pkg/llm"
)

type messagesRequest struct {
	Model         string     `json:"model"`
	MaxTokens     int        `json:"max_tokens"`
	System        string     `json:"system,omitempty"`
	Messages      []message  `json:"messages"`
	Tools         []toolSpec `json:"tools,omitempty"`
	Stream        bool       `json:"stream,omitempty"`
	Temperature   *float64   `json:"temperature,omitempty"`
	TopP          *float64   `json:"top_p,omitempty"`
	StopSequences []string   `json:"stop_sequences,omitempty"`
}

type message struct {
	Role    string  `json:"role"`
	Content []block `json:"content"`
}

// block is any content block; Type selects which fields are meaningful.
type block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type toolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type messagesResponse struct {
	ID         string  `json:"id"`
	Model      string  `json:"model"`
	Content    []block `json:"content"`
	StopReason string  `json:"stop_reason"`
	Usage      usage   `json:"usage"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// streamEvent covers every event type of the messages stream.
type streamEvent struct {
	Type         string            `json:"type"`
	Index        int               `json:"index"`
	Message      *messagesResponse `json:"message"`
	ContentBlock *block            `json:"content_block"`
	Delta        *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage *usage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// buildMessages converts the generic history into alternating user and
// assistant turns. Tool results travel as tool_result blocks of a user turn
// and consecutive messages of the same role are merged.
func buildMessages(msgs []llm.Message, systemPrompt string) (string, []message) {
	system := systemPrompt
	var out []message

	appendBlocks := func(role string, blocks ...block) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, message{Role: role, Content: blocks})
	}

	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case llm.RoleAssistant:
			var blocks []block
			if m.Content != "" {
				blocks = append(blocks, block{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments.JSON())
				blocks = append(blocks, block{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			appendBlocks("assistant", blocks...)
		case llm.RoleTool:
			appendBlocks("user", block{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content})
		default:
			appendBlocks("user", block{Type: "text", Text: m.Content})
		}
	}
	return system, out
}

func buildTools(tools []llm.ToolDefinition) []toolSpec {
	var out []toolSpec
	for _, t := range tools {
		schema := t.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		out = append(out, toolSpec{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return out
}
