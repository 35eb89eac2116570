package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteclaw/unillm/pkg/llm"
)

func events(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(l), &head)
		b.WriteString("event: " + head.Type + "\n")
		b.WriteString("data: " + l + "\n\n")
	}
	return b.String()
}

func TestProvider_Chat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"id":"msg_1","model":"claude-sonnet-4-20250514","stop_reason":"tool_use",
			"content":[
				{"type":"thinking","thinking":"need weather"},
				{"type":"text","text":"Checking."},
				{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{"location":"NYC"}}],
			"usage":{"input_tokens":12,"output_tokens":8}}`))
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL, APIKey: "sk-ant"})
	resp, err := p.Chat(context.Background(), &llm.ChatRequest{
		SystemPrompt: "be brief",
		Messages:     []llm.Message{llm.UserMessage("weather?")},
		Tools:        []llm.ToolDefinition{{Name: "get_weather"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "be brief", got["system"])
	assert.Equal(t, float64(DefaultMaxTokens), got["max_tokens"])
	tools := got["tools"].([]any)
	assert.Equal(t, map[string]any{"type": "object"}, tools[0].(map[string]any)["input_schema"])

	assert.Equal(t, "Checking.", resp.Content)
	assert.Equal(t, "need weather", resp.Thinking)
	assert.Equal(t, llm.StopReasonToolCall, resp.StopReason)
	assert.Equal(t, llm.Usage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20}, resp.Usage)
	assert.Equal(t, []llm.ToolCall{{ID: "toolu_1", Name: "get_weather", Arguments: llm.Arguments{"location": "NYC"}}}, resp.ToolCalls)
}

func TestProvider_ChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: must be positive"}}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Chat(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	pe, ok := llm.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Equal(t, "max_tokens: must be positive", pe.Message)
}

func TestProvider_Stream(t *testing.T) {
	body := ": ping\n\n" + events(
		`{"type":"message_start","message":{"id":"msg_1","model":"claude","content":[],"usage":{"input_tokens":25,"output_tokens":1}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"user wants weather"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Let me "}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"check."}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"ping"}`,
		`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{}}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":""}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"location\": \"N"}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"YC\"}"}}`,
		`{"type":"content_block_stop","index":2}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":40}}`,
		`{"type":"message_stop"}`,
	)
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	chunks, err := New(Config{BaseURL: srv.URL}).Stream(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("weather?")},
	})
	require.NoError(t, err)

	proc := llm.NewStreamProcessor(llm.Callbacks{})
	assert.True(t, proc.Drain(chunks))
	assert.Equal(t, true, got["stream"])
	assert.Equal(t, "Let me check.", proc.Text())
	assert.Equal(t, "user wants weather", proc.Thinking())
	assert.Equal(t, []llm.ToolCall{{ID: "toolu_1", Name: "get_weather", Arguments: llm.Arguments{"location": "NYC"}}}, proc.ToolCalls())
	u, ok := proc.Usage()
	require.True(t, ok)
	assert.Equal(t, llm.Usage{PromptTokens: 25, CompletionTokens: 40, TotalTokens: 65}, u)
}

func TestProvider_StreamErrorEvent(t *testing.T) {
	body := events(
		`{"type":"message_start","message":{"id":"msg_1","content":[],"usage":{"input_tokens":1}}}`,
		`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	chunks, err := New(Config{BaseURL: srv.URL}).Stream(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	require.NoError(t, err)

	proc := llm.NewStreamProcessor(llm.Callbacks{})
	assert.False(t, proc.Drain(chunks))
	assert.Equal(t, []string{"Overloaded"}, proc.Errors())
}

func TestProvider_StreamTruncatedStillFinishes(t *testing.T) {
	body := events(
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_9","name":"current_time","input":{}}}`,
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	chunks, err := New(Config{BaseURL: srv.URL}).Stream(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{llm.UserMessage("time?")},
	})
	require.NoError(t, err)

	proc := llm.NewStreamProcessor(llm.Callbacks{})
	assert.True(t, proc.Drain(chunks))
	assert.Equal(t, []llm.ToolCall{{ID: "toolu_9", Name: "current_time", Arguments: llm.Arguments{}}}, proc.ToolCalls())
}

func TestBuildMessages(t *testing.T) {
	system, msgs := buildMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "extra"},
		llm.UserMessage("weather and time?"),
		llm.AssistantMessage("Checking.",
			llm.ToolCall{ID: "a", Name: "get_weather", Arguments: llm.Arguments{"location": "NYC"}},
			llm.ToolCall{ID: "b", Name: "current_time"},
		),
		llm.ToolResultMessage("a", "get_weather", "sunny"),
		llm.ToolResultMessage("b", "current_time", "noon"),
		llm.UserMessage("thanks"),
	}, "base")

	assert.Equal(t, "base\n\nextra", system)
	require.Len(t, msgs, 3)
	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].Content, 3)
	assert.JSONEq(t, `{"location":"NYC"}`, string(msgs[1].Content[1].Input))
	assert.JSONEq(t, `{}`, string(msgs[1].Content[2].Input))

	assert.Equal(t, "user", msgs[2].Role)
	require.Len(t, msgs[2].Content, 3)
	assert.Equal(t, "tool_result", msgs[2].Content[0].Type)
	assert.Equal(t, "a", msgs[2].Content[0].ToolUseID)
	assert.Equal(t, "text", msgs[2].Content[2].Type)
}
