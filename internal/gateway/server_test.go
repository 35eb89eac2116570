package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteclaw/unillm/internal/config"
	"github.com/liteclaw/unillm/pkg/agent"
	"github.com/liteclaw/unillm/pkg/llm"
	"github.com/liteclaw/unillm/pkg/tools"
)

// fakeProvider replays scripted turns. Each Stream or Chat call consumes
// the next turn; the last turn repeats.
type fakeProvider struct {
	name  string
	turns [][]llm.StreamChunk
	calls int
	err   error
	seen  []*llm.ChatRequest
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Models() []llm.ModelInfo {
	return []llm.ModelInfo{{ID: "fake-1", SupportsStreaming: true, SupportsTools: true}}
}

func (f *fakeProvider) next(req *llm.ChatRequest) []llm.StreamChunk {
	f.seen = append(f.seen, req)
	i := f.calls
	if i >= len(f.turns) {
		i = len(f.turns) - 1
	}
	f.calls++
	return f.turns[i]
}

func (f *fakeProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	proc := llm.NewStreamProcessor(llm.Callbacks{})
	for _, c := range f.next(req) {
		proc.Process(c)
	}
	return &llm.ChatResponse{Content: proc.Text(), ToolCalls: proc.ToolCalls()}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	turn := f.next(req)
	ch := make(chan llm.StreamChunk, len(turn))
	for _, c := range turn {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T, p llm.Provider, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	reg := tools.NewRegistry(tools.NewFunc("echo", "Echo text", nil, func(_ context.Context, args llm.Arguments) (string, error) {
		s, _ := args.String("text")
		return s, nil
	}))
	client := agent.New(agent.WithProvider(p), agent.WithTools(reg), agent.WithMaxIterations(cfg.Agent.MaxIterations))
	s := New(cfg, client, zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func post(t *testing.T, url, body string, headers ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const hello = `{"messages":[{"role":"user","content":"hello"}]}`

func TestHandleHealth(t *testing.T) {
	_, ts := newTestServer(t, &fakeProvider{name: "fake"}, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleModels(t *testing.T) {
	_, ts := newTestServer(t, &fakeProvider{name: "fake"}, nil)

	resp, err := http.Get(ts.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Models []ModelEntry `json:"models"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Models, 1)
	assert.Equal(t, "fake/fake-1", body.Models[0].Key)
}

func TestHandleChat_RunsTools(t *testing.T) {
	p := &fakeProvider{name: "fake", turns: [][]llm.StreamChunk{
		{llm.ToolCallChunk(llm.ToolCall{ID: "c1", Name: "echo", Arguments: llm.Arguments{"text": "pong"}}), llm.DoneChunk()},
		{llm.TextChunk("got pong"), llm.DoneChunk()},
	}}
	_, ts := newTestServer(t, p, func(c *config.Config) { c.Agent.SystemPrompt = "be terse" })

	resp := post(t, ts.URL+"/v1/chat", hello)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body agent.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "got pong", body.Text)
	assert.Equal(t, 2, body.Iterations)
	require.Len(t, body.ToolResults, 1)
	assert.Equal(t, "pong", body.ToolResults[0].Content)
	assert.Equal(t, "be terse", p.seen[0].SystemPrompt)
}

func TestHandleChat_Errors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		_, ts := newTestServer(t, &fakeProvider{name: "fake"}, nil)
		resp := post(t, ts.URL+"/v1/chat", `{"messages":[]}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, ts := newTestServer(t, &fakeProvider{name: "fake"}, nil)
		resp := post(t, ts.URL+"/v1/chat", `{"provider":"nope","messages":[{"role":"user","content":"hi"}]}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("provider failure", func(t *testing.T) {
		p := &fakeProvider{name: "fake", err: &llm.ProviderError{Provider: "fake", StatusCode: 429, Message: "slow down"}}
		_, ts := newTestServer(t, p, nil)
		resp := post(t, ts.URL+"/v1/chat", hello)
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 429, body.StatusCode)
		assert.Contains(t, body.Error, "slow down")
	})

	t.Run("iteration limit", func(t *testing.T) {
		p := &fakeProvider{name: "fake", turns: [][]llm.StreamChunk{
			{llm.ToolCallChunk(llm.ToolCall{ID: "c", Name: "echo", Arguments: llm.Arguments{}}), llm.DoneChunk()},
		}}
		_, ts := newTestServer(t, p, func(c *config.Config) { c.Agent.MaxIterations = 2 })
		resp := post(t, ts.URL+"/v1/chat", hello)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		var body ChatResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Contains(t, body.Error, "iteration limit")
		assert.Equal(t, 2, body.Iterations)
	})
}

func TestHandleChatStream(t *testing.T) {
	p := &fakeProvider{name: "fake", turns: [][]llm.StreamChunk{
		{llm.TextChunk("Hel"), llm.TextChunk("lo"), llm.UsageChunk(llm.Usage{TotalTokens: 5}), llm.DoneChunk()},
	}}
	_, ts := newTestServer(t, p, nil)

	resp := post(t, ts.URL+"/v1/chat/stream", `{"provider":"fake","model":"fake-1","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			events = append(events, data)
		}
	}
	require.Len(t, events, 5)
	assert.Equal(t, "[DONE]", events[4])

	var first llm.StreamChunk
	require.NoError(t, json.Unmarshal([]byte(events[0]), &first))
	assert.Equal(t, llm.TextChunk("Hel"), first)
	assert.Equal(t, "fake-1", p.seen[0].Model)
}

func TestHandleChatStream_ProviderAndPrefixedModel(t *testing.T) {
	p := &fakeProvider{name: "fake", turns: [][]llm.StreamChunk{{llm.TextChunk("ok"), llm.DoneChunk()}}}
	_, ts := newTestServer(t, p, nil)

	resp := post(t, ts.URL+"/v1/chat/stream", `{"provider":"fake","model":"fake/fake-1","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Len(t, p.seen, 1)
	assert.Equal(t, "fake-1", p.seen[0].Model)

	resp = post(t, ts.URL+"/v1/chat", `{"provider":"fake","model":"fake/fake-1","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, p.seen, 2)
	assert.Equal(t, "fake-1", p.seen[1].Model)
}

func TestServerNew(t *testing.T) {
	s, _ := newTestServer(t, &fakeProvider{name: "fake"}, func(c *config.Config) {
		c.Gateway.Bind = "0.0.0.0"
		c.Gateway.Port = 8080
	})

	assert.Equal(t, "0.0.0.0:8080", s.Addr())
	assert.False(t, s.IsRunning())
	assert.Zero(t, s.Uptime())
}
