package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liteclaw/unillm/pkg/llm"
)

// RunOptions tune a single Run.
type RunOptions struct {
	// Provider overrides the provider resolved from the request.
	Provider string
	// Callbacks observe each turn as it is processed.
	Callbacks llm.Callbacks
	// OnToolResult is called once per finished tool call. Calls are
	// serialized but arrive in completion order.
	OnToolResult func(ToolResult)
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	CallID string `json:"callId"`
	Name   string `json:"name"`
	// Content is what the model sees, including "Error: ..." texts.
	Content  string        `json:"content"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of a Run.
type Result struct {
	Text     string `json:"text"`
	Thinking string `json:"thinking,omitempty"`
	// Messages is the full conversation, the caller's messages first.
	Messages    []llm.Message `json:"messages"`
	ToolResults []ToolResult  `json:"toolResults,omitempty"`
	Iterations  int           `json:"iterations"`
	// Usage is the last turn's snapshot; TotalUsage sums every turn.
	Usage      llm.Usage `json:"usage"`
	TotalUsage llm.Usage `json:"totalUsage"`
	Provider   string    `json:"provider"`
}

type turn struct {
	text     string
	thinking string
	calls    []llm.ToolCall
	usage    llm.Usage
}

// Run drives req to a final answer, executing every tool call the model
// requests and feeding the results back. Tool failures become "Error: ..."
// tool messages; provider failures are returned. When the cap is reached the
// partial Result is returned together with an *IterationLimitError.
func (c *Client) Run(ctx context.Context, req *llm.ChatRequest, opts RunOptions) (*Result, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	p, base, err := c.resolve(req, opts.Provider)
	if err != nil {
		return nil, err
	}

	decls, execs := c.toolset(req.Tools)
	base.Tools = decls
	res := &Result{Provider: p.Name(), Messages: append([]llm.Message(nil), req.Messages...)}
	logger := c.logger.With().Str("provider", p.Name()).Logger()

	for iter := 1; iter <= c.maxIterations; iter++ {
		res.Iterations = iter
		turnReq := base.Clone()
		turnReq.Messages = res.Messages

		logger.Debug().Int("iteration", iter).Int("messages", len(turnReq.Messages)).Bool("stream", c.stream).Msg("requesting")
		t, err := c.request(ctx, p, turnReq, opts.Callbacks)
		if err != nil {
			return nil, err
		}
		res.Usage = t.usage
		res.TotalUsage = res.TotalUsage.Add(t.usage)
		res.Text = t.text
		res.Thinking = t.thinking
		res.Messages = append(res.Messages, llm.AssistantMessage(t.text, t.calls...))

		if len(t.calls) == 0 {
			return res, nil
		}

		results := c.dispatch(ctx, t.calls, execs, opts.OnToolResult)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, r := range results {
			res.ToolResults = append(res.ToolResults, r)
			res.Messages = append(res.Messages, llm.ToolResultMessage(r.CallID, r.Name, r.Content))
		}
	}

	logger.Warn().Int("limit", c.maxIterations).Msg("iteration cap reached")
	return res, &IterationLimitError{Limit: c.maxIterations}
}

// toolset merges request-bound tools with the registry. Request tools win on
// name clashes; every tool is declared to the model whether or not it has
// an executor.
func (c *Client) toolset(reqTools []llm.ToolDefinition) ([]llm.ToolDefinition, map[string]llm.ToolExecutor) {
	decls := make([]llm.ToolDefinition, 0, len(reqTools)+c.tools.Len())
	execs := make(map[string]llm.ToolExecutor)
	seen := make(map[string]bool)

	for _, t := range reqTools {
		seen[t.Name] = true
		decls = append(decls, t)
		if t.Execute != nil {
			execs[t.Name] = t.Execute
		} else if rt, ok := c.tools.Get(t.Name); ok {
			execs[t.Name] = rt.Execute
		}
	}
	for _, def := range c.tools.Definitions() {
		if seen[def.Name] {
			continue
		}
		decls = append(decls, def)
		execs[def.Name] = def.Execute
	}
	return decls, execs
}

// request performs one model call. Streaming turns use a fresh processor;
// chat turns report through the same callbacks so observers see one shape.
func (c *Client) request(ctx context.Context, p llm.Provider, req *llm.ChatRequest, cb llm.Callbacks) (turn, error) {
	if !c.stream {
		resp, err := p.Chat(ctx, req)
		if err != nil {
			return turn{}, err
		}
		notify(cb, resp)
		return turn{text: resp.Content, thinking: resp.Thinking, calls: resp.ToolCalls, usage: resp.Usage}, nil
	}

	chunks, err := p.Stream(ctx, req)
	if err != nil {
		return turn{}, err
	}
	proc := llm.NewStreamProcessor(cb)
	done := proc.Drain(chunks)

	if errs := proc.Errors(); len(errs) > 0 {
		return turn{}, &llm.ProviderError{Provider: p.Name(), Message: strings.Join(errs, "; ")}
	}
	if !done {
		if err := ctx.Err(); err != nil {
			return turn{}, err
		}
		return turn{}, &llm.ProviderError{Provider: p.Name(), Message: "stream closed before completion"}
	}

	usage, _ := proc.Usage()
	return turn{text: proc.Text(), thinking: proc.Thinking(), calls: proc.ToolCalls(), usage: usage}, nil
}

func notify(cb llm.Callbacks, resp *llm.ChatResponse) {
	if resp.Thinking != "" && cb.OnThinking != nil {
		cb.OnThinking(resp.Thinking)
	}
	if resp.Content != "" && cb.OnText != nil {
		cb.OnText(resp.Content)
	}
	if cb.OnToolCall != nil {
		for _, tc := range resp.ToolCalls {
			cb.OnToolCall(tc)
		}
	}
	if cb.OnUsage != nil {
		cb.OnUsage(resp.Usage)
	}
}

// ErrorText renders a tool failure the way the model sees it.
func ErrorText(name string, err error) string {
	switch {
	case errors.Is(err, ErrToolNotFound):
		return fmt.Sprintf("Error: Tool %s not found", name)
	case errors.Is(err, ErrToolTimeout):
		return "Error: timeout"
	default:
		var te *ToolExecutionError
		if errors.As(err, &te) {
			return "Error: " + te.Err.Error()
		}
		return "Error: " + err.Error()
	}
}
