package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liteclaw/unillm/pkg/stream"
)

func TestStreamProcessor_TextAndThinking(t *testing.T) {
	var deltas, thoughts []string
	p := NewStreamProcessor(Callbacks{
		OnText:     func(d string) { deltas = append(deltas, d) },
		OnThinking: func(d string) { thoughts = append(thoughts, d) },
	})

	p.Process(ThinkingChunk("hmm "))
	p.Process(TextChunk("Hello"))
	p.Process(ThinkingChunk("ok"))
	p.Process(TextChunk(", world"))

	assert.Equal(t, "Hello, world", p.Text())
	assert.Equal(t, "hmm ok", p.Thinking())
	assert.Equal(t, []string{"Hello", ", world"}, deltas)
	assert.Equal(t, []string{"hmm ", "ok"}, thoughts)
	assert.False(t, p.Done())
}

func TestStreamProcessor_MergesFragmentsOnDone(t *testing.T) {
	var reported []ToolCall
	p := NewStreamProcessor(Callbacks{OnToolCall: func(tc ToolCall) { reported = append(reported, tc) }})

	p.Process(ToolCallChunk(ToolCall{ID: "call_1", Name: "get_weather"}))
	p.Process(ToolCallChunk(ToolCall{ID: "call_2", Arguments: Arguments{"q": "go"}}))
	p.Process(ToolCallChunk(ToolCall{ID: "call_1", Arguments: Arguments{"location": "NYC"}}))
	p.Process(ToolCallChunk(ToolCall{ID: "call_1", Arguments: Arguments{"unit": "c"}}))

	assert.Empty(t, p.ToolCalls(), "calls are promoted only on done")
	assert.Empty(t, reported)

	p.Process(DoneChunk())

	require.Len(t, p.ToolCalls(), 1)
	got := p.ToolCalls()[0]
	assert.Equal(t, "call_1", got.ID)
	assert.Equal(t, "get_weather", got.Name)
	assert.Equal(t, Arguments{"location": "NYC", "unit": "c"}, got.Arguments)
	assert.Equal(t, p.ToolCalls(), reported)
	assert.True(t, p.Done())
}

func TestStreamProcessor_LastWriteWinsOnConflictingKeys(t *testing.T) {
	p := NewStreamProcessor(Callbacks{})
	p.Process(ToolCallChunk(ToolCall{ID: "a", Name: "first", Arguments: Arguments{"k": 1.0, "x": "keep"}}))
	p.Process(ToolCallChunk(ToolCall{ID: "a", Name: "second", Arguments: Arguments{"k": 2.0}}))
	p.Process(DoneChunk())

	require.Len(t, p.ToolCalls(), 1)
	assert.Equal(t, "second", p.ToolCalls()[0].Name)
	assert.Equal(t, Arguments{"k": 2.0, "x": "keep"}, p.ToolCalls()[0].Arguments)
}

func TestStreamProcessor_IgnoresFragmentsWithoutID(t *testing.T) {
	p := NewStreamProcessor(Callbacks{})
	p.Process(ToolCallChunk(ToolCall{Name: "orphan", Arguments: Arguments{}}))
	p.Process(StreamChunk{Type: ChunkToolCall})
	p.Process(DoneChunk())

	assert.Empty(t, p.ToolCalls())
}

func TestStreamProcessor_EmptyArgumentsAreComplete(t *testing.T) {
	p := NewStreamProcessor(Callbacks{})
	p.Process(ToolCallChunk(ToolCall{ID: "t", Name: "current_time", Arguments: Arguments{}}))
	p.Process(DoneChunk())

	require.Len(t, p.ToolCalls(), 1)
	assert.Equal(t, Arguments{}, p.ToolCalls()[0].Arguments)
}

func TestStreamProcessor_FragmentDoesNotAliasCaller(t *testing.T) {
	args := Arguments{"a": "1"}
	p := NewStreamProcessor(Callbacks{})
	p.Process(ToolCallChunk(ToolCall{ID: "t", Name: "n", Arguments: args}))
	args["a"] = "mutated"
	p.Process(DoneChunk())

	assert.Equal(t, "1", p.ToolCalls()[0].Arguments["a"])
}

func TestStreamProcessor_UsageAndErrors(t *testing.T) {
	var usages []Usage
	var errs []string
	p := NewStreamProcessor(Callbacks{
		OnUsage: func(u Usage) { usages = append(usages, u) },
		OnError: func(m string) { errs = append(errs, m) },
	})

	_, ok := p.Usage()
	assert.False(t, ok)

	p.Process(TextChunk("partial"))
	p.Process(UsageChunk(Usage{PromptTokens: 3, TotalTokens: 3}))
	p.Process(UsageChunk(Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}))
	p.Process(ErrorChunk("overloaded"))

	u, ok := p.Usage()
	require.True(t, ok)
	assert.Equal(t, 7, u.TotalTokens)
	assert.Len(t, usages, 2)
	assert.Equal(t, []string{"overloaded"}, errs)
	assert.Equal(t, []string{"overloaded"}, p.Errors())
	assert.Equal(t, "partial", p.Text(), "errors keep earlier text")
}

func TestStreamProcessor_Reset(t *testing.T) {
	p := NewStreamProcessor(Callbacks{})
	p.Process(TextChunk("x"))
	p.Process(ThinkingChunk("y"))
	p.Process(ToolCallChunk(ToolCall{ID: "1", Name: "n", Arguments: Arguments{}}))
	p.Process(UsageChunk(Usage{TotalTokens: 1}))
	p.Process(DoneChunk())

	p.Reset()

	assert.Empty(t, p.Text())
	assert.Empty(t, p.Thinking())
	assert.Empty(t, p.ToolCalls())
	assert.False(t, p.Done())
	_, ok := p.Usage()
	assert.False(t, ok)

	p.Process(ToolCallChunk(ToolCall{ID: "2", Name: "m", Arguments: Arguments{}}))
	p.Process(DoneChunk())
	require.Len(t, p.ToolCalls(), 1)
	assert.Equal(t, "2", p.ToolCalls()[0].ID)
}

func TestStreamProcessor_Drain(t *testing.T) {
	ch := make(chan StreamChunk, 3)
	ch <- TextChunk("a")
	ch <- TextChunk("b")
	ch <- DoneChunk()
	close(ch)

	p := NewStreamProcessor(Callbacks{})
	assert.True(t, p.Drain(ch))
	assert.Equal(t, "ab", p.Text())
}

func TestTextOnly(t *testing.T) {
	ctx := context.Background()
	chunks := stream.FromSlice(ctx, []StreamChunk{
		ThinkingChunk("t"),
		TextChunk("Hel"),
		UsageChunk(Usage{}),
		TextChunk("lo"),
		DoneChunk(),
	})

	got, err := stream.Collect(ctx, TextOnly(ctx, chunks))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, got)
}

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments(`{"location":"NYC","days":3,"metric":true}`)
	require.NoError(t, err)

	loc, ok := args.String("location")
	assert.True(t, ok)
	assert.Equal(t, "NYC", loc)
	days, _ := args.Float("days")
	assert.Equal(t, 3.0, days)
	metric, _ := args.Bool("metric")
	assert.True(t, metric)

	var v struct {
		Location string `json:"location"`
		Days     int    `json:"days"`
	}
	require.NoError(t, args.Decode(&v))
	assert.Equal(t, 3, v.Days)

	empty, err := ParseArguments("")
	require.NoError(t, err)
	assert.NotNil(t, empty)

	null, err := ParseArguments("null")
	require.NoError(t, err)
	assert.NotNil(t, null)

	_, err = ParseArguments(`{"open":`)
	assert.Error(t, err)
}
