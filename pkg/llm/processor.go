package llm

import "strings"

// Callbacks are synchronous notification hooks invoked from Process. They
// observe accumulation; they do not steer it. Any of them may be nil.
type Callbacks struct {
	OnText     func(delta string)
	OnThinking func(delta string)
	OnToolCall func(tc ToolCall)
	OnUsage    func(u Usage)
	OnError    func(msg string)
}

// StreamProcessor accumulates the chunks of one turn.
//
// A processor is owned by a single consumer and must not be shared between
// concurrently running turns. Call Reset to reuse it for the next turn.
type StreamProcessor struct {
	cb Callbacks

	text     strings.Builder
	thinking strings.Builder
	partial  map[string]*ToolCall
	order    []string
	calls    []ToolCall
	usage    *Usage
	errs     []string
	done     bool
}

// NewStreamProcessor creates a processor reporting to cb.
func NewStreamProcessor(cb Callbacks) *StreamProcessor {
	return &StreamProcessor{cb: cb, partial: make(map[string]*ToolCall)}
}

// Process folds one chunk into the accumulation state.
func (p *StreamProcessor) Process(c StreamChunk) {
	switch c.Type {
	case ChunkText:
		p.text.WriteString(c.Text)
		if p.cb.OnText != nil {
			p.cb.OnText(c.Text)
		}
	case ChunkThinking:
		p.thinking.WriteString(c.Text)
		if p.cb.OnThinking != nil {
			p.cb.OnThinking(c.Text)
		}
	case ChunkToolCall:
		p.mergeToolCall(c.ToolCall)
	case ChunkUsage:
		if c.Usage == nil {
			return
		}
		u := *c.Usage
		p.usage = &u
		if p.cb.OnUsage != nil {
			p.cb.OnUsage(u)
		}
	case ChunkError:
		p.errs = append(p.errs, c.Error)
		if p.cb.OnError != nil {
			p.cb.OnError(c.Error)
		}
	case ChunkDone:
		p.finalize()
	}
}

// Drain processes chunks until the channel closes and reports whether a
// done chunk was seen.
func (p *StreamProcessor) Drain(chunks <-chan StreamChunk) bool {
	for c := range chunks {
		p.Process(c)
	}
	return p.done
}

// mergeToolCall merges a fragment into the per-id partial map. Fragments
// without an id are ignored. Arguments from two fragments are shallow-merged
// with last write winning on conflicting keys.
func (p *StreamProcessor) mergeToolCall(frag *ToolCall) {
	if frag == nil || frag.ID == "" {
		return
	}
	cur, ok := p.partial[frag.ID]
	if !ok {
		cur = &ToolCall{ID: frag.ID}
		p.partial[frag.ID] = cur
		p.order = append(p.order, frag.ID)
	}
	if frag.Name != "" {
		cur.Name = frag.Name
	}
	switch {
	case frag.Arguments == nil:
	case cur.Arguments == nil:
		cur.Arguments = frag.Arguments.merge(nil)
	default:
		cur.Arguments = cur.Arguments.merge(frag.Arguments)
	}
}

// finalize promotes every complete partial call. Incomplete ones are dropped.
func (p *StreamProcessor) finalize() {
	if p.done {
		return
	}
	p.done = true
	for _, id := range p.order {
		tc := p.partial[id]
		if !tc.Complete() {
			continue
		}
		p.calls = append(p.calls, *tc)
		if p.cb.OnToolCall != nil {
			p.cb.OnToolCall(*tc)
		}
	}
}

// Text returns the accumulated answer text.
func (p *StreamProcessor) Text() string { return p.text.String() }

// Thinking returns the accumulated reasoning text.
func (p *StreamProcessor) Thinking() string { return p.thinking.String() }

// ToolCalls returns the calls promoted by the done chunk, in first-seen order.
func (p *StreamProcessor) ToolCalls() []ToolCall {
	return append([]ToolCall(nil), p.calls...)
}

// Usage returns the last usage snapshot, if any was seen.
func (p *StreamProcessor) Usage() (Usage, bool) {
	if p.usage == nil {
		return Usage{}, false
	}
	return *p.usage, true
}

// Errors returns the messages of every error chunk seen.
func (p *StreamProcessor) Errors() []string {
	return append([]string(nil), p.errs...)
}

// Done reports whether the done chunk has been processed.
func (p *StreamProcessor) Done() bool { return p.done }

// Reset clears all buffers. Callbacks are kept.
func (p *StreamProcessor) Reset() {
	p.text.Reset()
	p.thinking.Reset()
	p.partial = make(map[string]*ToolCall)
	p.order = nil
	p.calls = nil
	p.usage = nil
	p.errs = nil
	p.done = false
}
