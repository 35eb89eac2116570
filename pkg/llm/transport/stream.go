package transport

import (
	"context"
	"errors"
	"io"

	"github.com/liteclaw/unillm/pkg/llm"
	"github.com/liteclaw/unillm/pkg/llm/wire"
)

// Cursor is the pull interface shared by the wire readers.
type Cursor interface {
	Next() (wire.Event, error)
	Close() error
}

// EventHandler maps one vendor event onto chunks. It returns false once the
// stream has reached a terminal chunk and nothing more should be read.
type EventHandler func(ev wire.Event, out *llm.Emitter) bool

// Pump drains cur on its own goroutine, handing each event to handle. At end
// of input finish is called to flush adapter state; it is expected to emit
// the done chunk. The cursor is closed on every exit path. Consumers that
// stop reading early must cancel ctx.
func Pump(ctx context.Context, cur Cursor, handle EventHandler, finish func(out *llm.Emitter)) <-chan llm.StreamChunk {
	chunks := make(chan llm.StreamChunk, 100)

	go func() {
		defer close(chunks)
		defer func() { _ = cur.Close() }()

		out := llm.NewEmitter(ctx, chunks)
		for {
			ev, err := cur.Next()
			if errors.Is(err, io.EOF) {
				finish(out)
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					out.Emit(llm.ErrorChunk(err.Error()))
				}
				return
			}
			if !handle(ev, out) {
				return
			}
		}
	}()

	return chunks
}

// DropLogger returns a reader option that logs discarded payloads at debug level.
func (c *Client) DropLogger() wire.Option {
	return wire.WithDropHandler(func(pe *wire.ParseError) {
		c.logger.Debug().Str("provider", c.provider).Err(pe).Msg("dropped malformed stream payload")
	})
}

// OpenSSE starts a streaming POST and wraps the body in an SSE reader.
func (c *Client) OpenSSE(ctx context.Context, path string, query map[string]string, body any) (*wire.SSEReader, error) {
	raw, err := c.PostStream(ctx, path, query, body)
	if err != nil {
		return nil, err
	}
	return wire.NewSSEReader(raw, c.DropLogger()), nil
}

// OpenNDJSON starts a streaming POST and wraps the body in an NDJSON reader.
func (c *Client) OpenNDJSON(ctx context.Context, path string, query map[string]string, body any) (*wire.NDJSONReader, error) {
	raw, err := c.PostStream(ctx, path, query, body)
	if err != nil {
		return nil, err
	}
	return wire.NewNDJSONReader(raw, c.DropLogger()), nil
}
