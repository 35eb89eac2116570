// Package wire tokenizes streamed response bodies into JSON events.
//
// Both readers are cursors: Next returns the next event or io.EOF, and the
// underlying body is closed on every exit path (end of input, the [DONE]
// sentinel, a read error, or an explicit Close by a consumer that stops
// early).
package wire

import (
	"encoding/json"
	"fmt"
)

// Event is one JSON object decoded from the stream.
type Event struct {
	raw  json.RawMessage
	data map[string]any
}

// Raw returns the undecoded payload.
func (e Event) Raw() json.RawMessage { return e.raw }

// Map returns the payload as a generic object.
func (e Event) Map() map[string]any { return e.data }

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error { return json.Unmarshal(e.raw, v) }

// Type returns the top-level "type" field, which several vendors use to tag events.
func (e Event) Type() string {
	s, _ := e.data["type"].(string)
	return s
}

// ParseError describes a payload that was dropped because it is not a JSON object.
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed stream payload %q: %v", truncate(e.Payload, 64), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Option configures a reader.
type Option func(*options)

type options struct {
	onDrop func(*ParseError)
}

// WithDropHandler registers a hook called for every dropped payload.
func WithDropHandler(fn func(*ParseError)) Option {
	return func(o *options) { o.onDrop = fn }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func decodeEvent(payload []byte) (Event, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return Event{}, err
	}
	if data == nil {
		return Event{}, fmt.Errorf("payload is not an object")
	}
	return Event{raw: append(json.RawMessage(nil), payload...), data: data}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
