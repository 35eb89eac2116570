package wire

import (
	"bufio"
	"io"
	"strings"
)

// NDJSONReader yields one JSON object per line. Blank lines are skipped and
// lines that do not decode are dropped. A trailing line without a newline is
// parsed once the body ends.
type NDJSONReader struct {
	body   io.ReadCloser
	r      *bufio.Reader
	opts   options
	closed bool
}

// NewNDJSONReader wraps body. The reader owns body from here on.
func NewNDJSONReader(body io.ReadCloser, opts ...Option) *NDJSONReader {
	return &NDJSONReader{
		body: body,
		r:    bufio.NewReaderSize(body, 64*1024),
		opts: buildOptions(opts),
	}
}

// Next returns the next event, or io.EOF once the stream is finished.
func (n *NDJSONReader) Next() (Event, error) {
	for {
		if n.closed {
			return Event{}, io.EOF
		}

		line, err := n.r.ReadString('\n')
		if err != nil && err != io.EOF {
			_ = n.Close()
			return Event{}, err
		}
		last := err == io.EOF

		if payload := strings.TrimSpace(line); payload != "" {
			ev, decErr := decodeEvent([]byte(payload))
			if decErr == nil {
				if last {
					_ = n.Close()
				}
				return ev, nil
			}
			if n.opts.onDrop != nil {
				n.opts.onDrop(&ParseError{Payload: payload, Err: decErr})
			}
		}

		if last {
			_ = n.Close()
			return Event{}, io.EOF
		}
	}
}

// Close releases the body. It is safe to call more than once.
func (n *NDJSONReader) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	return n.body.Close()
}
