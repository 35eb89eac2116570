package wire

import (
	"bufio"
	"io"
	"strings"
)

// DoneSentinel is the payload that ends an SSE stream without an event.
const DoneSentinel = "[DONE]"

// SSEReader yields the JSON payload of each Server-Sent Event.
//
// Lines are buffered until their newline arrives, so an event split across
// any number of network reads parses the same as one delivered whole.
// Multiple data: lines of one event are joined with "\n". Comment lines
// and non-data fields are skipped. Payloads that are not JSON objects are
// dropped and reading continues.
type SSEReader struct {
	body   io.ReadCloser
	r      *bufio.Reader
	opts   options
	data   []string
	eof    bool
	closed bool
}

// NewSSEReader wraps body. The reader owns body from here on.
func NewSSEReader(body io.ReadCloser, opts ...Option) *SSEReader {
	return &SSEReader{
		body: body,
		r:    bufio.NewReaderSize(body, 64*1024),
		opts: buildOptions(opts),
	}
}

// Next returns the next event, or io.EOF once the stream is finished.
func (s *SSEReader) Next() (Event, error) {
	for {
		if s.closed {
			return Event{}, io.EOF
		}
		if s.eof {
			// End of input acts as a trailing blank line.
			if ev, ok, _ := s.dispatch(); ok {
				return ev, nil
			}
			_ = s.Close()
			return Event{}, io.EOF
		}

		line, err := s.r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				_ = s.Close()
				return Event{}, err
			}
			s.eof = true
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if s.eof {
				continue
			}
			ev, ok, stop := s.dispatch()
			if stop {
				_ = s.Close()
				return Event{}, io.EOF
			}
			if ok {
				return ev, nil
			}
			continue
		}

		s.appendLine(line)
	}
}

func (s *SSEReader) appendLine(line string) {
	if strings.HasPrefix(line, ":") {
		return
	}
	if !strings.HasPrefix(line, "data:") {
		return
	}
	val := line[len("data:"):]
	val = strings.TrimPrefix(val, " ")
	s.data = append(s.data, val)
}

// dispatch flushes the buffered data lines as one event. stop is true when
// the payload is the [DONE] sentinel.
func (s *SSEReader) dispatch() (ev Event, ok bool, stop bool) {
	if len(s.data) == 0 {
		return Event{}, false, false
	}
	payload := strings.Join(s.data, "\n")
	s.data = s.data[:0]

	if strings.TrimSpace(payload) == DoneSentinel {
		return Event{}, false, true
	}
	ev, err := decodeEvent([]byte(payload))
	if err != nil {
		if s.opts.onDrop != nil {
			s.opts.onDrop(&ParseError{Payload: payload, Err: err})
		}
		return Event{}, false, false
	}
	return ev, true, false
}

// Close releases the body. It is safe to call more than once.
func (s *SSEReader) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.data = nil
	return s.body.Close()
}
