package llm

import (
	"errors"
	"fmt"
)

// ErrNoChoices is returned when a vendor answers without any candidate.
var ErrNoChoices = errors.New("no choices returned")

// ProviderError reports an HTTP failure or an unrecognized response body.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	// Body is the raw response body when one was read.
	Body []byte
	Err  error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AsProviderError unwraps err into a *ProviderError.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
