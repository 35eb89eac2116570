// Package transport holds the HTTP plumbing shared by provider adapters.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/liteclaw/unillm/pkg/llm"
)

// Client posts JSON to one vendor endpoint family.
type Client struct {
	provider string
	baseURL  string
	http     *resty.Client
	logger   zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHeader sets a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.http.SetHeader(key, value) }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		headers := c.http.Header
		c.http = resty.NewWithClient(hc)
		c.http.Header = headers
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for provider rooted at baseURL.
func New(provider, baseURL string, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     resty.New(),
		logger:   zerolog.Nop(),
	}
	c.http.SetHeader("Content-Type", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	if path == "" {
		return c.baseURL
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Logger returns the client's logger.
func (c *Client) Logger() zerolog.Logger { return c.logger }

// PostJSON sends body and decodes a successful response into out.
func (c *Client) PostJSON(ctx context.Context, path string, query map[string]string, body, out any) error {
	c.logger.Debug().Str("provider", c.provider).Str("path", path).Msg("llm request")

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetBody(body).
		Post(c.URL(path))
	if err != nil {
		return &llm.ProviderError{Provider: c.provider, Message: "request failed", Err: err}
	}
	if !resp.IsSuccess() {
		return ErrorFromBody(c.provider, resp.StatusCode(), resp.Body())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &llm.ProviderError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode(),
			Message:    "unparseable response body",
			Body:       resp.Body(),
			Err:        err,
		}
	}
	return nil
}

// PostStream sends body and returns the open response body on success. The
// caller owns the returned body.
func (c *Client) PostStream(ctx context.Context, path string, query map[string]string, body any) (io.ReadCloser, error) {
	c.logger.Debug().Str("provider", c.provider).Str("path", path).Bool("stream", true).Msg("llm request")

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetHeader("Accept", "text/event-stream, application/x-ndjson").
		SetBody(body).
		SetDoNotParseResponse(true).
		Post(c.URL(path))
	if err != nil {
		return nil, &llm.ProviderError{Provider: c.provider, Message: "request failed", Err: err}
	}
	raw := resp.RawBody()
	if !resp.IsSuccess() {
		var errBody []byte
		if raw != nil {
			errBody, _ = io.ReadAll(raw)
			_ = raw.Close()
		}
		return nil, ErrorFromBody(c.provider, resp.StatusCode(), errBody)
	}
	if raw == nil {
		return nil, &llm.ProviderError{Provider: c.provider, StatusCode: resp.StatusCode(), Message: "empty response body"}
	}
	return raw, nil
}

// errorPaths are tried in order to find a human-readable vendor message.
var errorPaths = []string{"error.message", "error", "message", "detail"}

// ErrorFromBody builds a ProviderError from a vendor error response.
func ErrorFromBody(provider string, status int, body []byte) *llm.ProviderError {
	pe := &llm.ProviderError{Provider: provider, StatusCode: status, Body: body}
	if gjson.ValidBytes(body) {
		for _, path := range errorPaths {
			if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
				pe.Message = r.String()
				break
			}
		}
	}
	if pe.Message == "" {
		pe.Message = strings.TrimSpace(string(body))
	}
	if pe.Message == "" {
		pe.Message = fmt.Sprintf("%d %s", status, http.StatusText(status))
	}
	return pe
}

// EventMessage extracts the message of an in-stream error event, if any.
func EventMessage(raw []byte) (string, bool) {
	for _, path := range errorPaths {
		if r := gjson.GetBytes(raw, path); r.Exists() && r.Type == gjson.String {
			return r.String(), true
		}
	}
	return "", false
}
