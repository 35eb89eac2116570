// Package agent provides the client façade: provider selection, single
// calls, provider fan-out and the tool-calling agent loop.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/liteclaw/unillm/pkg/llm"
	"github.com/liteclaw/unillm/pkg/stream"
	"github.com/liteclaw/unillm/pkg/tools"
)

const (
	// DefaultMaxIterations caps request/execute rounds per Run.
	DefaultMaxIterations = 10
	// DefaultToolTimeout bounds a single tool execution.
	DefaultToolTimeout = 10 * time.Second
)

// Client owns a provider registry, a tool registry and loop settings. It is
// safe for concurrent use; each Run keeps its own per-turn state.
type Client struct {
	mu              sync.RWMutex
	providers       map[string]llm.Provider
	defaultProvider string

	tools         *tools.Registry
	maxIterations int
	toolTimeout   time.Duration
	stream        bool
	validate      *validator.Validate
	logger        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithProvider registers p.
func WithProvider(p llm.Provider) Option {
	return func(c *Client) { c.Register(p) }
}

// WithDefaultProvider selects the provider used when a request names none.
func WithDefaultProvider(name string) Option {
	return func(c *Client) { c.defaultProvider = name }
}

// WithTools sets the registry consulted for tool executors.
func WithTools(r *tools.Registry) Option {
	return func(c *Client) { c.tools = r }
}

// WithMaxIterations sets the iteration cap. Values below one are ignored.
func WithMaxIterations(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithToolTimeout sets the per-call tool timeout. Values below or equal to
// zero are ignored.
func WithToolTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.toolTimeout = d
		}
	}
}

// WithStreaming selects stream (true) or chat (false) calls inside Run.
func WithStreaming(on bool) Option {
	return func(c *Client) { c.stream = on }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client.
func New(opts ...Option) *Client {
	c := &Client{
		providers:     make(map[string]llm.Provider),
		tools:         tools.NewRegistry(),
		maxIterations: DefaultMaxIterations,
		toolTimeout:   DefaultToolTimeout,
		stream:        true,
		validate:      validator.New(),
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds p under its name. The first provider registered becomes the
// default unless one was chosen explicitly.
func (c *Client) Register(p llm.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.Name()] = p
	if c.defaultProvider == "" {
		c.defaultProvider = p.Name()
	}
}

// Tools returns the tool registry.
func (c *Client) Tools() *tools.Registry { return c.tools }

// Provider returns the provider registered as name, or the default when
// name is empty.
func (c *Client) Provider(name string) (llm.Provider, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		return nil, ErrNoProvider
	}
	p, ok := c.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// ProviderNames returns registered provider names, sorted.
func (c *Client) ProviderNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CatalogEntry is one model of one provider.
type CatalogEntry struct {
	Provider string `json:"provider"`
	llm.ModelInfo
}

// Key returns the "provider/model" form accepted in ChatRequest.Model.
func (e CatalogEntry) Key() string { return e.Provider + "/" + e.ID }

// Models aggregates every provider's static catalogue.
func (c *Client) Models() []CatalogEntry {
	var out []CatalogEntry
	for _, name := range c.ProviderNames() {
		p, err := c.Provider(name)
		if err != nil {
			continue
		}
		for _, m := range p.Models() {
			out = append(out, CatalogEntry{Provider: name, ModelInfo: m})
		}
	}
	return out
}

// resolve picks the provider for req. An explicit name wins; otherwise a
// "provider/model" prefix naming a registered provider selects it. The
// prefix is stripped from the model id whenever it names the chosen
// provider. The returned request is a copy.
func (c *Client) resolve(req *llm.ChatRequest, explicit string) (llm.Provider, *llm.ChatRequest, error) {
	out := req.Clone()
	name := explicit
	if prefix, model, ok := c.SplitModel(req.Model); ok {
		if name == "" {
			name = prefix
		}
		if name == prefix {
			out.Model = model
		}
	}
	p, err := c.Provider(name)
	if err != nil {
		return nil, nil, err
	}
	return p, out, nil
}

// SplitModel splits a "provider/model" id whose prefix names a registered
// provider. ok is false for plain model ids, including ids that contain a
// slash but no known prefix.
func (c *Client) SplitModel(id string) (provider, model string, ok bool) {
	prefix, rest, found := strings.Cut(id, "/")
	if !found {
		return "", id, false
	}
	c.mu.RLock()
	_, known := c.providers[prefix]
	c.mu.RUnlock()
	if !known {
		return "", id, false
	}
	return prefix, rest, true
}

func (c *Client) check(req *llm.ChatRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil", ErrInvalidRequest)
	}
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Chat sends one non-streaming request without running tools.
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	p, r, err := c.resolve(req, "")
	if err != nil {
		return nil, err
	}
	return p.Chat(ctx, r)
}

// Stream sends one streaming request without running tools. Consumers that
// stop reading early must cancel ctx.
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	p, r, err := c.resolve(req, "")
	if err != nil {
		return nil, err
	}
	return p.Stream(ctx, r)
}

// StreamAll sends req to every named provider (all registered ones when
// names is empty) and merges the chunk streams. Each chunk carries the name
// of the provider that produced it; a provider that fails to start
// contributes a single error chunk. Per-provider order is preserved.
func (c *Client) StreamAll(ctx context.Context, req *llm.ChatRequest, names ...string) (<-chan llm.StreamChunk, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		names = c.ProviderNames()
	}
	if len(names) == 0 {
		return nil, ErrNoProvider
	}

	sources := make([]<-chan llm.StreamChunk, 0, len(names))
	for _, name := range names {
		name := name
		p, err := c.Provider(name)
		if err != nil {
			return nil, err
		}
		r := req.Clone()
		r.Model = ""

		ch, err := p.Stream(ctx, r)
		if err != nil {
			c.logger.Warn().Str("provider", name).Err(err).Msg("fan-out stream failed to start")
			ch = stream.FromSlice(ctx, []llm.StreamChunk{llm.ErrorChunk(err.Error())})
		}
		sources = append(sources, stream.Map(ctx, ch, func(chunk llm.StreamChunk) llm.StreamChunk {
			chunk.Provider = name
			return chunk
		}))
	}
	return stream.Merge(ctx, sources...), nil
}
