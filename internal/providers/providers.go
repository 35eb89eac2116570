// Package providers turns configuration into registered adapters.
package providers

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/liteclaw/unillm/internal/config"
	"github.com/liteclaw/unillm/pkg/agent"
	"github.com/liteclaw/unillm/pkg/llm"
	"github.com/liteclaw/unillm/pkg/llm/anthropic"
	"github.com/liteclaw/unillm/pkg/llm/gemini"
	"github.com/liteclaw/unillm/pkg/llm/ollama"
	"github.com/liteclaw/unillm/pkg/llm/openai"
	"github.com/liteclaw/unillm/pkg/llm/transport"
	"github.com/liteclaw/unillm/pkg/tools"
)

// Options adjust how adapters are constructed.
type Options struct {
	Logger zerolog.Logger
	// HTTPClient replaces the default client of every adapter when set.
	HTTPClient *http.Client
}

// Build creates the adapter configured under name.
func Build(name string, pc config.ProviderConfig, opts Options) (llm.Provider, error) {
	topts := []transport.Option{transport.WithLogger(opts.Logger.With().Str("provider", name).Logger())}
	if opts.HTTPClient != nil {
		topts = append(topts, transport.WithHTTPClient(opts.HTTPClient))
	}
	models := catalogue(pc)

	switch pc.API {
	case config.APIOpenAI:
		return openai.New(openai.Config{Name: name, BaseURL: pc.BaseURL, APIKey: pc.APIKey, Model: pc.Model, Models: models}, topts...), nil
	case config.APIGemini:
		return gemini.New(gemini.Config{Name: name, BaseURL: pc.BaseURL, APIKey: pc.APIKey, Model: pc.Model, Models: models}, topts...), nil
	case config.APIAnthropic:
		return anthropic.New(anthropic.Config{Name: name, BaseURL: pc.BaseURL, APIKey: pc.APIKey, Model: pc.Model, Models: models}, topts...), nil
	case config.APIOllama:
		return ollama.New(ollama.Config{Name: name, BaseURL: pc.BaseURL, Model: pc.Model, Models: models}, topts...), nil
	default:
		return nil, fmt.Errorf("provider %q: unknown api %q", name, pc.API)
	}
}

// catalogue lists the configured model ids, the default model first. An
// empty result lets the adapter fall back to its built-in list.
func catalogue(pc config.ProviderConfig) []llm.ModelInfo {
	ids := pc.Models
	if pc.Model != "" && len(ids) > 0 && !contains(ids, pc.Model) {
		ids = append([]string{pc.Model}, ids...)
	}
	out := make([]llm.ModelInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, llm.ModelInfo{ID: id, SupportsStreaming: true, SupportsTools: true})
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}

// NewClient registers every configured provider on a fresh agent.Client
// with the loop settings from cfg.Agent.
func NewClient(cfg *config.Config, registry *tools.Registry, opts Options) (*agent.Client, error) {
	copts := []agent.Option{
		agent.WithLogger(opts.Logger.With().Str("component", "agent").Logger()),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithToolTimeout(cfg.Agent.ToolTimeout),
		agent.WithStreaming(cfg.Agent.Stream),
	}
	if registry != nil {
		copts = append(copts, agent.WithTools(registry))
	}
	for _, name := range cfg.ProviderNames() {
		p, err := Build(name, cfg.Providers[name], opts)
		if err != nil {
			return nil, err
		}
		copts = append(copts, agent.WithProvider(p))
	}
	if cfg.DefaultProvider != "" {
		if _, ok := cfg.Providers[cfg.DefaultProvider]; !ok {
			return nil, fmt.Errorf("%w: %q", agent.ErrUnknownProvider, cfg.DefaultProvider)
		}
		copts = append(copts, agent.WithDefaultProvider(cfg.DefaultProvider))
	}
	return agent.New(copts...), nil
}

// Request builds a request carrying the configured system prompt and token
// limit. Model may be empty, "model" or "provider/model".
func Request(cfg *config.Config, model string, msgs ...llm.Message) *llm.ChatRequest {
	return &llm.ChatRequest{
		Model:        model,
		Messages:     msgs,
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxTokens:    cfg.Agent.MaxTokens,
	}
}
