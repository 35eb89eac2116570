// Package config provides configuration management for unillm.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfigNotFound indicates no usable config file was found.
var ErrConfigNotFound = errors.New("config not found")

// Supported provider API families.
const (
	APIOpenAI    = "openai"
	APIGemini    = "gemini"
	APIAnthropic = "anthropic"
	APIOllama    = "ollama"
)

// Config matches the structure of unillm.json
type Config struct {
	DefaultProvider string                    `json:"defaultProvider" mapstructure:"defaultProvider"`
	Providers       map[string]ProviderConfig `json:"providers" mapstructure:"providers" validate:"dive"`
	Agent           AgentConfig               `json:"agent" mapstructure:"agent"`
	Gateway         GatewayConfig             `json:"gateway" mapstructure:"gateway"`
	Logging         LoggingConfig             `json:"logging" mapstructure:"logging"`
}

// ProviderConfig configures one provider instance. The map key is the name
// the instance is registered under; API selects the adapter family.
type ProviderConfig struct {
	API     string   `json:"api" mapstructure:"api" validate:"required,oneof=openai gemini anthropic ollama"`
	BaseURL string   `json:"baseUrl,omitempty" mapstructure:"baseUrl" validate:"omitempty,url"`
	APIKey  string   `json:"apiKey,omitempty" mapstructure:"apiKey"`
	Model   string   `json:"model,omitempty" mapstructure:"model"`
	Models  []string `json:"models,omitempty" mapstructure:"models"`
}

type AgentConfig struct {
	MaxIterations int           `json:"maxIterations" mapstructure:"maxIterations" validate:"gte=1"`
	ToolTimeout   time.Duration `json:"toolTimeout" mapstructure:"toolTimeout" validate:"gt=0"`
	Stream        bool          `json:"stream" mapstructure:"stream"`
	SystemPrompt  string        `json:"systemPrompt,omitempty" mapstructure:"systemPrompt"`
	MaxTokens     int           `json:"maxTokens,omitempty" mapstructure:"maxTokens" validate:"gte=0"`
}

type GatewayConfig struct {
	Bind string `json:"bind" mapstructure:"bind" validate:"required"`
	Port int    `json:"port" mapstructure:"port" validate:"gte=1,lte=65535"`
}

type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Verbose bool   `json:"verbose" mapstructure:"verbose"`
	Console bool   `json:"console" mapstructure:"console"`
}

// MarshalJSON writes ToolTimeout in its "10s" form so saved files round-trip
// through viper's duration decoding.
func (a AgentConfig) MarshalJSON() ([]byte, error) {
	type plain AgentConfig
	return json.Marshal(struct {
		plain
		ToolTimeout string `json:"toolTimeout"`
	}{plain(a), a.ToolTimeout.String()})
}

// StateDir returns the unillm state directory path.
// Can be overridden via UNILLM_STATE_DIR environment variable.
// Default: ~/.unillm
func StateDir() string {
	if override := strings.TrimSpace(os.Getenv("UNILLM_STATE_DIR")); override != "" {
		return expandPath(override)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".unillm"
	}
	return filepath.Join(home, ".unillm")
}

// ConfigPath returns the default config file path.
// Can be overridden via UNILLM_CONFIG_PATH environment variable.
// Default: ~/.unillm/unillm.json
func ConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("UNILLM_CONFIG_PATH")); override != "" {
		return expandPath(override)
	}
	return filepath.Join(StateDir(), "unillm.json")
}

// expandPath expands ~ to home directory and resolves the path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.Replace(path, "~", home, 1)
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProvider: "openai",
		Providers: map[string]ProviderConfig{
			"openai":    {API: APIOpenAI, BaseURL: "https://api.openai.com/v1", APIKey: "${OPENAI_API_KEY}", Model: "gpt-4o-mini"},
			"gemini":    {API: APIGemini, BaseURL: "https://generativelanguage.googleapis.com/v1beta", APIKey: "${GEMINI_API_KEY}", Model: "gemini-2.0-flash"},
			"anthropic": {API: APIAnthropic, BaseURL: "https://api.anthropic.com/v1", APIKey: "${ANTHROPIC_API_KEY}", Model: "claude-sonnet-4-20250514"},
			"ollama":    {API: APIOllama, BaseURL: "http://localhost:11434", Model: "llama3.1"},
		},
		Agent: AgentConfig{
			MaxIterations: 10,
			ToolTimeout:   10 * time.Second,
			Stream:        true,
			MaxTokens:     4096,
		},
		Gateway: GatewayConfig{
			Bind: "127.0.0.1",
			Port: 18790,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}

// LoadViper loads the configuration into a Viper instance.
func LoadViper() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath := strings.TrimSpace(os.Getenv("UNILLM_CONFIG_PATH")); configPath != "" {
		expandedPath := expandPath(configPath)
		fileInfo, err := os.Stat(expandedPath)
		if err == nil && fileInfo.IsDir() {
			v.SetConfigName("unillm")
			v.SetConfigType("json")
			v.AddConfigPath(expandedPath)
		} else {
			v.SetConfigFile(expandedPath)
		}
	} else {
		v.SetConfigName("unillm")
		v.SetConfigType("json")
		v.AddConfigPath(StateDir())
	}

	v.SetEnvPrefix("UNILLM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return v, ErrConfigNotFound
		}
		return nil, err
	}
	return v, nil
}

// Load reads the configuration from file and UNILLM_ environment variables.
// A missing file is not an error: defaults are returned.
func Load() (*Config, error) {
	v, err := LoadViper()
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = Default().Providers
	}

	expandEnvVars(cfg)
	return cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("defaultProvider", d.DefaultProvider)

	v.SetDefault("agent.maxIterations", d.Agent.MaxIterations)
	v.SetDefault("agent.toolTimeout", d.Agent.ToolTimeout)
	v.SetDefault("agent.stream", d.Agent.Stream)
	v.SetDefault("agent.maxTokens", d.Agent.MaxTokens)

	v.SetDefault("gateway.bind", d.Gateway.Bind)
	v.SetDefault("gateway.port", d.Gateway.Port)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.console", d.Logging.Console)
}

// expandEnvVars expands ${VAR} references in credentials and endpoints.
func expandEnvVars(cfg *Config) {
	for name, p := range cfg.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		p.BaseURL = os.ExpandEnv(p.BaseURL)
		cfg.Providers[name] = p
	}
	cfg.Agent.SystemPrompt = os.ExpandEnv(cfg.Agent.SystemPrompt)
}

// Save saves the configuration to ConfigPath as JSON.
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0o600)
}

var validate = validator.New()

// Validate checks for structural and semantic errors in the config.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(c.Providers) == 0 {
		return errors.New("invalid config: no providers defined")
	}
	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			return fmt.Errorf("defaultProvider %q is not defined in 'providers'", c.DefaultProvider)
		}
	}
	return nil
}

// ProviderNames returns configured provider names, sorted.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Redacted returns a copy with API keys masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Providers = make(map[string]ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		if p.APIKey != "" {
			p.APIKey = mask(p.APIKey)
		}
		out.Providers[name] = p
	}
	return &out
}

func mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}
