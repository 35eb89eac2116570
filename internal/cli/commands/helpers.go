// Package commands provides CLI subcommands for unillm.
package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/liteclaw/unillm/internal/config"
	"github.com/liteclaw/unillm/internal/logging"
	"github.com/liteclaw/unillm/internal/providers"
	"github.com/liteclaw/unillm/internal/tools/builtin"
	"github.com/liteclaw/unillm/pkg/agent"
	"github.com/liteclaw/unillm/pkg/tools"
)

// loadConfig honours the global --config and --verbose flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("UNILLM_CONFIG_PATH", path); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) zerolog.Logger {
	return logging.New(cmd.ErrOrStderr(), cfg.Logging)
}

// newClient builds an agent client over every configured provider. With
// withTools the built-in tools are registered, confined to the working
// directory.
func newClient(cfg *config.Config, logger zerolog.Logger, withTools bool) (*agent.Client, error) {
	var reg *tools.Registry
	if withTools {
		reg = builtin.Registry(".")
	}
	return providers.NewClient(cfg, reg, providers.Options{Logger: logger})
}
