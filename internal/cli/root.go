// Package cli provides the command-line interface for unillm.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liteclaw/unillm/internal/cli/commands"
	"github.com/liteclaw/unillm/internal/version"
)

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "unillm",
		Short: "unillm - one client for many LLM providers",
		Long: `unillm talks to OpenAI-compatible, Gemini, Anthropic and Ollama
models through a single interface, runs tool calls on the model's behalf
and can expose the same loop over HTTP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(commands.NewChatCommand())
	root.AddCommand(commands.NewModelsCommand())
	root.AddCommand(commands.NewServeCommand())
	root.AddCommand(commands.NewConfigCommand())
	root.AddCommand(commands.NewVersionCommand())

	root.PersistentFlags().StringP("config", "c", "", "config file (default is ~/.unillm/unillm.json)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	return root
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
