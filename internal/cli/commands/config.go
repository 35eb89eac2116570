package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liteclaw/unillm/internal/config"
)

// NewConfigCommand creates the config subcommand.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config helpers (show/path/init/get/set)",
		Long:  `Inspect and edit the active config file.`,
		Example: `  # Write a starter config
  unillm config init

  # Show the effective config with secrets masked
  unillm config show

  # Set a config value
  unillm config set gateway.port 8080`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathCommand())
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigGetCommand())
	cmd.AddCommand(newConfigSetCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !reveal {
				cfg = cfg.Redacted()
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print API keys unmasked")
	return cmd
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				_ = os.Setenv("UNILLM_CONFIG_PATH", path)
			}
			cmd.Println(config.ConfigPath())
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				_ = os.Setenv("UNILLM_CONFIG_PATH", path)
			}
			path := config.ConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Save(config.Default()); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newConfigGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "get [key]",
		Short:   "Get a configuration value",
		Example: `  unillm config get gateway.port`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.LoadViper()
			if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
				return fmt.Errorf("failed to load config: %w", err)
			}

			val := v.Get(args[0])
			if val == nil {
				cmd.Println("null")
				return nil
			}
			cmd.Printf("%v\n", val)
			return nil
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a configuration value",
		Example: `  unillm config set gateway.port 9000
  unillm config set providers.ollama.model qwen3`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.LoadViper()
			if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
				return fmt.Errorf("failed to load config: %w", err)
			}

			key, valStr := args[0], args[1]
			var val any = valStr
			if vInt, err := strconv.Atoi(valStr); err == nil {
				val = vInt
			} else if vBool, err := strconv.ParseBool(valStr); err == nil {
				val = vBool
			} else if strings.HasPrefix(valStr, "[") || strings.HasPrefix(valStr, "{") {
				var decoded any
				if json.Unmarshal([]byte(valStr), &decoded) == nil {
					val = decoded
				}
			}
			v.Set(key, val)

			target := v.ConfigFileUsed()
			if target == "" {
				target = config.ConfigPath()
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := v.WriteConfigAs(target); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			cmd.Printf("Updated %s = %v\n", key, val)
			return nil
		},
	}
}
