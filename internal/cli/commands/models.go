package commands

import (
	"encoding/json"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/liteclaw/unillm/pkg/agent"
)

// NewModelsCommand creates the models subcommand.
func NewModelsCommand() *cobra.Command {
	var jsonOutput bool
	var provider string

	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"ls"},
		Short:   "List the models of every configured provider",
		Example: `  unillm models
  unillm models --provider ollama
  unillm models --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg, zerolog.Nop(), false)
			if err != nil {
				return err
			}

			var rows []agent.CatalogEntry
			for _, m := range client.Models() {
				if provider == "" || m.Provider == provider {
					rows = append(rows, m)
				}
			}

			if jsonOutput {
				keys := make([]map[string]any, 0, len(rows))
				for _, m := range rows {
					keys = append(keys, map[string]any{
						"key":               m.Key(),
						"provider":          m.Provider,
						"id":                m.ID,
						"supportsStreaming": m.SupportsStreaming,
						"supportsTools":     m.SupportsTools,
					})
				}
				data, _ := json.MarshalIndent(map[string]any{"models": keys}, "", "  ")
				cmd.Println(string(data))
				return nil
			}

			if len(rows) == 0 {
				cmd.Println("No models configured.")
				return nil
			}

			def, _ := client.Provider("")
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Provider", "Model ID", "Key", "Streaming", "Tools"})
			table.SetBorder(false)
			table.SetAutoWrapText(false)
			for _, m := range rows {
				name := m.Provider
				if def != nil && def.Name() == name {
					name += " (default)"
				}
				table.Append([]string{
					name,
					m.ID,
					m.Key(),
					strconv.FormatBool(m.SupportsStreaming),
					strconv.FormatBool(m.SupportsTools),
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Only list models of this provider")
	return cmd
}
