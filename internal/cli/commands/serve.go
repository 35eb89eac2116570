package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liteclaw/unillm/internal/gateway"
)

// NewServeCommand creates the serve subcommand.
func NewServeCommand() *cobra.Command {
	var bind string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Long: `Serve the configured providers over HTTP:

  GET  /v1/models       model catalogue
  POST /v1/chat         full agent loop with built-in tools
  POST /v1/chat/stream  single turn as server-sent events`,
		Example: `  unillm serve
  unillm serve --bind 0.0.0.0 --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("bind") {
				cfg.Gateway.Bind = bind
			}
			if cmd.Flags().Changed("port") {
				cfg.Gateway.Port = port
			}

			logger := newLogger(cmd, cfg)
			client, err := newClient(cfg, logger, true)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return gateway.New(cfg, client, logger).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Address to bind (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default from config)")
	return cmd
}
