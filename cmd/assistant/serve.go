package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"navgurukul.org/assistant/internal/app"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long:  "Serves the JSON and server-sent-events API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.loadConfig()
			if port != "" {
				cfg.HTTPPort = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := g.logger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer application.Close()

			addr := fmt.Sprintf(":%s", cfg.HTTPPort)
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
			return application.Serve(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "HTTP port (overrides HTTP_PORT)")
	return cmd
}
