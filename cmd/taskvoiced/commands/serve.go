package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskvoice/internal/api"
)

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket event stream",
		Long: `Run the assistant behind a local HTTP API.

Examples:
  taskvoiced serve
  taskvoiced serve --addr 127.0.0.1:9000
  curl -X POST localhost:8765/api/session/start`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			services, hub, err := opts.build(ctx)
			if err != nil {
				return err
			}
			defer services.Close()

			if addr == "" {
				addr = services.Config.API.Addr
			}
			router := api.NewRouter(api.Deps{
				Session:        services.Controller,
				Conversations:  services.Conversations,
				Usage:          services.Usage,
				Preferences:    services.KV,
				Hub:            hub,
				LockoutDefault: services.Config.Lockout.Enabled,
				Logger:         services.Logger.With("component", "api"),
			})

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go services.Run(runCtx)

			server := api.NewServer(addr, router, hub, services.Logger)
			err = server.Serve(ctx)
			services.Logger.Info("shutting down")
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8765)")
	return cmd
}
