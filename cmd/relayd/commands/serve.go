package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"msgrelay/internal/app"
)

// serve: run the relay until SIGINT or SIGTERM.
func serveCmd() *cobra.Command {
	var (
		port     int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return err
				}
			} else {
				// A local .env is optional.
				_ = godotenv.Load()
			}

			cfg, err := app.FromEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			log := app.NewLogger(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return app.New(cfg, log).Run(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 3002, "listen port (overrides PORT)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "error|warn|info|debug (overrides LOG_LEVEL)")
	return cmd
}
