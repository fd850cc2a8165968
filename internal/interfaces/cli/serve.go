package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/lupa/internal/app"
	"github.com/turtacn/lupa/internal/config"
	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
)

// NewServeCmd builds `lupa serve`, which runs the HTTP API.
func NewServeCmd(opts *RootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(opts)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			watchConfig(opts, log)

			log.Info("starting lupa API server", logging.String("version", app.Version), logging.Int("port", cfg.Server.Port))
			return a.Serve(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

// NewWorkerCmd builds `lupa worker`, which runs the Kafka match worker.
func NewWorkerCmd(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume match requests from Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(opts)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			watchConfig(opts, log)

			log.Info("starting lupa worker", logging.String("version", app.Version), logging.Strings("brokers", cfg.Kafka.Brokers))
			return a.RunWorker(ctx)
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// watchConfig applies log level changes from the config file without a
// restart. Other sections need a restart to take effect.
func watchConfig(opts *RootOptions, log logging.Logger) {
	if opts.ConfigPath == "" || opts.LogLevel != "" {
		return
	}
	err := config.Watch(opts.ConfigPath, func(cfg *config.Config) {
		if err := logging.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("ignoring log level change", logging.Err(err))
			return
		}
		log.Info("config reloaded", logging.String("log_level", cfg.Log.Level))
	})
	if err != nil {
		log.Warn("config watch disabled", logging.Err(err))
	}
}
