package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sfkse/rewriteit/app"
	"github.com/sfkse/rewriteit/app/config"
	"github.com/sfkse/rewriteit/app/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "rewordit",
		Short:        "RewordIt - Slack text rewriting assistant",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the global logger.
func setup() (*config.Config, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	sink := logging.Setup(cfg.Logs)
	return cfg, func() { sink.Close() }, nil
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLogs, err := setup()
			if err != nil {
				return err
			}
			defer closeLogs()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, cleanup, err := app.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if addr == "" {
				addr = "0.0.0.0:" + cfg.HTTP.Port
			}
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           app.NewRouter(srv),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Bool("tls", cfg.HTTP.UseSSL).Msg("server listening")
				if cfg.HTTP.UseSSL {
					errCh <- httpServer.ListenAndServeTLS(cfg.HTTP.SSLCertPath, cfg.HTTP.SSLKeyPath)
				} else {
					errCh <- httpServer.ListenAndServe()
				}
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				log.Info().Msg("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default 0.0.0.0:$API_PORT)")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process rewrite tasks from SQS",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLogs, err := setup()
			if err != nil {
				return err
			}
			defer closeLogs()

			if cfg.Queue.URL == "" {
				return errors.New("QUEUE_URL environment variable is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			processor, err := app.BuildProcessor(ctx, cfg, st)
			if err != nil {
				return err
			}
			client, err := app.NewSQSClient(ctx)
			if err != nil {
				return err
			}

			worker := app.NewSQSWorker(client, cfg.Queue.URL, processor, cfg.Queue.TaskTimeout)
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLogs, err := setup()
			if err != nil {
				return err
			}
			defer closeLogs()

			st, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			log.Info().Str("driver", st.Driver()).Msg("migrations applied")
			return st.Close()
		},
	}
}
