package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aretw0/flowline"
	"github.com/aretw0/flowline/internal/cli"
	"github.com/aretw0/flowline/internal/presentation/tui"
	httpAdapter "github.com/aretw0/flowline/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the engine behind a JSON API: create graphs, run them, and inspect runs while they execute.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		version := strings.TrimSpace(flowline.Version)

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		streams := httpAdapter.NewStreamManager(logger)
		stack, err := cli.NewStack(ctx, cfg, logger, flowline.WithLifecycleHooks(streams.Hooks()))
		if err != nil {
			return err
		}
		defer stack.Engine.Close()

		opts := []httpAdapter.Option{
			httpAdapter.WithLogger(logger),
			httpAdapter.WithVersion(version),
			httpAdapter.WithStreams(streams),
			httpAdapter.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		}
		if stack.Gatherer != nil {
			opts = append(opts, httpAdapter.WithMetrics(stack.Gatherer))
		}

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: httpAdapter.NewHandler(stack.Engine, opts...),
		}

		if cli.IsTerminal(os.Stderr) {
			tui.PrintBanner(os.Stderr, version)
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", srv.Addr, "store", cfg.Store.Backend, "metrics", stack.Gatherer != nil)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-ctx.Done():
			logger.Info("shutting down", "signal", ctx.Signal())

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", cfg.Server.ShutdownTimeout, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			logger.Info("server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
}
