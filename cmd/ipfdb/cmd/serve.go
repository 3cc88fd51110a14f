/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssargent/ipfdb/pkg/api"
	"github.com/ssargent/ipfdb/pkg/refresh"
	"github.com/ssargent/ipfdb/pkg/store"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Serve the catalog over HTTP. When the config names a source, the
catalog is imported at startup and refreshed on its schedule or, for local
files with watch enabled, whenever the file changes.

Examples:
  ipfdb serve
  ipfdb serve --port 9000 --bind 0.0.0.0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := runtimeFrom(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			rt.config.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("bind") {
			rt.config.Bind, _ = cmd.Flags().GetString("bind")
		}
		if err := rt.config.Validate(); err != nil {
			return err
		}
		return serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides config)")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind server to (overrides config)")
}

// serve runs the API server until SIGINT or SIGTERM
func serve(cmd *cobra.Command) error {
	s, rt, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var refresher api.Refresher
	if rt.config.Source.URL != "" {
		r, err := startRefresher(ctx, s, rt)
		if err != nil {
			return err
		}
		defer r.Stop()
		refresher = r
	}

	cfg := rt.config
	cmd.Printf("Starting ipfdb server on %s:%d\n", cfg.Bind, cfg.Port)
	cmd.Printf("Data directory: %s\n", cfg.DataDir)

	starter := container.GetServerFactory().CreateServerStarter()
	err = starter.StartServer(ctx, s, refresher, api.ServerConfig{
		Port:        cfg.Port,
		Bind:        cfg.Bind,
		APIKey:      cfg.APIKey,
		SkipRemoved: cfg.Compose.SkipRemoved,
		Logger:      rt.logger,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// startRefresher imports the configured source once and keeps it fresh. A
// failed first import is logged, the server still starts with what the
// store already holds.
func startRefresher(ctx context.Context, s store.Store, rt *runtime) (*refresh.Refresher, error) {
	r, err := container.GetRefresherFactory()(s, rt.config.Source, refresh.WithLogger(rt.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to configure source refresh: %w", err)
	}

	if _, err := r.RefreshNow(ctx); err != nil {
		rt.logger.Warn("initial import failed",
			zap.String("source", rt.config.Source.URL),
			zap.Error(err))
	}

	if err := r.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start source refresh: %w", err)
	}
	return r, nil
}
