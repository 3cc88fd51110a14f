/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssargent/ipfdb/pkg/codec"
	"github.com/ssargent/ipfdb/pkg/config"
	"github.com/ssargent/ipfdb/pkg/di"
	"github.com/ssargent/ipfdb/pkg/observability"
	"github.com/ssargent/ipfdb/pkg/store"
)

type contextKey string

const runtimeKey contextKey = "runtime"

// annotationCreatesConfig marks commands that may run before the config
// file named by --config exists
const annotationCreatesConfig = "creates-config"

// runtime is what PersistentPreRunE prepares for every command
type runtime struct {
	config     *config.Config
	configPath string
	logger     *zap.Logger
}

var container *di.Container

// SetContainer injects the dependency container
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ipfdb",
	Short: "ipfdb - instrument profile catalog",
	Long: `ipfdb reads, writes and serves instrument profile files: comma separated
catalogs of instrument metadata with per-type format declarations.

Files may be plain, gzip (.gz) or zip (.zip) compressed. Local paths,
file:// and http(s) URLs are accepted wherever a source is read.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, configPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		logger, err := observability.SetupLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		codec.SetCaching(cfg.Codec.Caching)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(context.WithValue(ctx, runtimeKey, &runtime{
			config:     cfg,
			configPath: configPath,
			logger:     logger,
		}))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rt, ok := cmd.Context().Value(runtimeKey).(*runtime); ok {
			_ = rt.logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: OS-specific location)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory for the store (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format: table or json")
}

// loadConfig reads the config named by --config, or the default location
// when it exists, and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	configPath, _ := cmd.Flags().GetString("config")
	explicit := configPath != ""
	if !explicit {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := config.DefaultConfig()
	if config.ConfigExists(configPath) {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, "", err
		}
		cfg = loaded
	} else if explicit && cmd.Annotations[annotationCreatesConfig] != "true" {
		return nil, "", fmt.Errorf("config file does not exist: %s", configPath)
	}

	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, configPath, nil
}

func runtimeFrom(cmd *cobra.Command) (*runtime, error) {
	rt, ok := cmd.Context().Value(runtimeKey).(*runtime)
	if !ok {
		return nil, errors.New("command runtime not initialized")
	}
	return rt, nil
}

// openStore opens the catalog store named by the effective config. The
// caller closes it.
func openStore(cmd *cobra.Command) (store.Store, *runtime, error) {
	rt, err := runtimeFrom(cmd)
	if err != nil {
		return nil, nil, err
	}
	if container == nil {
		return nil, nil, errors.New("dependency container not initialized")
	}

	s, err := container.GetStoreOpener()(store.Config{
		DataDir: rt.config.DataDir,
		Logger:  rt.logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, rt, nil
}
