/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/ipfdb/pkg/config"
)

// upCmd represents the up command
var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Bootstrap and start the ipfdb server",
	Long: `Create the configuration file if it is missing, then start the REST
API server. This is the recommended way to get ipfdb running.

Examples:
  ipfdb up
  ipfdb up --data-dir ./mydata --port 9000
  ipfdb up --config ./custom-config.yaml --source https://example.com/profiles.ipf.zip`,
	Annotations: map[string]string{annotationCreatesConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := runtimeFrom(cmd)
		if err != nil {
			return err
		}

		if err := bootstrapIfMissing(cmd, rt); err != nil {
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
	rootCmd.AddCommand(upCmd)

	upCmd.Flags().IntP("port", "p", 8080, "Port to listen on (overrides config)")
	upCmd.Flags().String("bind", "127.0.0.1", "Address to bind server to (overrides config)")
	upCmd.Flags().String("source", "", "Catalog source written to a new config")
}

// bootstrapIfMissing writes the effective config to rt.configPath when no
// file exists there yet
func bootstrapIfMissing(cmd *cobra.Command, rt *runtime) error {
	if config.ConfigExists(rt.configPath) {
		cmd.Printf("Loaded configuration from %s\n", rt.configPath)
		return nil
	}

	source, _ := cmd.Flags().GetString("source")
	cfg, err := config.BootstrapConfig(rt.configPath, rt.config.DataDir, source)
	if err != nil {
		return err
	}
	rt.config.Source.URL = cfg.Source.URL

	cmd.Printf("Configuration created at %s\n", rt.configPath)
	return nil
}
