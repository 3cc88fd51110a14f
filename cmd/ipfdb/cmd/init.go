/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ssargent/ipfdb/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an ipfdb configuration file",
	Long: `Create an ipfdb configuration file with default settings.

Examples:
  ipfdb init
  ipfdb init --config ./ipfdb.yaml --data-dir ./data
  ipfdb init --source https://example.com/profiles.ipf.zip --force`,
	Annotations: map[string]string{annotationCreatesConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := runtimeFrom(cmd)
		if err != nil {
			return err
		}
		source, _ := cmd.Flags().GetString("source")
		force, _ := cmd.Flags().GetBool("force")

		if config.ConfigExists(rt.configPath) && !force {
			cmd.Printf("Configuration already exists at %s. Use --force to overwrite.\n", rt.configPath)
			return nil
		}

		cfg, err := config.BootstrapConfig(rt.configPath, rt.config.DataDir, source)
		if err != nil {
			return err
		}

		cmd.Printf("✅ Configuration created at %s\n", rt.configPath)
		cmd.Printf("Data directory: %s\n", cfg.DataDir)
		if cfg.Source.URL != "" {
			cmd.Printf("Catalog source: %s\n", cfg.Source.URL)
		}
		cmd.Printf("\nYou can now start the server with:\n")
		cmd.Printf("  ipfdb serve --config %s\n", rt.configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("source", "", "Catalog source path or URL to refresh from")
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
}
