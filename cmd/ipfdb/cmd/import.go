/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssargent/ipfdb/pkg/ipf"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <file|url>",
	Short: "Import a profile file into the store",
	Long: `Apply every profile of a file to the store. Profiles replace stored
profiles with the same symbol, REMOVED profiles delete their symbol. Use
--name to choose the container when the source has no telling suffix.

Examples:
  ipfdb import profiles.ipf.zip
  ipfdb import https://example.com/profiles.ipf.gz
  ipfdb import ./download --name profiles.ipf.gz`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, rt, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		rc, name, err := ipf.Fetch(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer rc.Close()
		if override, _ := cmd.Flags().GetString("name"); override != "" {
			name = override
		}

		ctx := cmd.Context()
		if rt.config.Source.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, rt.config.Source.Timeout)
			defer cancel()
		}

		res, err := s.ImportStream(ctx, rc, name)
		if res != nil {
			if jsonOutput(cmd) {
				if jerr := outputJSON(cmd.OutOrStdout(), res); jerr != nil {
					return jerr
				}
			} else {
				outputImportResult(cmd.OutOrStdout(), res)
			}
		}
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("name", "", "Name used to detect compression (default: source name)")
}
