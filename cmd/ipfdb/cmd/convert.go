/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssargent/ipfdb/pkg/ipf"
)

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert <input> <output>",
	Short: "Re-encode a profile file",
	Long: `Read every profile from input and write them to output. Compression of
both sides follows the file suffix (.gz, .zip or plain). Use - as output to
write a plain document to stdout.

Examples:
  ipfdb convert profiles.ipf.zip profiles.ipf.gz
  ipfdb convert https://example.com/profiles.ipf.gz sorted.ipf --sort --skip-removed`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := runtimeFrom(cmd)
		if err != nil {
			return err
		}
		input, output := args[0], args[1]

		sortProfiles := rt.config.Compose.Sort
		if cmd.Flags().Changed("sort") {
			sortProfiles, _ = cmd.Flags().GetBool("sort")
		}
		skipRemoved := rt.config.Compose.SkipRemoved
		if cmd.Flags().Changed("skip-removed") {
			skipRemoved, _ = cmd.Flags().GetBool("skip-removed")
		}

		profiles, err := ipf.ReadURL(cmd.Context(), input, ipf.WithParserLogger(rt.logger))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", input, err)
		}
		if sortProfiles {
			ipf.SortProfiles(profiles)
		}

		opts := []ipf.ComposerOption{
			ipf.WithSkipRemoved(skipRemoved),
			ipf.WithComposerLogger(rt.logger),
		}
		if output == "-" {
			err = ipf.WriteAll(cmd.OutOrStdout(), output, profiles, opts...)
		} else {
			err = ipf.WriteFile(output, profiles, opts...)
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}

		rt.logger.Info("converted profiles",
			zap.String("input", input),
			zap.String("output", output),
			zap.Int("profiles", len(profiles)))
		if output != "-" {
			cmd.Printf("Converted %d profiles from %s to %s\n", len(profiles), input, output)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().Bool("sort", false, "Sort profiles by type, symbol and contract fields")
	convertCmd.Flags().Bool("skip-removed", false, "Drop profiles of type REMOVED")
}
