/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ssargent/ipfdb/pkg/ipf"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the store as a profile file",
	Long: `Write every stored profile, in symbol order, to a profile file.
Compression follows the file suffix. Use - to write a plain document to
stdout.

Examples:
  ipfdb export catalog.ipf.gz
  ipfdb export - --skip-removed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, rt, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		skipRemoved := rt.config.Compose.SkipRemoved
		if cmd.Flags().Changed("skip-removed") {
			skipRemoved, _ = cmd.Flags().GetBool("skip-removed")
		}
		opts := []ipf.ComposerOption{
			ipf.WithSkipRemoved(skipRemoved),
			ipf.WithComposerLogger(rt.logger),
		}

		path := args[0]
		if path == "-" {
			sw, err := ipf.NewStreamWriter(cmd.OutOrStdout(), path, opts...)
			if err != nil {
				return err
			}
			_, err = s.Export(cmd.Context(), sw.Composer())
			return errors.Join(err, sw.Close())
		}

		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		bw := bufio.NewWriter(f)

		sw, err := ipf.NewStreamWriter(bw, path, opts...)
		if err != nil {
			f.Close()
			return err
		}
		n, err := s.Export(cmd.Context(), sw.Composer())
		err = errors.Join(err, sw.Close(), bw.Flush(), f.Sync(), f.Close())
		if err != nil {
			return fmt.Errorf("export to %s failed: %w", path, err)
		}

		cmd.Printf("Exported %d profiles to %s\n", n, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().Bool("skip-removed", false, "Drop profiles of type REMOVED")
}
