package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return outputJSON(cmd.OutOrStdout(), stats)
		}

		w := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Profiles:\t%d\n", stats.Profiles)
		fmt.Fprintf(tw, "Imports:\t%d\n", stats.Imports)
		fmt.Fprintf(tw, "Disk size:\t%.2f MB\n", stats.DiskSizeMB)
		fmt.Fprintf(tw, "CRC errors:\t%d\n", stats.CRCErrors)
		if stats.LastImport != nil {
			fmt.Fprintf(tw, "Last import:\t%s (%s)\n", stats.LastImport.Source, stats.LastImport.ID)
		}
		tw.Flush()

		if len(stats.ByType) > 0 {
			fmt.Fprintln(w)
			outputCounts(w, "TYPE", stats.ByType)
		}
		for _, warning := range stats.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warning)
		}
		return nil
	},
}

// importsCmd represents the imports command
var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "List past imports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		history, err := s.Imports(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return outputJSON(cmd.OutOrStdout(), history)
		}
		outputImports(cmd.OutOrStdout(), history)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(importsCmd)

	importsCmd.Flags().IntP("limit", "n", 20, "Maximum number of imports to show, 0 for all")
}
