package cmd

import (
	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <symbol>",
	Short: "Delete a stored profile",
	Long: `Delete the profile stored under a symbol.

Example:
  ipfdb delete IBM`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Delete(args[0]); err != nil {
			return err
		}

		cmd.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
