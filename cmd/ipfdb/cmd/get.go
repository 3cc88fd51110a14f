package cmd

import (
	"github.com/spf13/cobra"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <symbol>",
	Short: "Show a stored profile",
	Long: `Show the non-empty fields of the profile stored under a symbol.

Example:
  ipfdb get IBM
  ipfdb get /ESH24 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		p, err := s.Get(args[0])
		if err != nil {
			return err
		}

		fields := p.NonEmptyFields()
		if jsonOutput(cmd) {
			return outputJSON(cmd.OutOrStdout(), fields)
		}
		outputFields(cmd.OutOrStdout(), fields)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
