package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Generate a fresh identity key",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := newIdentity()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}
