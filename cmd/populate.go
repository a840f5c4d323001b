package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hearthgrid/hearth/internal/layout"
)

var populateCmd = &cobra.Command{
	Use:   "populate [layout.hcl]",
	Short: "Seed a server from an HCL house layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := layout.Load(args[0])
		if err != nil {
			return err
		}
		c, err := dialClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := l.Apply(cmd.Context(), c); err != nil {
			return err
		}
		fmt.Println("layout applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(populateCmd)
}
