package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hearthgrid/hearth/internal/layout"
	"github.com/hearthgrid/hearth/internal/lint"
)

var lintCmd = &cobra.Command{
	Use:   "lint [layout.hcl]",
	Short: "Check a house layout without a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := layout.Load(args[0])
		if err != nil {
			return err
		}
		diags := lint.Layout(l)
		for _, d := range diags {
			fmt.Println(d)
		}
		if len(diags) > 0 {
			return fmt.Errorf("%d problem(s)", len(diags))
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lintCmd)
}
