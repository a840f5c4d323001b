package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hearthgrid/hearth/api"
)

var watchCmd = &cobra.Command{
	Use:   "watch [glob]",
	Short: "Print every changeset matching a glob until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialClient()
		if err != nil {
			return err
		}
		defer c.Close()

		_, err = c.Subscribe(cmd.Context(), args[0], func(changes []api.PathValue) {
			for _, ch := range changes {
				fmt.Printf("%s\t%s\n", ch.Path, ch.Value)
			}
		})
		if err != nil {
			return err
		}
		<-cmd.Context().Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
