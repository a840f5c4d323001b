package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the server answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialClient()
		if err != nil {
			return err
		}
		defer c.Close()

		data, err := c.Ping(cmd.Context(), "hello")
		if err != nil {
			return err
		}
		fmt.Println(data)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
