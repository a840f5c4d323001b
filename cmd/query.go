package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [selector]",
	Short: "Select nodes with a JSONPath selector",
	Long: `Select nodes with a JSONPath selector over the tree projection.
Attributes appear as string fields; _name and _path are reserved.

  hearth query '$..[?(@._name == "motion" && @.state == "on")]'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialClient()
		if err != nil {
			return err
		}
		defer c.Close()

		nodes, err := c.Query(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, node := range nodes {
			fmt.Println(node.Path)
			keys := make([]string, 0, len(node.Attrs))
			for k := range node.Attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %s = %s\n", k, node.Attrs[k])
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
