package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [path-or-glob]",
	Short: "Print the value of one file, or of every file a glob matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialClient()
		if err != nil {
			return err
		}
		defer c.Close()

		target := args[0]
		if strings.ContainsAny(target, "*?") {
			files, err := c.GetMatchingFiles(cmd.Context(), target)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Printf("%s\t%s\n", f.Path, f.Value)
			}
			return nil
		}
		value, err := c.GetFile(cmd.Context(), target)
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set [path-or-glob] [value]",
	Short: "Set one file, or every file a glob matches",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialClient()
		if err != nil {
			return err
		}
		defer c.Close()

		target, value := args[0], args[1]
		var touched []string
		if strings.ContainsAny(target, "*?") {
			changes, err := c.SetMatchingFiles(cmd.Context(), target, value)
			if err != nil {
				return err
			}
			for _, ch := range changes {
				touched = append(touched, ch.Path)
			}
		} else {
			changes, err := c.SetFile(cmd.Context(), target, value)
			if err != nil {
				return err
			}
			for _, ch := range changes {
				touched = append(touched, ch.Path)
			}
		}
		fmt.Printf("touched %d: %s\n", len(touched), strings.Join(touched, ", "))
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialClient()
		if err != nil {
			return err
		}
		defer c.Close()

		names, err := c.ListDirectory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [parent-path] [name]",
	Short: "Remove an empty directory, file, or formula",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialClient()
		if err != nil {
			return err
		}
		defer c.Close()

		_, err = c.RemoveNode(cmd.Context(), args[0], args[1])
		return err
	},
}

func init() {
	rootCmd.AddCommand(getCmd, setCmd, lsCmd, rmCmd)
}
