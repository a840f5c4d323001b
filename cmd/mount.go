package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hearthgrid/hearth/internal/nfsgate"
)

var mountWritable bool

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Mount the live tree as a filesystem over NFS",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mountPoint := args[0]

		c, err := dialClient()
		if err != nil {
			return err
		}
		defer c.Close()

		fs := nfsgate.NewTreeFS(cmd.Context(), c)
		if mountWritable {
			fs.SetWritable()
		}

		srv, err := nfsgate.NewServer(fs)
		if err != nil {
			return err
		}
		defer srv.Close()

		if err := nfsgate.Mount(srv.Port(), mountPoint, mountWritable); err != nil {
			return err
		}
		fmt.Printf("mounted at %s (nfs port %d)\n", mountPoint, srv.Port())

		<-cmd.Context().Done()
		return nfsgate.Unmount(mountPoint)
	},
}

func init() {
	mountCmd.Flags().BoolVarP(&mountWritable, "writable", "w", false, "allow writes through the mount")
	rootCmd.AddCommand(mountCmd)
}
