// Package cmd holds the hearth command line.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hearthgrid/hearth/internal/client"
)

var (
	serverAddr string
	certFile   string
	keyFile    string
	caFile     string
	serverName string
)

var rootCmd = &cobra.Command{
	Use:   "hearth",
	Short: "Hearth: a reactive tree store for home automation",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// glog refuses to log until its flag set is marked parsed.
		_ = flag.CommandLine.Parse(nil)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	// Expose glog's flags (-v, -logtostderr, ...) on the command line.
	pf.AddGoFlagSet(flag.CommandLine)
	pf.StringVar(&serverAddr, "addr", "127.0.0.1:8899", "server address")
	pf.StringVar(&certFile, "cert", "", "client certificate (PEM)")
	pf.StringVar(&keyFile, "key", "", "client private key (PEM)")
	pf.StringVar(&caFile, "ca", "", "CA chain the server is verified against (PEM)")
	pf.StringVar(&serverName, "server-name", "hearth", "expected server certificate name")
}

// dialClient connects with the shared TLS flags.
func dialClient() (*client.Client, error) {
	if certFile == "" || keyFile == "" || caFile == "" {
		return nil, fmt.Errorf("--cert, --key, and --ca are required")
	}
	tlsConf, err := client.TLSConfig(certFile, keyFile, caFile, serverName)
	if err != nil {
		return nil, err
	}
	return client.Dial(serverAddr, tlsConf)
}

// Execute runs the root command with a signal-aware context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
