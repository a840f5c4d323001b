package cmd

import (
	"net/http"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hearthgrid/hearth/internal/config"
	"github.com/hearthgrid/hearth/internal/engine"
	"github.com/hearthgrid/hearth/internal/server"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hearth server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		reg := prometheus.NewRegistry()
		eng := engine.New(engine.WithMetrics(engine.NewMetrics(reg)))

		snapshotDone := make(chan struct{})
		close(snapshotDone)
		if cfg.SnapshotPath != "" {
			store, err := engine.OpenSnapshotStore(cfg.SnapshotPath)
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.Load()
			if err != nil {
				return err
			}
			if err := eng.Restore(rows); err != nil {
				return err
			}
			glog.Infof("restored %d nodes from %s", len(rows), cfg.SnapshotPath)

			every, err := cfg.SnapshotEvery()
			if err != nil {
				return err
			}
			snapshotDone = make(chan struct{})
			go func() {
				defer close(snapshotDone)
				store.RunPeriodic(ctx, eng, every)
			}()
		}

		if cfg.MetricsListen != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			go func() {
				if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
					glog.Errorf("metrics listener: %v", err)
				}
			}()
		}

		tlsConf, err := server.TLSConfig(cfg.Certificate, cfg.PrivateKey, cfg.CAChain)
		if err != nil {
			return err
		}
		serveErr := server.New(eng).ListenAndServe(ctx, cfg.Listen, tlsConf)

		// The final shutdown snapshot must land before the process
		// exits.
		<-snapshotDone
		return serveErr
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "/etc/hearth/hearth.hcl", "config file")
	rootCmd.AddCommand(serveCmd)
}
