// Package config loads the server's HCL configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Server is the top-level configuration.
//
//	listen           = "127.0.0.1:8899"
//	metrics_listen   = "127.0.0.1:9100"
//	ca_chain         = "/etc/hearth/ca_chain.pem"
//	certificate      = "/etc/hearth/server.cert.pem"
//	private_key      = "/etc/hearth/server.key.pem"
//	snapshot_path    = "/var/lib/hearth/state.db"
//	snapshot_interval = "30s"
type Server struct {
	Listen        string `hcl:"listen"`
	MetricsListen string `hcl:"metrics_listen,optional"`

	CAChain     string `hcl:"ca_chain"`
	Certificate string `hcl:"certificate"`
	PrivateKey  string `hcl:"private_key"`

	SnapshotPath     string `hcl:"snapshot_path,optional"`
	SnapshotInterval string `hcl:"snapshot_interval,optional"`
}

// Load parses the file at path and validates it.
func Load(path string) (*Server, error) {
	var cfg Server
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Listen == "" {
		return nil, fmt.Errorf("config %s: listen must be set", path)
	}
	if _, err := cfg.SnapshotEvery(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// SnapshotEvery returns the parsed snapshot interval, defaulting to 30s
// when a snapshot path is configured without one.
func (c *Server) SnapshotEvery() (time.Duration, error) {
	if c.SnapshotInterval == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.SnapshotInterval)
	if err != nil {
		return 0, fmt.Errorf("snapshot_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("snapshot_interval must be positive, got %s", c.SnapshotInterval)
	}
	return d, nil
}
