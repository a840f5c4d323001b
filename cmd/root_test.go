package cmd

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingFlagsExposed(t *testing.T) {
	pf := rootCmd.PersistentFlags()
	for _, name := range []string{"v", "logtostderr"} {
		require.NotNil(t, pf.Lookup(name), "flag %s missing from command line", name)
	}

	// The cobra flag writes through to the standard flag set glog
	// reads from.
	require.NoError(t, pf.Set("v", "2"))
	defer func() { _ = pf.Set("v", "0") }()
	assert.Equal(t, "2", flag.CommandLine.Lookup("v").Value.String())
}
