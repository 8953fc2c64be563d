// Command rangeserverd runs a single range-server process: it owns a
// working set of ranges under --data-dir, serves updates and scans
// through the in-process request surface, and periodically sweeps
// them for maintenance.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rangekit/rangekit/pkg/rangekit"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	v := viper.New()
	rootCmd := &cobra.Command{
		Use:     "rangeserverd",
		Short:   "Run a rangekit range-server process",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rangekit.Load(v)
			if err != nil {
				return err
			}
			ctx, err := rangekit.New(cfg)
			if err != nil {
				return err
			}
			defer ctx.Close()
			return runServer(cmd.Context(), ctx)
		},
	}

	if err := rangekit.BindFlags(rootCmd.PersistentFlags(), v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
