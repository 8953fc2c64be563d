package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rangekit/rangekit/internal/storagefs"
)

var loadTarget rangeTarget

func init() {
	cmd := newLoadCmd()
	addRangeFlags(cmd.Flags(), &loadTarget)
	rootCmd.AddCommand(cmd)
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "create a new range on disk in the steady state",
		Long: `load initializes a fresh range directory: one access group per
schema access-group, an empty RSML log, and a persisted entity record.

Example:
  rangectl load --table users --end "" --dir ./data/users/root --schema users.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad()
		},
	}
}

func runLoad() error {
	if loadTarget.Dir == "" || loadTarget.SchemaPath == "" || loadTarget.Table == "" {
		return fmt.Errorf("load: --dir, --schema and --table are required")
	}
	printVerbose("creating range %s (%s,%s]\n", loadTarget.Table, loadTarget.Start, loadTarget.End)

	rng, _, err := openRange(loadTarget, storagefs.NewOS(), true)
	if err != nil {
		return err
	}
	printInfo("range created: %s %s\n", rng.Table(), rng.Spec())
	return nil
}
