package main

import (
	"github.com/spf13/cobra"

	"github.com/rangekit/rangekit/internal/storagefs"
)

var dropTarget rangeTarget

func init() {
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "remove a range from service, blocking further maintenance on it",
		Long: `drop blocks any in-flight or future maintenance task on the range
and reports its directory for reaping. It does not delete files itself:
the directory is left for an operator or cleanup job to remove once
nothing else references it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrop()
		},
	}
	addRangeFlags(cmd.Flags(), &dropTarget)
	rootCmd.AddCommand(cmd)
}

func runDrop() error {
	rng, _, err := openRange(dropTarget, storagefs.NewOS(), false)
	if err != nil {
		return err
	}
	rng.Drop()
	printInfo("range dropped; directory pending reap: %s\n", dropTarget.Dir)
	return nil
}
