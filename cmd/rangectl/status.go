package main

import (
	"github.com/spf13/cobra"

	"github.com/rangekit/rangekit/internal/storagefs"
)

var statusTarget rangeTarget

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "print a range's size and state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
	addRangeFlags(cmd.Flags(), &statusTarget)
	rootCmd.AddCommand(cmd)
}

type rangeStatus struct {
	Table         string `json:"table"`
	Range         string `json:"range"`
	State         string `json:"state"`
	TotalBytes    int64  `json:"total_bytes"`
	InMemoryBytes int64  `json:"in_memory_bytes"`
	MaxStoreCount int    `json:"max_store_count"`
}

func runStatus() error {
	rng, _, err := openRange(statusTarget, storagefs.NewOS(), false)
	if err != nil {
		return err
	}

	st := rangeStatus{
		Table:         rng.Table().String(),
		Range:         rng.Spec().String(),
		State:         rng.State().String(),
		TotalBytes:    rng.TotalSizeBytes(),
		InMemoryBytes: rng.BytesInMemory(),
		MaxStoreCount: rng.MaxStoreCount(),
	}

	if jsonOut {
		return printJSON(st)
	}
	printInfo("table:       %s\n", st.Table)
	printInfo("range:       %s\n", st.Range)
	printInfo("state:       %s\n", st.State)
	printInfo("total bytes: %d\n", st.TotalBytes)
	printInfo("in memory:   %d\n", st.InMemoryBytes)
	printInfo("stores:      %d\n", st.MaxStoreCount)
	return nil
}
