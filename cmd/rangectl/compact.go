package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rangekit/rangekit/internal/rrange"
	"github.com/rangekit/rangekit/internal/storagefs"
)

var (
	compactTarget rangeTarget
	compactKind   string
)

func init() {
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "run a compaction on a range",
		Long: `compact runs minor, major, or merging compaction on every access
group in a range.

Example:
  rangectl compact --dir ./data/users/root --schema users.json --kind major`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact()
		},
	}
	addRangeFlags(cmd.Flags(), &compactTarget)
	cmd.Flags().StringVar(&compactKind, "kind", "minor", "minor, major, or merging")
	rootCmd.AddCommand(cmd)
}

func parseCompactKind(s string) (rrange.CompactKind, error) {
	switch s {
	case "minor":
		return rrange.CompactMinor, nil
	case "major":
		return rrange.CompactMajor, nil
	case "merging":
		return rrange.CompactMerging, nil
	default:
		return 0, fmt.Errorf("compact: unknown kind %q (want minor, major, merging)", s)
	}
}

func runCompact() error {
	kind, err := parseCompactKind(compactKind)
	if err != nil {
		return err
	}

	rng, _, err := openRange(compactTarget, storagefs.NewOS(), false)
	if err != nil {
		return err
	}

	if err := rng.Compact(kind); err != nil {
		return fmt.Errorf("compact: %w", err)
	}
	printInfo("compaction (%s) complete\n", compactKind)
	return nil
}
