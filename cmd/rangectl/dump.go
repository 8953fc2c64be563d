package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rangekit/rangekit/internal/scan"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/internal/writer"
)

var (
	dumpTarget rangeTarget
	dumpHex    bool
	dumpOut    string
)

func init() {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "print every cell in a range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump()
		},
	}
	addRangeFlags(cmd.Flags(), &dumpTarget)
	cmd.Flags().BoolVar(&dumpHex, "hex", false, "print values as hex instead of raw text")
	cmd.Flags().StringVar(&dumpOut, "out", "", "write the dump to this path atomically instead of stdout")
	rootCmd.AddCommand(cmd)
}

type dumpedCell struct {
	Row       string `json:"row"`
	Family    uint8  `json:"family"`
	Qualifier string `json:"qualifier"`
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

func runDump() error {
	rng, _, err := openRange(dumpTarget, storagefs.NewOS(), false)
	if err != nil {
		return err
	}

	scanner := rng.CreateScanner(&scan.Spec{})
	defer scanner.Close()

	var buf bytes.Buffer
	var rows []dumpedCell
	for {
		c, ok := scanner.Next()
		if !ok {
			break
		}
		value := string(c.Value)
		if dumpHex {
			value = hex.EncodeToString(c.Value)
		}
		dc := dumpedCell{
			Row:       string(c.Key.Row),
			Family:    c.Key.ColumnFamilyID,
			Qualifier: string(c.Key.ColumnQualifier),
			Timestamp: c.Key.Timestamp,
			Value:     value,
		}
		if jsonOut || dumpOut != "" {
			rows = append(rows, dc)
			continue
		}
		fmt.Printf("%s\t%d\t%s\t%d\t%s\n", dc.Row, dc.Family, dc.Qualifier, dc.Timestamp, dc.Value)
	}

	if dumpOut != "" {
		if err := json.NewEncoder(&buf).Encode(rows); err != nil {
			return fmt.Errorf("encode dump: %w", err)
		}
		sink := &writer.FileWriter{Path: dumpOut}
		if err := sink.WriteAll(buf.Bytes()); err != nil {
			return fmt.Errorf("write dump to %s: %w", dumpOut, err)
		}
		printInfo("dump written to %s (%d cells)", dumpOut, len(rows))
		return nil
	}

	if jsonOut {
		return printJSON(rows)
	}
	return nil
}
