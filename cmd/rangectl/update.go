package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/rangekit"
)

var updateTarget rangeTarget

func init() {
	cmd := &cobra.Command{
		Use:   "update <file>",
		Short: "load a tab-separated row/family/qualifier/value file into a range",
		Long: `update reads a .tsv file, one cell per line: row, family name,
qualifier, value. Timestamp and revision are assigned at commit time.

Example:
  rangectl update data.tsv --dir ./data/users/root --schema users.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(args[0])
		},
	}
	addRangeFlags(cmd.Flags(), &updateTarget)
	rootCmd.AddCommand(cmd)
}

func runUpdate(path string) error {
	sch, err := rangekit.LoadSchemaFile(updateTarget.SchemaPath)
	if err != nil {
		return err
	}

	rng, _, err := openRange(updateTarget, storagefs.NewOS(), false)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	defer f.Close()

	var applied, rejected int
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return fmt.Errorf("update: malformed line %q: want row\\tfamily\\tqualifier\\tvalue", line)
		}
		fam, ok := sch.FamilyByName(fields[1])
		if !ok {
			rejected++
			printVerbose("rejected: unknown family %q\n", fields[1])
			continue
		}
		key := cell.Key{
			Row:             []byte(fields[0]),
			ColumnFamilyID:  fam.ID,
			ColumnQualifier: []byte(fields[2]),
			Timestamp:       cell.AutoAssign,
			Revision:        cell.AutoAssign,
			Flag:            cell.FlagInsert,
		}
		if err := rng.Add(key, []byte(fields[3])); err != nil {
			rejected++
			printVerbose("rejected: %v\n", err)
			continue
		}
		applied++
	}
	if err := scan.Err(); err != nil {
		return fmt.Errorf("update: %w", err)
	}

	printInfo("applied %d cell(s), rejected %d\n", applied, rejected)
	return nil
}
