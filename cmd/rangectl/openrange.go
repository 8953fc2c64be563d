package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/rangekit/rangekit/internal/rrange"
	"github.com/rangekit/rangekit/internal/rsml"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/rangekit"
	"github.com/rangekit/rangekit/pkg/schema"
)

// rangeTarget names the on-disk location and identity of a range every
// subcommand that operates on existing data needs: the directory
// holding its access groups, the schema describing them, and the table
// and boundary it belongs to.
type rangeTarget struct {
	Dir        string
	SchemaPath string
	Table      string
	Generation uint32
	Start      string
	End        string
}

func (t rangeTarget) spec() schema.RangeSpec {
	end := []byte(t.End)
	if t.End == "" {
		end = schema.EndRowSentinel
	}
	var start []byte
	if t.Start != "" {
		start = []byte(t.Start)
	}
	return schema.RangeSpec{StartRow: start, EndRow: end}
}

// openRange opens (or, if create is true, initializes) the range named
// by t, returning it ready for Add/CreateScanner/Compact calls.
func openRange(t rangeTarget, fs storagefs.FS, create bool) (*rrange.Range, *rsml.Log, error) {
	sch, err := rangekit.LoadSchemaFile(t.SchemaPath)
	if err != nil {
		return nil, nil, err
	}

	if err := fs.MkdirAll(t.Dir); err != nil {
		return nil, nil, fmt.Errorf("rangectl: create range dir: %w", err)
	}

	rsmlLog, err := rsml.Open(fs, filepath.Join(t.Dir, "rsml.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("rangectl: open rsml: %w", err)
	}

	opts := rrange.Options{
		Table:  schema.TableIdentifier{ID: t.Table, Generation: t.Generation},
		Spec:   t.spec(),
		Schema: sch,
		FS:     fs,
		Dir:    t.Dir,
		Log:    rsmlLog,
	}

	if create {
		rng, err := rrange.New(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("rangectl: create range: %w", err)
		}
		if err := rng.Persist(); err != nil {
			return nil, nil, fmt.Errorf("rangectl: persist range: %w", err)
		}
		return rng, rsmlLog, nil
	}

	meta := schema.RangeMeta{Table: opts.Table, Spec: opts.Spec, State: schema.StateSteady}
	rng, err := rrange.Recover(opts, meta)
	if err != nil {
		return nil, nil, fmt.Errorf("rangectl: open range: %w", err)
	}
	return rng, rsmlLog, nil
}

func addRangeFlags(flags *pflag.FlagSet, t *rangeTarget) {
	flags.StringVar(&t.Dir, "dir", "", "range storage directory")
	flags.StringVar(&t.SchemaPath, "schema", "", "path to the range's table schema (JSON)")
	flags.StringVar(&t.Table, "table", "", "table id")
	flags.Uint32Var(&t.Generation, "generation", 0, "table schema generation")
	flags.StringVar(&t.Start, "start", "", "range start row (exclusive); empty means no lower bound")
	flags.StringVar(&t.End, "end", "", "range end row (inclusive); empty means the table's final range")
}
