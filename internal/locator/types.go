package locator

import (
	"context"

	"github.com/rangekit/rangekit/pkg/schema"
)

// metadataTable is the well-known METADATA table id (spec.md §4.11
// "root range (for the METADATA table itself)").
var metadataTable = schema.TableIdentifier{ID: "0/0"}

// LockService reads the current host serving the root range. The real
// implementation talks to whatever coordination service holds that
// assignment; tests supply a stub.
type LockService interface {
	ReadRoot(ctx context.Context) (host string, err error)
}

// MetadataRow is one row scanned out of a METADATA range: the row key
// is `<table_id>:<end_row>` and the row's columns name the range's
// current bounds, its serving host, and its store inventory (spec.md
// §4.11 "StartRow, Location, Files:<ag>, BlockCount:<ag>").
type MetadataRow struct {
	Range      schema.RangeSpec
	Location   string
	Files      map[string][]string
	BlockCount map[string]uint64
}

// MetadataScanner scans the METADATA range hosted at host for the row
// with the smallest key greater than or equal to `<table>:<row>`
// (spec.md §4.11 step 2). table names whose row-space is being
// scanned — metadataTable itself when resolving which second-level
// METADATA range to use, or a user table id when resolving that
// table's actual range location.
type MetadataScanner interface {
	ScanMetadataRow(ctx context.Context, host string, table schema.TableIdentifier, row []byte) (MetadataRow, error)
}

// metaRowKey renders the METADATA row key a scan looks up: the byte
// concatenation of the table id, a separator, and the row.
func metaRowKey(table schema.TableIdentifier, row []byte) []byte {
	key := make([]byte, 0, len(table.ID)+1+len(row))
	key = append(key, table.ID...)
	key = append(key, ':')
	key = append(key, row...)
	return key
}
