package pipeline

import (
	"fmt"

	"github.com/rangekit/rangekit/internal/commitlog"
	"github.com/rangekit/rangekit/internal/rrange"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
)

// ErrUnknownTable is returned when a batch names a table the catalog
// doesn't recognize.
var ErrUnknownTable = fmt.Errorf("pipeline: unknown table")

// ErrUnknownColumnFamily is returned by the qualify stage when a
// mutation names a column family not present in the table's schema and
// the batch did not set IgnoreUnknownCFs.
var ErrUnknownColumnFamily = fmt.Errorf("pipeline: unknown column family")

// ErrNoRange is returned when a mutation's row has no covering range
// (the router found nothing).
var ErrNoRange = fmt.Errorf("pipeline: no covering range")

// Mutation is one client cell write, addressed by row within Batch's
// table.
type Mutation struct {
	Key   cell.Key
	Value []byte
}

// Batch is an UpdateContext: one client update(table, count, buffer,
// flags) call, or the coalesced result of several group-committed
// ones.
type Batch struct {
	Table            schema.TableIdentifier
	Mutations        []Mutation
	Sync             bool
	IgnoreUnknownCFs bool

	// Respond is invoked exactly once, from the respond stage, with the
	// batch's outcome. Submit does not block on it.
	Respond func(Result)
}

// bytesEstimate approximates the batch's commit-log footprint for
// back-pressure accounting.
func (b Batch) bytesEstimate() int64 {
	var n int64
	for _, m := range b.Mutations {
		n += int64(len(m.Key.Row) + len(m.Key.ColumnQualifier) + len(m.Value) + 32)
	}
	return n
}

// Rejection reports one mutation the pipeline declined to apply.
type Rejection struct {
	Offset int
	Err    error
}

// Result is delivered to Batch.Respond once every accepted mutation in
// the batch has reached the cell cache.
type Result struct {
	Rejected []Rejection
}

// TableInfo is the catalog's answer to a table lookup: schema plus
// whether it is a system/meta table (which forces fsync regardless of
// the caller's Sync flag, per spec.md §4.9).
type TableInfo struct {
	Schema *schema.Schema
	IsMeta bool
}

// Catalog resolves a table id to its current schema. The request
// surface (internal/rsrv) supplies the real implementation backed by
// the table schema cache; it is responsible for refreshing a stale
// generation before returning.
type Catalog interface {
	TableInfo(table schema.TableIdentifier) (TableInfo, error)
}

// RangeTarget is the destination a router resolves a row to: the live
// Range plus the commit log it appends through.
type RangeTarget struct {
	Range     *rrange.Range
	CommitLog *commitlog.Log
}

// Router locates the range owning (table, row). The request surface
// supplies an implementation backed by the server's in-memory range
// map; a row with no covering range returns ErrNoRange.
type Router interface {
	RouteRange(table schema.TableIdentifier, row []byte) (*RangeTarget, error)
}
