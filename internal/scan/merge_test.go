package scan

import (
	"testing"

	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	cells []cell.Cell
	pos   int
}

func (s *sliceSource) Peek() (cell.Cell, bool) {
	if s.pos >= len(s.cells) {
		return cell.Cell{}, false
	}
	return s.cells[s.pos], true
}
func (s *sliceSource) Advance() {
	if s.pos < len(s.cells) {
		s.pos++
	}
}
func (s *sliceSource) Close() error { return nil }

func mkCell(row string, cf uint8, cq string, ts int64, flag cell.Flag, value string) cell.Cell {
	return cell.Cell{
		Key: cell.Key{
			Row: []byte(row), ColumnFamilyID: cf, ColumnQualifier: []byte(cq),
			Timestamp: ts, Revision: ts, Flag: flag,
		},
		Value: []byte(value),
	}
}

func collect(m *MergeScanner) []cell.Cell {
	var out []cell.Cell
	for {
		c, ok := m.Next()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

func TestMergeOrdersAcrossSources(t *testing.T) {
	s1 := &sliceSource{cells: []cell.Cell{mkCell("b", 1, "q", 5, cell.FlagInsert, "v1")}}
	s2 := &sliceSource{cells: []cell.Cell{mkCell("a", 1, "q", 5, cell.FlagInsert, "v2")}}
	m := NewMergeScanner([]Source{s1, s2}, &Spec{})
	got := collect(m)
	require.Len(t, got, 2)
	require.Equal(t, "a", string(got[0].Key.Row))
	require.Equal(t, "b", string(got[1].Key.Row))
}

func TestMaxVersionsLimitsPerColumn(t *testing.T) {
	s := &sliceSource{cells: []cell.Cell{
		mkCell("a", 1, "q", 30, cell.FlagInsert, "v3"),
		mkCell("a", 1, "q", 20, cell.FlagInsert, "v2"),
		mkCell("a", 1, "q", 10, cell.FlagInsert, "v1"),
	}}
	m := NewMergeScanner([]Source{s}, &Spec{MaxVersions: 2})
	got := collect(m)
	require.Len(t, got, 2)
	require.Equal(t, "v3", string(got[0].Value))
	require.Equal(t, "v2", string(got[1].Value))
}

func TestDeleteCellSuppressesOlderVersions(t *testing.T) {
	s := &sliceSource{cells: []cell.Cell{
		mkCell("a", 1, "q", 30, cell.FlagInsert, "v3"),
		mkCell("a", 1, "q", 20, cell.FlagDeleteCell, ""),
		mkCell("a", 1, "q", 10, cell.FlagInsert, "v1"),
	}}
	m := NewMergeScanner([]Source{s}, &Spec{})
	got := collect(m)
	require.Len(t, got, 1)
	require.Equal(t, "v3", string(got[0].Value))
}

func TestDeleteRowSuppressesWholeRow(t *testing.T) {
	s := &sliceSource{cells: []cell.Cell{
		mkCell("a", 1, "q", 30, cell.FlagInsert, "v3"),
		mkCell("a", 1, "q", 20, cell.FlagDeleteRow, ""),
		mkCell("a", 2, "other", 10, cell.FlagInsert, "v1"),
	}}
	m := NewMergeScanner([]Source{s}, &Spec{})
	got := collect(m)
	require.Len(t, got, 1)
	require.Equal(t, "v3", string(got[0].Value))
}

func TestColumnSetFilter(t *testing.T) {
	s := &sliceSource{cells: []cell.Cell{
		mkCell("a", 1, "q", 10, cell.FlagInsert, "keep"),
		mkCell("a", 2, "q", 10, cell.FlagInsert, "drop"),
	}}
	m := NewMergeScanner([]Source{s}, &Spec{Columns: map[uint8]bool{1: true}})
	got := collect(m)
	require.Len(t, got, 1)
	require.Equal(t, "keep", string(got[0].Value))
}

func TestRowLimit(t *testing.T) {
	s := &sliceSource{cells: []cell.Cell{
		mkCell("a", 1, "q", 10, cell.FlagInsert, "va"),
		mkCell("b", 1, "q", 10, cell.FlagInsert, "vb"),
		mkCell("c", 1, "q", 10, cell.FlagInsert, "vc"),
	}}
	m := NewMergeScanner([]Source{s}, &Spec{RowLimit: 2})
	got := collect(m)
	require.Len(t, got, 2)
}

func TestColumnPredicateExactValue(t *testing.T) {
	s := &sliceSource{cells: []cell.Cell{
		mkCell("a", 1, "q", 10, cell.FlagInsert, "match"),
		mkCell("a", 1, "q", 5, cell.FlagInsert, "nomatch"),
	}}
	pred := ColumnPredicate{FamilyID: 1, Op: OpValueExact, Value: []byte("match")}
	require.NoError(t, pred.Compile())
	m := NewMergeScanner([]Source{s}, &Spec{ColumnPredicates: []ColumnPredicate{pred}, MaxVersions: 10})
	got := collect(m)
	require.Len(t, got, 1)
	require.Equal(t, "match", string(got[0].Value))
}

func TestTTLExpiry(t *testing.T) {
	s := &sliceSource{cells: []cell.Cell{
		mkCell("a", 1, "q", 100, cell.FlagInsert, "fresh"),
		mkCell("a", 1, "q", 1, cell.FlagInsert, "stale"),
	}}
	spec := &Spec{FamilyTTLNanos: map[uint8]int64{1: 50}, Now: 100, MaxVersions: 10}
	m := NewMergeScanner([]Source{s}, spec)
	got := collect(m)
	require.Len(t, got, 1)
	require.Equal(t, "fresh", string(got[0].Value))
}
