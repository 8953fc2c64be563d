package scan

import (
	"container/heap"

	"github.com/rangekit/rangekit/pkg/cell"
)

// sourceHeap is a container/heap.Interface over sources ordered by their
// current Peek() key, lowest first.
type sourceHeap []Source

func (h sourceHeap) Len() int { return len(h) }
func (h sourceHeap) Less(i, j int) bool {
	a, _ := h[i].Peek()
	b, _ := h[j].Peek()
	return cell.Less(a.Key, b.Key)
}
func (h sourceHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *sourceHeap) Push(x any)   { *h = append(*h, x.(Source)) }
func (h *sourceHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// colKey identifies a (row-relative) column within the row currently
// being processed.
type colKey struct {
	family    uint8
	qualifier string
}

// MergeScanner is the heap-merging scanner of spec.md §4.7: it merges
// any number of ordered Sources (cache snapshots, cell stores) into one
// key-ordered stream and applies the predicate pipeline in a single
// forward pass, relying on the stream's sort order (timestamp
// descending, delete-before-insert at equal timestamp) to evaluate
// deletes and max_versions without buffering.
type MergeScanner struct {
	h    sourceHeap
	spec *Spec

	initialized bool
	done        bool

	curRow          []byte
	rowDeleteTS     int64
	haveRowDelete   bool
	famDeleteTS     map[uint8]int64
	cqDeleteTS      map[colKey]int64
	versionCount    map[colKey]int
	familyCellCount map[uint8]int

	distinctRows      int
	rowsEmitted       int
	rowCountedThisRow bool
	cellsEmitted      int
	cellsSkipped      int // toward CellOffset
	rowSkipped        bool

	BytesScanned  int64
	BytesReturned int64
}

// NewMergeScanner builds a scanner over sources, which need not be
// pre-sorted relative to each other (the heap establishes merge order),
// filtered by spec.
func NewMergeScanner(sources []Source, spec *Spec) *MergeScanner {
	return &MergeScanner{
		h:               append(sourceHeap(nil), sources...),
		spec:            spec,
		famDeleteTS:     make(map[uint8]int64),
		cqDeleteTS:      make(map[colKey]int64),
		versionCount:    make(map[colKey]int),
		familyCellCount: make(map[uint8]int),
	}
}

func (m *MergeScanner) initialize() {
	heap.Init(&m.h)
	m.initialized = true
}

// Close closes every underlying source.
func (m *MergeScanner) Close() error {
	var first error
	for _, s := range m.h {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// next pops the current lowest cell across all sources and advances
// that source, reinserting it into the heap if it is not exhausted
// (spec.md §4.7 do_forward).
func (m *MergeScanner) next() (cell.Cell, bool) {
	if !m.initialized {
		m.initialize()
	}
	if m.h.Len() == 0 {
		return cell.Cell{}, false
	}
	top := m.h[0]
	c, ok := top.Peek()
	if !ok {
		heap.Pop(&m.h)
		return m.next()
	}
	top.Advance()
	if _, ok := top.Peek(); ok {
		heap.Fix(&m.h, 0)
	} else {
		heap.Pop(&m.h)
	}
	return c, true
}

func (m *MergeScanner) resetRow(row []byte) {
	m.curRow = append(m.curRow[:0], row...)
	m.haveRowDelete = false
	m.rowDeleteTS = 0
	for k := range m.famDeleteTS {
		delete(m.famDeleteTS, k)
	}
	for k := range m.cqDeleteTS {
		delete(m.cqDeleteTS, k)
	}
	for k := range m.versionCount {
		delete(m.versionCount, k)
	}
	for k := range m.familyCellCount {
		delete(m.familyCellCount, k)
	}
	m.distinctRows++
	m.rowSkipped = m.distinctRows <= m.spec.RowOffset
	m.rowCountedThisRow = false
}

// Next returns the next cell that passes the predicate pipeline, or
// false when the scan is exhausted or a limit has terminated it.
func (m *MergeScanner) Next() (cell.Cell, bool) {
	if m.done {
		return cell.Cell{}, false
	}
	for {
		c, ok := m.next()
		if !ok {
			m.done = true
			return cell.Cell{}, false
		}
		m.BytesScanned += int64(len(c.Key.Row) + len(c.Key.ColumnQualifier) + len(c.Value))

		if !cell.SameRow(cell.Key{Row: m.curRow}, c.Key) {
			if m.rowsEmitted >= m.spec.RowLimit && m.spec.RowLimit > 0 {
				m.done = true
				return cell.Cell{}, false
			}
			m.resetRow(c.Key.Row)
		}

		if !m.passesRow(c) {
			continue
		}
		if m.applyDeletesAndReturn(c) {
			continue
		}
		if !m.passesValue(c) {
			continue
		}

		if m.rowSkipped {
			continue
		}
		if m.spec.RowLimit > 0 && m.rowsEmitted >= m.spec.RowLimit {
			m.done = true
			return cell.Cell{}, false
		}
		if m.cellsSkipped < m.spec.CellOffset {
			m.cellsSkipped++
			continue
		}
		if m.spec.CellLimit > 0 && m.cellsEmitted >= m.spec.CellLimit {
			m.done = true
			return cell.Cell{}, false
		}
		if m.spec.CellLimitPerFamily > 0 && m.familyCellCount[c.Key.ColumnFamilyID] >= m.spec.CellLimitPerFamily {
			continue
		}

		m.familyCellCount[c.Key.ColumnFamilyID]++
		m.cellsEmitted++
		m.markRowCounted()
		m.BytesReturned += int64(len(c.Key.Row) + len(c.Key.ColumnQualifier) + len(c.Value))
		return c, true
	}
}

func (m *MergeScanner) markRowCounted() {
	if !m.rowCountedThisRow {
		m.rowCountedThisRow = true
		m.rowsEmitted++
	}
}

func (m *MergeScanner) passesRow(c cell.Cell) bool {
	if !m.spec.includesFamily(c.Key.ColumnFamilyID) {
		return false
	}
	if !m.spec.withinTimeInterval(c.Key.Timestamp) {
		return false
	}
	if m.spec.expired(c.Key.ColumnFamilyID, c.Key.Timestamp) {
		return false
	}
	if !m.spec.withinRowIntervals(c.Key.Row) {
		return false
	}
	if m.spec.RowRegex != nil && !m.spec.RowRegex.Match(c.Key.Row) {
		return false
	}
	return true
}

// applyDeletesAndReturn updates delete-suppression state from c if it
// is a delete marker, and reports whether c itself should be dropped
// (either because it is the delete marker, which never surfaces unless
// ReturnDeletes, or because an earlier, higher-timestamp delete in this
// pass already suppresses it).
func (m *MergeScanner) applyDeletesAndReturn(c cell.Cell) bool {
	ck := colKey{family: c.Key.ColumnFamilyID, qualifier: string(c.Key.ColumnQualifier)}

	if m.haveRowDelete && c.Key.Timestamp <= m.rowDeleteTS {
		return true
	}
	if ts, ok := m.famDeleteTS[c.Key.ColumnFamilyID]; ok && c.Key.Timestamp <= ts {
		return true
	}
	if ts, ok := m.cqDeleteTS[ck]; ok && c.Key.Timestamp <= ts {
		return true
	}

	switch c.Key.Flag {
	case cell.FlagDeleteRow:
		if !m.haveRowDelete || c.Key.Timestamp > m.rowDeleteTS {
			m.rowDeleteTS = c.Key.Timestamp
			m.haveRowDelete = true
		}
		return !m.spec.ReturnDeletes
	case cell.FlagDeleteColumnFamily:
		if ts, ok := m.famDeleteTS[c.Key.ColumnFamilyID]; !ok || c.Key.Timestamp > ts {
			m.famDeleteTS[c.Key.ColumnFamilyID] = c.Key.Timestamp
		}
		return !m.spec.ReturnDeletes
	case cell.FlagDeleteCell:
		if ts, ok := m.cqDeleteTS[ck]; !ok || c.Key.Timestamp > ts {
			m.cqDeleteTS[ck] = c.Key.Timestamp
		}
		return !m.spec.ReturnDeletes
	case cell.FlagDeleteCellVersion:
		return !m.spec.ReturnDeletes
	}

	if m.spec.MaxVersions > 0 {
		if m.versionCount[ck] >= m.spec.MaxVersions {
			return true
		}
		m.versionCount[ck]++
	}
	return false
}

func (m *MergeScanner) passesValue(c cell.Cell) bool {
	if m.spec.ValueRegex != nil && !m.spec.ValueRegex.Match(c.Value) {
		return false
	}
	if len(m.spec.ColumnPredicates) == 0 {
		return true
	}
	for i := range m.spec.ColumnPredicates {
		p := &m.spec.ColumnPredicates[i]
		if p.FamilyID != c.Key.ColumnFamilyID {
			continue
		}
		if p.matchesQualifier(c.Key.ColumnQualifier) && p.matchesValue(c.Value) {
			return true
		}
	}
	return false
}
