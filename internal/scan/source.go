// Package scan implements the merge-scan pipeline shared by every access
// group: a heap of child Sources (one per cell cache snapshot and one per
// cell store) ordered by next key, plus the cell-level predicate language
// used to filter what a scan returns (spec.md §4.7, §6.4).
package scan

import "github.com/rangekit/rangekit/pkg/cell"

// Source is one ordered child of a merge scan: a frozen cache snapshot or
// a cell store reader. Peek must be idempotent; Advance moves past the
// cell last returned by Peek and never rewinds.
type Source interface {
	// Peek returns the next cell in key order without consuming it, and
	// false once the source is exhausted.
	Peek() (cell.Cell, bool)
	// Advance discards the cell last returned by Peek.
	Advance()
	// Close releases resources held by the source (open file handles,
	// pinned snapshots). Safe to call multiple times.
	Close() error
}
