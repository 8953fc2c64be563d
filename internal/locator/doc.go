// Package locator resolves (table, row) pairs to the range server
// currently holding that row, through the two-level METADATA lookup
// of spec.md §4.11: a root range naming which METADATA range covers a
// table's row-space, and that METADATA range naming the actual range
// server. Results are held in an interval-keyed location cache so a
// hot row-space is resolved without a METADATA scan on every call.
package locator
