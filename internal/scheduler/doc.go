// Package scheduler implements the maintenance scheduler: a periodic
// sweep that scores every range a server holds against the split,
// compact, and purge thresholds, then dispatches at most one
// maintenance task per range to a bounded worker pool (spec.md §4.14).
//
// Per-range serialization is already enforced one layer down, by the
// barrier.Guard every internal/rrange.Range.Compact/Split call acquires
// internally — Scheduler only needs to bound how many ranges it works
// on concurrently and to treat a busy range as "try again next sweep"
// rather than an error.
package scheduler
