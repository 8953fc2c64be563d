// Package accessgroup implements one access group: the writable cell
// cache, a frozen cache slot held during compaction, an ordered list of
// immutable cell stores, and the minor/major/merging/move compaction
// algorithms that move data between them (spec.md §4.5).
//
// Grounded on hivekit's hive/merge package: a planner decides what work
// to do, a session executes it transactionally, and stats report what
// happened — the same three-part shape this package uses for
// compaction (decide which stores to merge, run the merge under the
// range's barriers, report the resulting store).
package accessgroup
