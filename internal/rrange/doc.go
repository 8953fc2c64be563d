// Package rrange implements a range: the unit of ownership a range
// server serves, split-or-relinquished independently of every other
// range on the table (spec.md §4.6).
//
// A Range owns one access group per schema.AccessGroupSchema, a
// column-family-id-to-group routing table, the two barriers that keep
// structural mutation (split, relinquish, compaction staging) from
// racing ordinary adds and scans, and a maintenance guard serializing
// those structural mutations against each other. Every state
// transition is persisted to the range-server meta-log before the step
// it covers begins and again after it completes, so a crash mid-split
// or mid-relinquish can be resumed from the last persisted state
// (spec.md §4.6 "Crash in SPLIT_LOG_INSTALLED replays the transfer log
// and retries the split").
package rrange
