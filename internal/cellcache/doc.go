// Package cellcache implements the in-memory write buffer of a range's
// access group: an ordered map of Key → value that supports concurrent
// reads, single-writer appends, and frozen, lock-free snapshot scans
// (spec.md §4.3).
//
// A Manager owns exactly one writable Cache and zero or more frozen
// snapshots awaiting compaction. Freeze() atomically hands the current
// contents to a new read-only Snapshot and starts a fresh, empty writer —
// the Go rendering of hivekit's sequence-numbered transaction commit
// (hive/tx): a point-in-time cut that never blocks readers already in
// flight against the old generation.
package cellcache
