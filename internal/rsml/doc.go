// Package rsml implements the range-server meta-log: an append-only,
// checksummed journal of range lifecycle entities and pending
// maintenance tasks that a range server replays on startup to
// reconstruct its working set (spec.md §4.8, §6.3).
//
// Grounded on hivekit's internal/repair transaction log: both are an
// atomic, checksummed, replayable record of state transitions that must
// survive a crash mid-write without corrupting the structure they
// describe. record_state here plays the role repair's TransactionLog
// plays for hive edits.
package rsml
