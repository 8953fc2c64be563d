// Package commitlog implements the range server's chunked, rolling,
// compressed append-only commit log (spec.md §4.2, §6.1).
//
// # Layout
//
// A log is a directory; each fragment is a numbered file holding a
// fragment header followed by a sequence of length-prefixed, checksummed,
// optionally compressed blocks. Appending a batch of cells frames one
// COMMITDATA block; LinkLog writes a COMMITLINK block recording another
// log's directory and folds that log's fragment queue into this one's,
// sorted by revision — the mechanism by which a range absorbs a transfer
// log produced by a split or relinquish (spec.md §4.6).
//
// # Rolling and purging
//
// Append rolls to a new fragment once the current one exceeds the
// configured roll limit. Purge walks the fragment queue in revision order
// and deletes fragments whose highest revision is below a cutoff, as long
// as nothing still references them; fragments with outstanding references
// are retried on the next purge rather than blocking it.
//
// This package plays the role hivekit's hive/dirty + hive/tx packages play
// for a single hive file — ordered, durable, crash-recoverable mutation
// tracking — generalized to a directory of rolling fragment files shared
// by (potentially) many concurrently written ranges.
package commitlog
