// Package rsrv implements the range server's request surface (spec.md
// §4.10): create_scanner, fetch_scanblock, destroy_scanner, update,
// commit_log_sync, load_range, acknowledge_load, relinquish_range,
// drop_range, compact, status and heapcheck. It is the boundary package
// that wires internal/rrange, internal/pipeline and internal/querycache
// together and is the only layer that returns the structured *Error type
// callers (the wire protocol, the CLI) see.
package rsrv
