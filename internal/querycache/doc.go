// Package querycache implements the range server's scan-result cache:
// an LRU keyed by a 128-bit digest of the scan specification bytes,
// sized by approximate byte footprint rather than entry count (spec.md
// §4.12).
//
// Grounded on hashicorp/golang-lru/v2 (the generic LRU implementation
// AKJUS-bsc-erigon wires in for its own block/state caches) for
// recency tracking and eviction notification; this package adds the
// byte-budgeted eviction loop and the (table,row)-keyed secondary
// index invalidate needs, which the bare LRU doesn't provide.
package querycache
