// Package arena provides a bump-pointer slab allocator and an interned
// string set layered on top of it.
//
// # Overview
//
// Cell caches (internal/cellcache) and cell-store builders
// (internal/cellstore) need to own many small, short-lived byte strings
// (row keys, qualifiers, values) without paying per-allocation GC overhead.
// An Arena satisfies that by carving fixed-size pages out of large slabs
// and handing out sub-slices; the whole arena is freed at once.
//
// # Pages and the tiny buffer
//
// Large allocations come from a list of pages (default 8 KiB each,
// configurable via Options.PageSize). A 128-byte inline "tiny" buffer
// satisfies very small allocations (most row keys and qualifiers) without
// touching the page list at all. Partially filled pages are kept in a
// size-ordered set and reused by later allocations that fit in the
// remaining space.
//
// # Lifetime
//
// Dup and DupString return arena-owned copies valid until Free is called.
// Free releases every page and resets the tiny buffer; every pointer
// previously returned by this Arena becomes invalid the instant Free
// returns.
//
// # Flyweight string set
//
// StringSet de-duplicates strings on top of an Arena: Get(s) returns an
// arena-owned, interned copy, so repeated qualifiers or row prefixes
// across many cells occupy the backing storage once.
package arena
