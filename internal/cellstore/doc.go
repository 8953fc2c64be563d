// Package cellstore implements the immutable, on-disk sorted cell files
// an access group compacts its cell cache into: compressed blocks, a
// sparse two-part block index (fixed-size entries pointing into a
// variable-length key blob, the same offset/blob split hivekit's hive
// cells use for parent-relative NK/VK lookups), an optional Bloom
// filter, and a versioned trailer (spec.md §4.4, §6.2).
//
// Only trailer version 7 is produced by this package's builder. Earlier
// trailer versions are dispatched to by version tag on open but are not
// implemented here: the specification names their existence without
// defining their field layouts, so there is nothing concrete to
// replicate (see DESIGN.md).
package cellstore
