package locator

import (
	"bytes"
	"sort"
	"sync"

	"github.com/rangekit/rangekit/pkg/schema"
)

// cachedRange is one resolved range boundary and the host serving it.
// A table's entries are kept sorted by EndRow so Lookup can binary
// search for the smallest EndRow at or above a queried row — exactly
// the METADATA row a fresh scan would have found (spec.md §4.11
// "smallest row-key ≥ <table_id>:<row>").
type cachedRange struct {
	spec     schema.RangeSpec
	location string
}

// Cache is the location cache: one sorted run of cachedRange per
// table id. It never needs to distinguish METADATA from user tables —
// the root-level lookup (which METADATA range covers a row) and the
// user-level lookup (which range server covers a row) are both
// interval resolutions over a table's row-space, so both levels share
// one Cache keyed by table id.
type Cache struct {
	mu      sync.RWMutex
	byTable map[string][]cachedRange
}

// NewCache constructs an empty location cache.
func NewCache() *Cache {
	return &Cache{byTable: make(map[string][]cachedRange)}
}

// Lookup returns the cached range and host covering row in tableID,
// if one is held.
func (c *Cache) Lookup(tableID string, row []byte) (location string, spec schema.RangeSpec, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ranges := c.byTable[tableID]
	i := sort.Search(len(ranges), func(i int) bool {
		return ranges[i].spec.IsFinal() || bytes.Compare(ranges[i].spec.EndRow, row) >= 0
	})
	if i >= len(ranges) || !ranges[i].spec.Contains(row) {
		return "", schema.RangeSpec{}, false
	}
	return ranges[i].location, ranges[i].spec, true
}

// Insert records that spec is served by location, replacing any
// previously cached ranges that overlap it — a split or merge changes
// a range's bounds, and a stale overlapping entry would otherwise
// shadow the fresh one.
func (c *Cache) Insert(tableID string, spec schema.RangeSpec, location string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ranges := c.byTable[tableID]
	kept := ranges[:0]
	for _, r := range ranges {
		if !overlaps(r.spec, spec) {
			kept = append(kept, r)
		}
	}
	kept = append(kept, cachedRange{spec: spec, location: location})
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].spec.IsFinal() != kept[j].spec.IsFinal() {
			return kept[j].spec.IsFinal()
		}
		return bytes.Compare(kept[i].spec.EndRow, kept[j].spec.EndRow) < 0
	})
	c.byTable[tableID] = kept
}

// Invalidate removes the cached entry covering row in tableID, if any
// (spec.md §4.11 "invalidate(table, row) removes a single entry").
func (c *Cache) Invalidate(tableID string, row []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ranges := c.byTable[tableID]
	for i, r := range ranges {
		if r.spec.Contains(row) {
			c.byTable[tableID] = append(ranges[:i], ranges[i+1:]...)
			return
		}
	}
}

// InvalidateHost removes every cached entry served by host across
// every table, reporting whether any METADATA-level entry was removed
// (spec.md §4.11 "invalidate_host(hostname) removes all entries for
// that host").
func (c *Cache) InvalidateHost(host string) (removedMetadata bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tableID, ranges := range c.byTable {
		kept := ranges[:0]
		for _, r := range ranges {
			if r.location == host {
				if tableID == metadataTable.ID {
					removedMetadata = true
				}
				continue
			}
			kept = append(kept, r)
		}
		c.byTable[tableID] = kept
	}
	return removedMetadata
}

// overlaps reports whether two (start,end] intervals share any row.
func overlaps(a, b schema.RangeSpec) bool {
	if !a.IsFinal() && b.StartRow != nil && bytes.Compare(a.EndRow, b.StartRow) <= 0 {
		return false
	}
	if !b.IsFinal() && a.StartRow != nil && bytes.Compare(b.EndRow, a.StartRow) <= 0 {
		return false
	}
	return true
}
