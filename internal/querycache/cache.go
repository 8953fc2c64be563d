package querycache

import (
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// perEntryOverhead approximates the bookkeeping cost of one cache
// entry beyond its result bytes and row key (spec.md §4.12 "approximate
// size = len + overhead + |row|").
const perEntryOverhead = 64

// recentWindow is the size of the rolling hit/miss window kept for
// logging (spec.md §4.12 "recent-1000 window for logging").
const recentWindow = 1000

// ErrTooLarge is returned by Insert when a single entry's size exceeds
// the cache's configured capacity.
var ErrTooLarge = fmt.Errorf("querycache: entry exceeds cache capacity")

// Entry is one cached scan result.
type Entry struct {
	TableName   string
	Row         []byte
	Columns     map[string]bool // nil or empty means "every column"
	CellCount   int
	ResultBytes []byte
	ResultLen   int
}

func (e *Entry) size() int64 {
	return int64(len(e.ResultBytes)) + perEntryOverhead + int64(len(e.Row))
}

type rowKey struct {
	table string
	row   string
}

// Cache is a byte-budgeted LRU of scan results.
type Cache struct {
	maxBytes int64

	mu     sync.Mutex
	used   int64
	lru    *lru.Cache[Key, *Entry]
	byRow  map[rowKey]map[Key]struct{}

	totalLookups atomic.Int64
	totalHits    atomic.Int64

	recentMu  sync.Mutex
	recent    [recentWindow]bool
	recentLen int
	recentPos int
}

// New constructs a Cache with the given byte capacity.
func New(maxBytes int64) (*Cache, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("querycache: maxBytes must be positive")
	}
	c := &Cache{
		maxBytes: maxBytes,
		byRow:    make(map[rowKey]map[Key]struct{}),
	}
	// A huge count capacity: eviction is driven entirely by the
	// maxBytes budget in Insert, never by entry count.
	inner, err := lru.NewWithEvict[Key, *Entry](1<<31-1, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = inner
	return c, nil
}

func (c *Cache) onEvict(key Key, e *Entry) {
	c.used -= e.size()
	c.unindex(key, e)
}

func (c *Cache) index(key Key, e *Entry) {
	rk := rowKey{table: e.TableName, row: string(e.Row)}
	set := c.byRow[rk]
	if set == nil {
		set = make(map[Key]struct{})
		c.byRow[rk] = set
	}
	set[key] = struct{}{}
}

func (c *Cache) unindex(key Key, e *Entry) {
	rk := rowKey{table: e.TableName, row: string(e.Row)}
	set := c.byRow[rk]
	if set == nil {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(c.byRow, rk)
	}
}

// Insert adds e under key, evicting the oldest entries until it fits
// (spec.md §4.12 "evict oldest until available_memory >= size"). It
// fails if e alone exceeds the cache's capacity.
func (c *Cache) Insert(key Key, e *Entry) error {
	size := e.size()
	if size > c.maxBytes {
		return ErrTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lru.Peek(key); ok {
		c.lru.Remove(key)
	}

	for c.used+size > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}

	c.lru.Add(key, e)
	c.used += size
	c.index(key, e)
	return nil
}

// Lookup returns the cached result for key, moving it to
// most-recently-used on a hit.
func (c *Cache) Lookup(key Key) (result []byte, resultLen int, cellCount int, ok bool) {
	c.totalLookups.Add(1)

	c.mu.Lock()
	e, found := c.lru.Get(key)
	c.mu.Unlock()

	c.recordRecent(found)
	if !found {
		return nil, 0, 0, false
	}
	c.totalHits.Add(1)
	return e.ResultBytes, e.ResultLen, e.CellCount, true
}

// Invalidate removes every entry matching (tablename,row) whose column
// set intersects columns, or where either side is empty (spec.md
// §4.12).
func (c *Cache) Invalidate(tableName string, row []byte, columns map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rk := rowKey{table: tableName, row: string(row)}
	set := c.byRow[rk]
	if len(set) == 0 {
		return
	}
	var toRemove []Key
	for key := range set {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if columnsIntersect(e.Columns, columns) {
			toRemove = append(toRemove, key)
		}
	}
	for _, key := range toRemove {
		c.lru.Remove(key)
	}
}

func columnsIntersect(a, b map[string]bool) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for col := range small {
		if big[col] {
			return true
		}
	}
	return false
}

func (c *Cache) recordRecent(hit bool) {
	c.recentMu.Lock()
	defer c.recentMu.Unlock()
	c.recent[c.recentPos] = hit
	c.recentPos = (c.recentPos + 1) % recentWindow
	if c.recentLen < recentWindow {
		c.recentLen++
	}
}

// Counters reports total_lookups, total_hits, and the hit count within
// the most recent window of lookups (spec.md §4.12).
type Counters struct {
	TotalLookups int64
	TotalHits    int64
	RecentHits   int
	RecentTotal  int
}

// Stats returns the cache's counters.
func (c *Cache) Stats() Counters {
	c.recentMu.Lock()
	var recentHits int
	for i := 0; i < c.recentLen; i++ {
		if c.recent[i] {
			recentHits++
		}
	}
	recentTotal := c.recentLen
	c.recentMu.Unlock()

	return Counters{
		TotalLookups: c.totalLookups.Load(),
		TotalHits:    c.totalHits.Load(),
		RecentHits:   recentHits,
		RecentTotal:  recentTotal,
	}
}

// UsedBytes reports the cache's current approximate byte footprint.
func (c *Cache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Purge evicts every cached entry. The maintenance scheduler calls this
// under memory pressure (spec.md §4.14 "→ PURGE shadow caches"): this
// cache holds nothing but reconstructible copies of already-stored
// results, so dropping it loses no data, only hit rate.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.byRow = make(map[rowKey]map[Key]struct{})
	c.used = 0
}
