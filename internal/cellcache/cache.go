package cellcache

import (
	"sort"
	"sync"

	"github.com/rangekit/rangekit/internal/arena"
	"github.com/rangekit/rangekit/pkg/cell"
)

// Cache is the single writable generation of an access group's cell
// cache. All mutations go through add; reads of the live generation go
// through Scan. Keys and values are copied into an arena so the cache
// owns stable storage independent of caller buffers.
type Cache struct {
	mu    sync.RWMutex
	a     *arena.Arena
	cells []cell.Cell // kept sorted ascending by cell.Compare
	bytes int64
}

// New returns an empty, writable cache backed by its own arena.
func New() *Cache {
	return &Cache{a: arena.New(arena.Options{})}
}

// Add inserts key/value, copying both into the cache's arena. Add is safe
// for concurrent use with Scan and with concurrent Add calls.
func (c *Cache) Add(key cell.Key, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key
	k.Row = c.a.Dup(key.Row)
	k.ColumnQualifier = c.a.Dup(key.ColumnQualifier)
	v := c.a.Dup(value)

	i := sort.Search(len(c.cells), func(i int) bool {
		return cell.Compare(c.cells[i].Key, k) >= 0
	})
	c.cells = append(c.cells, cell.Cell{})
	copy(c.cells[i+1:], c.cells[i:])
	c.cells[i] = cell.Cell{Key: k, Value: v}
	c.bytes += int64(len(k.Row)+len(k.ColumnQualifier)+len(v)) + keyFixedOverhead
}

// keyFixedOverhead approximates the per-cell bookkeeping cost (timestamp,
// revision, flag, family id, slice headers) charged against an access
// group's configured memory limit alongside the variable-length bytes.
const keyFixedOverhead = 40

// Bytes reports the approximate memory footprint of the live generation,
// used by the access group to decide when to freeze (spec.md §4.3).
func (c *Cache) Bytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytes
}

// Len reports the number of cells currently held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cells)
}

// Scan returns a scan.Source over the live cells as of the call. The
// returned source is a read-only view of the slice at the time of the
// call; cells appended afterward are not visible to it, matching the
// snapshot-read semantics scanners rely on.
func (c *Cache) Scan() *Scanner {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cells := make([]cell.Cell, len(c.cells))
	copy(cells, c.cells)
	return &Scanner{cells: cells}
}

// freeze hands the current cell slice to a new, independent
// Snapshot and resets the writer to empty. Callers must hold no lock;
// freeze takes the write lock itself.
func (c *Cache) freeze() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := &Snapshot{cells: c.cells, bytes: c.bytes}
	c.cells = nil
	c.bytes = 0
	c.a = arena.New(arena.Options{})
	return snap
}

// Snapshot is an immutable, frozen cache generation awaiting compaction
// into a cell store. Snapshots never receive further writes, so they can
// be scanned without holding any lock.
type Snapshot struct {
	cells []cell.Cell
	bytes int64
}

// Bytes reports the snapshot's memory footprint.
func (s *Snapshot) Bytes() int64 { return s.bytes }

// Len reports the number of cells in the snapshot.
func (s *Snapshot) Len() int { return len(s.cells) }

// Scan returns a scan.Source over the snapshot's cells.
func (s *Snapshot) Scan() *Scanner {
	return &Scanner{cells: s.cells}
}

// Scanner is a scan.Source over a sorted cell slice held by a Cache or
// Snapshot. It never mutates the underlying slice.
type Scanner struct {
	cells []cell.Cell
	pos   int
}

// Peek implements scan.Source.
func (s *Scanner) Peek() (cell.Cell, bool) {
	if s.pos >= len(s.cells) {
		return cell.Cell{}, false
	}
	return s.cells[s.pos], true
}

// Advance implements scan.Source.
func (s *Scanner) Advance() {
	if s.pos < len(s.cells) {
		s.pos++
	}
}

// Close implements scan.Source. Scanner holds no external resources.
func (s *Scanner) Close() error { return nil }
