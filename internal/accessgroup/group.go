package accessgroup

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/rangekit/rangekit/internal/barrier"
	"github.com/rangekit/rangekit/internal/cellcache"
	"github.com/rangekit/rangekit/internal/cellstore"
	"github.com/rangekit/rangekit/internal/codec"
	"github.com/rangekit/rangekit/internal/scan"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
)

// Options configures a Group.
type Options struct {
	FS     storagefs.FS
	Dir    string // directory cell store files are written under
	Schema schema.AccessGroupSchema
	Log    *slog.Logger
}

// Group is one access group: a writable cell cache, a frozen slot held
// during compaction, and the ordered cell stores that back it on disk
// (spec.md §4.5).
type Group struct {
	opts Options
	log  *slog.Logger

	cache  *cellcache.Manager
	frozen *cellcache.Snapshot

	mu       sync.RWMutex
	stores   []*cellstore.Reader
	storeSeq int64
}

// New returns an empty Group over opts.
func New(opts Options) *Group {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Group{opts: opts, log: log, cache: cellcache.NewManager()}
}

// Add inserts one cell into the writable cache.
func (g *Group) Add(key cell.Key, value []byte) {
	g.cache.Writer().Add(key, value)
}

// Bytes reports the memory footprint of the cache (writer + any staged
// frozen generation), used to decide when a minor compaction is due.
func (g *Group) Bytes() int64 {
	return g.cache.Bytes()
}

// StoreCount reports how many cell stores currently back this group.
func (g *Group) StoreCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.stores)
}

// DiskBytes sums the key and value bytes recorded in every store's
// trailer, used by the maintenance scheduler to estimate a range's
// total (on-disk plus in-memory) size (spec.md §4.14).
func (g *Group) DiskBytes() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var total int64
	for _, s := range g.stores {
		t := s.Trailer()
		total += int64(t.KeyBytes) + int64(t.ValueBytes)
	}
	return total
}

// Sources returns one scan.Source per live generation (writable cache,
// staged frozen snapshot if any, and every cell store) for a range-level
// merge scan to consume (spec.md §4.6 create_scanner). Only the
// cell-store sources are scoped to [startRow, endRow]; the cache sources
// return every cell they hold.
func (g *Group) Sources(startRow, endRow []byte) []scan.Source {
	var out []scan.Source
	out = append(out, g.cache.Writer().Scan())
	if g.frozen != nil {
		out = append(out, g.frozen.Scan())
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, s := range g.stores {
		out = append(out, s.Scan(startRow, endRow))
	}
	return out
}

// ErrAlreadyStaged is returned by StageCompaction when a frozen
// generation is already staged.
var ErrAlreadyStaged = fmt.Errorf("accessgroup: compaction already staged")

// StageCompaction freezes the writable cache and holds it as the
// group's staged frozen generation, atomically with respect to writers
// via updateBarrier (spec.md §4.5 stage_compaction).
func (g *Group) StageCompaction(updateBarrier *barrier.Barrier) (*cellcache.Snapshot, error) {
	if g.frozen != nil {
		return nil, ErrAlreadyStaged
	}
	release := updateBarrier.ScopedActivator()
	defer release()
	g.frozen = g.cache.Freeze()
	return g.frozen, nil
}

// UnstageCompaction reverts a staged freeze: the frozen generation's
// cells are merged back into the live writer (spec.md §4.5
// unstage_compaction), used when a compaction aborts.
func (g *Group) UnstageCompaction(updateBarrier *barrier.Barrier) {
	if g.frozen == nil {
		return
	}
	release := updateBarrier.ScopedActivator()
	defer release()
	g.cache.Unfreeze(g.frozen)
	g.frozen = nil
}

func (g *Group) nextStorePath() string {
	g.storeSeq++
	return fmt.Sprintf("%s/cs-%020d", g.opts.Dir, g.storeSeq)
}

func (g *Group) builderOptions(path string) cellstore.BuilderOptions {
	return cellstore.BuilderOptions{
		FS:        g.opts.FS,
		Path:      path,
		BlockSize: int(g.opts.Schema.BlockSizeBytes),
		Codec:     codec.ParseType(g.opts.Schema.Compressor),
		BloomMode: cellstore.ParseBloomMode(g.opts.Schema.BloomFilterMode),
	}
}

// MinorCompact writes the currently staged frozen generation out as a
// new cell store appended to stores, then releases the frozen
// generation (spec.md §4.5 "Minor"). StageCompaction must have been
// called first.
func (g *Group) MinorCompact() error {
	if g.frozen == nil {
		return fmt.Errorf("accessgroup: minor compact requires a staged generation")
	}
	if g.frozen.Len() == 0 {
		g.cache.Release(g.frozen)
		g.frozen = nil
		return nil
	}
	path := g.nextStorePath()
	b, err := cellstore.NewBuilder(g.builderOptions(path))
	if err != nil {
		return err
	}
	s := g.frozen.Scan()
	for {
		c, ok := s.Peek()
		if !ok {
			break
		}
		if err := b.Add(c); err != nil {
			return err
		}
		s.Advance()
	}
	if _, err := b.Finalize(); err != nil {
		return err
	}
	r, err := cellstore.Open(g.opts.FS, path)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.stores = append(g.stores, r)
	g.mu.Unlock()

	g.cache.Release(g.frozen)
	g.frozen = nil
	return nil
}

// MajorCompact merge-scans the staged frozen generation together with
// every current store and writes a single replacement store, dropping
// delete markers together with the cells they suppress (spec.md §4.5
// "Major"). No max-versions limit is applied, so every surviving version
// is kept. StageCompaction must have been called first.
func (g *Group) MajorCompact() error {
	if g.frozen == nil {
		return fmt.Errorf("accessgroup: major compact requires a staged generation")
	}
	g.mu.RLock()
	oldStores := append([]*cellstore.Reader(nil), g.stores...)
	g.mu.RUnlock()

	sources := []scan.Source{g.frozen.Scan()}
	for _, s := range oldStores {
		sources = append(sources, s.Scan(nil, nil))
	}
	merged := scan.NewMergeScanner(sources, &scan.Spec{MaxVersions: 0})

	path := g.nextStorePath()
	b, err := cellstore.NewBuilder(g.builderOptions(path))
	if err != nil {
		return err
	}
	for {
		c, ok := merged.Next()
		if !ok {
			break
		}
		if err := b.Add(c); err != nil {
			return err
		}
	}
	if _, err := b.Finalize(); err != nil {
		return err
	}
	r, err := cellstore.Open(g.opts.FS, path)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.stores = []*cellstore.Reader{r}
	g.mu.Unlock()

	for _, s := range oldStores {
		if err := s.Close(); err != nil {
			g.log.Warn("close old store after major compaction", "path", s.Path(), "error", err)
		}
		if err := g.opts.FS.Remove(s.Path()); err != nil {
			g.log.Warn("remove old store after major compaction", "path", s.Path(), "error", err)
		}
	}

	g.cache.Release(g.frozen)
	g.frozen = nil
	return nil
}

// MergingCompact merges a contiguous run of small stores (by file size,
// ascending within the group's store order) into one replacement store
// (spec.md §4.5 "Merging"). sizeThreshold bounds the combined size of
// the run selected.
func (g *Group) MergingCompact(sizeThreshold int64) error {
	g.mu.RLock()
	stores := append([]*cellstore.Reader(nil), g.stores...)
	g.mu.RUnlock()
	if len(stores) < 2 {
		return nil
	}

	run := selectMergeRun(stores, sizeThreshold)
	if len(run) < 2 {
		return nil
	}

	var sources []scan.Source
	for _, idx := range run {
		sources = append(sources, stores[idx].Scan(nil, nil))
	}
	merged := scan.NewMergeScanner(sources, &scan.Spec{ReturnDeletes: true})

	path := g.nextStorePath()
	b, err := cellstore.NewBuilder(g.builderOptions(path))
	if err != nil {
		return err
	}
	for {
		c, ok := merged.Next()
		if !ok {
			break
		}
		if err := b.Add(c); err != nil {
			return err
		}
	}
	if _, err := b.Finalize(); err != nil {
		return err
	}
	r, err := cellstore.Open(g.opts.FS, path)
	if err != nil {
		return err
	}

	g.mu.Lock()
	replaced := make(map[int]bool, len(run))
	for _, idx := range run {
		replaced[idx] = true
	}
	var next []*cellstore.Reader
	inserted := false
	for i, s := range g.stores {
		if replaced[i] {
			if !inserted {
				next = append(next, r)
				inserted = true
			}
			continue
		}
		next = append(next, s)
	}
	g.stores = next
	g.mu.Unlock()

	for _, idx := range run {
		s := stores[idx]
		s.Close()
		g.opts.FS.Remove(s.Path())
	}
	return nil
}

// selectMergeRun picks the longest contiguous run of stores whose
// combined trailer-reported on-disk size stays within sizeThreshold.
func selectMergeRun(stores []*cellstore.Reader, sizeThreshold int64) []int {
	best := []int{}
	for start := 0; start < len(stores); start++ {
		var sum int64
		var run []int
		for end := start; end < len(stores); end++ {
			t := stores[end].Trailer()
			size := int64(t.KeyBytes + t.ValueBytes)
			if sum+size > sizeThreshold {
				break
			}
			sum += size
			run = append(run, end)
		}
		if len(run) > len(best) {
			best = run
		}
	}
	return best
}

// Move rewrites every cell store into newDir, used after a split to
// physically separate a new range's data from its parent's (spec.md
// §4.5 "Move"). The group's directory is updated to newDir.
func (g *Group) Move(newDir string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var rewritten []*cellstore.Reader
	for _, s := range g.stores {
		path := fmt.Sprintf("%s/cs-%020d", newDir, g.storeSeq)
		g.storeSeq++
		b, err := cellstore.NewBuilder(cellstore.BuilderOptions{
			FS: g.opts.FS, Path: path, BlockSize: int(g.opts.Schema.BlockSizeBytes),
			Codec: codec.ParseType(g.opts.Schema.Compressor), BloomMode: cellstore.ParseBloomMode(g.opts.Schema.BloomFilterMode),
		})
		if err != nil {
			return err
		}
		sc := s.Scan(nil, nil)
		for {
			c, ok := sc.Peek()
			if !ok {
				break
			}
			if err := b.Add(c); err != nil {
				return err
			}
			sc.Advance()
		}
		if _, err := b.Finalize(); err != nil {
			return err
		}
		oldPath := s.Path()
		s.Close()
		g.opts.FS.Remove(oldPath)

		r, err := cellstore.Open(g.opts.FS, path)
		if err != nil {
			return err
		}
		rewritten = append(rewritten, r)
	}
	g.stores = rewritten
	g.opts.Dir = newDir
	return nil
}

// SplitRowEstimate proposes a split row derived from the block-index
// midpoints of the group's cell stores, falling back to the median key
// currently held in the writable cache (spec.md §4.5 "Split-row
// selection").
func (g *Group) SplitRowEstimate() ([]byte, bool) {
	g.mu.RLock()
	stores := g.stores
	g.mu.RUnlock()
	if len(stores) > 0 {
		mid := stores[len(stores)/2]
		if row, ok := mid.MidpointRow(); ok {
			return row, true
		}
	}

	s := g.cache.Writer().Scan()
	var rows [][]byte
	for {
		c, ok := s.Peek()
		if !ok {
			break
		}
		rows = append(rows, c.Key.Row)
		s.Advance()
	}
	if len(rows) == 0 {
		return nil, false
	}
	sort.Slice(rows, func(i, j int) bool { return string(rows[i]) < string(rows[j]) })
	return rows[len(rows)/2], true
}
