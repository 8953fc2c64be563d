package rrange

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rangekit/rangekit/internal/accessgroup"
	"github.com/rangekit/rangekit/internal/barrier"
	"github.com/rangekit/rangekit/internal/rsml"
	"github.com/rangekit/rangekit/internal/scan"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
)

// ErrUnknownFamily is returned by Add when a key names a column family
// not present in the range's schema.
var ErrUnknownFamily = fmt.Errorf("rrange: unknown column family")

// Options configures a Range.
type Options struct {
	Table  schema.TableIdentifier
	Spec   schema.RangeSpec
	Schema *schema.Schema

	FS  storagefs.FS
	Dir string // range's own directory; one subdirectory per access group

	Log      *rsml.Log
	EntityID uint64 // this range's RSML entity id; 0 until first persisted

	SoftLimitBytes    uint64
	MaxSoftLimitBytes uint64
	Source            string

	Master   MasterClient
	Metadata MetadataWriter

	Logger *slog.Logger
}

// Counters are the per-range operation tallies spec.md §4.6 requires
// ("per-range counters: scans, updates, cells_scanned, cells_returned,
// bytes_*").
type Counters struct {
	Scans         atomic.Int64
	Updates       atomic.Int64
	CellsScanned  atomic.Int64
	CellsReturned atomic.Int64
	BytesScanned  atomic.Int64
	BytesReturned atomic.Int64

	mu        sync.Mutex
	flagCount [5]int64
}

func (c *Counters) recordFlag(f cell.Flag) {
	c.mu.Lock()
	c.flagCount[f]++
	c.mu.Unlock()
}

// FlagCount reports how many Add calls have carried flag f.
func (c *Counters) FlagCount(f cell.Flag) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flagCount[f]
}

// Range is one table range: an access-group set, the dispatch table
// routing column families to them, and the state machine governing
// split and relinquish (spec.md §4.6).
type Range struct {
	opts Options
	log  *slog.Logger

	groups         map[string]*accessgroup.Group
	familyGroup    map[uint8]*accessgroup.Group
	groupFamilyIDs map[string]map[uint8]bool

	updateBarrier *barrier.Barrier
	scanBarrier   *barrier.Barrier
	guard         *barrier.Guard

	mu             sync.Mutex
	state          schema.RangeState
	phantom        bool
	transferLog    string
	splitPoint     []byte
	oldBoundaryRow []byte
	revision       atomic.Int64

	Counters Counters
}

// New constructs a Range over opts in the steady state with one access
// group per schema.AccessGroupSchema.
func New(opts Options) (*Range, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Range{
		opts:           opts,
		log:            log,
		groups:         make(map[string]*accessgroup.Group),
		familyGroup:    make(map[uint8]*accessgroup.Group),
		groupFamilyIDs: make(map[string]map[uint8]bool),
		updateBarrier:  barrier.New(),
		scanBarrier:    barrier.New(),
		guard:          barrier.NewGuard(),
		state:          schema.StateSteady,
	}

	if err := opts.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("rrange: %w", err)
	}
	for _, ags := range opts.Schema.AccessGroups {
		g := accessgroup.New(accessgroup.Options{
			FS:     opts.FS,
			Dir:    fmt.Sprintf("%s/%s", opts.Dir, ags.Name),
			Schema: ags,
			Log:    log,
		})
		r.groups[ags.Name] = g
		ids := make(map[uint8]bool)
		for _, famName := range ags.ColumnFamilies {
			fam, ok := opts.Schema.FamilyByName(famName)
			if !ok {
				continue
			}
			r.familyGroup[fam.ID] = g
			ids[fam.ID] = true
		}
		r.groupFamilyIDs[ags.Name] = ids
	}
	return r, nil
}

// Add applies one cell mutation (spec.md §4.6 "add"): DELETE_ROW
// dispatches to every access group; everything else dispatches to the
// group owning its column family. Timestamp/Revision fields left at
// cell.AutoAssign are stamped here.
func (r *Range) Add(key cell.Key, value []byte) error {
	r.updateBarrier.Enter()
	defer r.updateBarrier.Exit()

	if key.Timestamp == cell.AutoAssign {
		key.Timestamp = time.Now().UnixNano()
	}
	if key.Revision == cell.AutoAssign {
		key.Revision = r.nextRevision()
	} else {
		r.bumpRevision(key.Revision)
	}

	if key.Flag == cell.FlagDeleteRow {
		for _, g := range r.groups {
			g.Add(key, value)
		}
	} else {
		g, ok := r.familyGroup[key.ColumnFamilyID]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownFamily, key.ColumnFamilyID)
		}
		g.Add(key, value)
	}

	r.Counters.Updates.Add(1)
	r.Counters.recordFlag(key.Flag)
	return nil
}

func (r *Range) nextRevision() int64 { return r.revision.Add(1) }

// AssignRevision hands out the next monotonically increasing revision
// for this range without attaching it to a cell. The update pipeline's
// qualify stage (internal/pipeline) calls this to fix a mutation's
// revision before it reaches the commit log, so the value recorded
// there matches the one later applied in the respond stage.
func (r *Range) AssignRevision() int64 { return r.nextRevision() }

// EnterUpdateBarrier and ExitUpdateBarrier let a caller hold this
// range's update barrier open across a span of work that isn't itself
// an Add call — the update pipeline's commit stage uses this to
// serialize a commit-log append against a concurrent split/relinquish
// (spec.md §4.9 "acquire the range's update_barrier for the duration
// of the append").
func (r *Range) EnterUpdateBarrier() { r.updateBarrier.Enter() }
func (r *Range) ExitUpdateBarrier()  { r.updateBarrier.Exit() }

// BytesInMemory sums every access group's unflushed cell-cache size.
func (r *Range) BytesInMemory() int64 {
	var total int64
	for _, g := range r.groups {
		total += g.Bytes()
	}
	return total
}

// NeedsCompaction reports whether the range's in-memory size has
// crossed its configured soft limit (spec.md §4.9 "update the range's
// ... soft-limit counters").
func (r *Range) NeedsCompaction() bool {
	r.mu.Lock()
	limit := r.opts.SoftLimitBytes
	r.mu.Unlock()
	return limit > 0 && uint64(r.BytesInMemory()) >= limit
}

// bumpRevision raises the revision high-water mark to at least v,
// without assigning a new one (spec.md §4.6 "update ... revision
// high-water").
func (r *Range) bumpRevision(v int64) {
	for {
		cur := r.revision.Load()
		if v <= cur {
			return
		}
		if r.revision.CompareAndSwap(cur, v) {
			return
		}
	}
}

// RangeScanner is a range-level merge scan: the union of every
// included access group's sources, filtered by spec (spec.md §4.6
// "create_scanner").
type RangeScanner struct {
	ms     *scan.MergeScanner
	r      *Range
	closed bool
}

// Next returns the next cell passing the scan's predicate pipeline.
func (s *RangeScanner) Next() (cell.Cell, bool) {
	c, ok := s.ms.Next()
	if ok {
		s.r.Counters.CellsReturned.Add(1)
	}
	return c, ok
}

// Close releases the scanner's sources and exits the range's scan
// barrier, allowing a blocked structural mutation to proceed.
func (s *RangeScanner) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.ms.Close()
	s.r.Counters.BytesScanned.Add(s.ms.BytesScanned)
	s.r.Counters.BytesReturned.Add(s.ms.BytesReturned)
	s.r.Counters.Scans.Add(1)
	s.r.scanBarrier.Exit()
	return err
}

// CreateScanner asks every access group whether it holds data relevant
// to spec's column set and merges the included groups' sources into
// one range-level scan. The returned scanner holds the range's scan
// barrier open (blocking split/relinquish) until Close is called.
func (r *Range) CreateScanner(spec *scan.Spec) *RangeScanner {
	r.scanBarrier.Enter()

	var sources []scan.Source
	for name, g := range r.groups {
		if !r.groupIncluded(name, spec) {
			continue
		}
		sources = append(sources, g.Sources(r.opts.Spec.StartRow, r.opts.Spec.EndRow)...)
	}
	ms := scan.NewMergeScanner(sources, spec)
	return &RangeScanner{ms: ms, r: r}
}

func (r *Range) groupIncluded(name string, spec *scan.Spec) bool {
	if spec.Columns == nil {
		return true
	}
	for id, want := range spec.Columns {
		if !want {
			continue
		}
		if r.groupFamilyIDs[name][id] {
			return true
		}
	}
	return false
}

// State reports the range's current lifecycle state.
func (r *Range) State() schema.RangeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Phantom reports whether the range is present (e.g. reloaded from the
// meta-log after a crash) but not yet acknowledged as live.
func (r *Range) Phantom() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phantom
}

// AcknowledgeLoad clears the phantom flag, making the range eligible to
// serve traffic (spec.md §4.8 "mark PHANTOM until an explicit
// acknowledge").
func (r *Range) AcknowledgeLoad() {
	r.mu.Lock()
	r.phantom = false
	r.mu.Unlock()
}

// Spec returns the range's current row boundary.
func (r *Range) Spec() schema.RangeSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts.Spec
}

// Table returns the table this range belongs to.
func (r *Range) Table() schema.TableIdentifier { return r.opts.Table }

// QualifiedRange returns the (table, spec) pair identifying this range,
// the key the maintenance scheduler and recovery coordinator address
// ranges by.
func (r *Range) QualifiedRange() schema.QualifiedRange {
	return schema.QualifiedRange{Table: r.opts.Table, Range: r.Spec()}
}

// DiskSizeBytes sums every access group's on-disk cell-store footprint.
func (r *Range) DiskSizeBytes() int64 {
	var total int64
	for _, g := range r.groups {
		total += g.DiskBytes()
	}
	return total
}

// TotalSizeBytes is the range's logical size — in-memory plus on-disk —
// the maintenance scheduler compares against range-split-size (spec.md
// §4.14 "ranges over range-split-size ... → SPLIT").
func (r *Range) TotalSizeBytes() int64 {
	return r.BytesInMemory() + r.DiskSizeBytes()
}

// MaxStoreCount reports the largest per-access-group cell store count,
// used by the maintenance scheduler to detect "many small cell stores"
// (spec.md §4.14 "→ MERGING COMPACT").
func (r *Range) MaxStoreCount() int {
	var max int
	for _, g := range r.groups {
		if n := g.StoreCount(); n > max {
			max = n
		}
	}
	return max
}

// meta renders the range's current persisted state as a RangeMeta for
// RSML.
func (r *Range) meta() schema.RangeMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return schema.RangeMeta{
		Table:            r.opts.Table,
		Spec:             r.opts.Spec,
		State:            r.state,
		Phantom:          r.phantom,
		Timestamp:        time.Now().UnixNano(),
		SoftLimitBytes:   r.opts.SoftLimitBytes,
		TransferLog:      r.transferLog,
		SplitPoint:       r.splitPoint,
		OldBoundaryRow:   r.oldBoundaryRow,
		Source:           r.opts.Source,
		LoadAcknowledged: !r.phantom,
	}
}

// Persist writes the range's current lifecycle state to RSML. The
// request surface calls this once right after load_range constructs a
// phantom range, so the range is durably recorded before it is ever
// acknowledged as live.
func (r *Range) Persist() error { return r.persist() }

// persist writes the range's current state to RSML, assigning an
// entity id on first use.
func (r *Range) persist() error {
	if r.opts.Log == nil {
		return nil
	}
	return r.opts.Log.RecordRange(r.opts.EntityID, r.meta())
}

// Recover restores a Range's lifecycle fields from a replayed RSML
// entry (spec.md §4.8). The range starts phantom; call AcknowledgeLoad
// once the server has confirmed it is ready to serve.
func Recover(opts Options, meta schema.RangeMeta) (*Range, error) {
	opts.Spec = meta.Spec
	opts.SoftLimitBytes = meta.SoftLimitBytes
	r, err := New(opts)
	if err != nil {
		return nil, err
	}
	r.state = meta.State
	r.phantom = true
	r.transferLog = meta.TransferLog
	r.splitPoint = meta.SplitPoint
	r.oldBoundaryRow = meta.OldBoundaryRow
	return r, nil
}
