package rsrv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rangekit/rangekit/internal/commitlog"
	"github.com/rangekit/rangekit/internal/pipeline"
	"github.com/rangekit/rangekit/internal/querycache"
	"github.com/rangekit/rangekit/internal/rrange"
	"github.com/rangekit/rangekit/internal/rsml"
	"github.com/rangekit/rangekit/internal/scheduler"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/schema"
)

// rangeEntry is one range this server currently holds, plus the commit
// log its writes append through. LoadRange opens a separate commit log
// for each range it loads; Close closes each distinct log once.
type rangeEntry struct {
	rng *rrange.Range
	log *commitlog.Log
}

// tableEntry is a registered table's schema plus whether it is a
// system/metadata table (forces fsync on every update, spec.md §4.9).
type tableEntry struct {
	schema *schema.Schema
	isMeta bool
}

// Options configures a Server.
type Options struct {
	FS     storagefs.FS
	RSML   *rsml.Log
	Logger *slog.Logger

	QueryCacheBytes int64 // 0 disables the query cache

	// MemoryPressureBytes is the aggregate in-memory cell-cache size,
	// summed across every held range, at or above which
	// MaintenanceCandidates reports memory pressure to the scheduler
	// (spec.md §4.14 "ranges under memory pressure → PURGE shadow
	// caches"). 0 disables the signal.
	MemoryPressureBytes int64

	ScannerTTL time.Duration // 0 means a built-in default

	Pipeline pipeline.Options // Catalog/Router are filled in by NewServer
}

const defaultScannerTTL = 5 * time.Minute

// Server is the range server's request surface: it owns the working set
// of ranges, the scanner table, the update pipeline, and the optional
// query cache (spec.md §4.10).
type Server struct {
	opts Options
	log  *slog.Logger

	mu      sync.RWMutex
	tables  map[string]tableEntry
	ranges  map[schema.QualifiedRange]*rangeEntry

	scanners *scannerTable

	pipeline *pipeline.Pipeline
	qcache   *querycache.Cache

	closed bool
}

// New constructs a Server and starts its update pipeline. Call Close to
// shut the pipeline down cleanly.
func New(opts Options) (*Server, error) {
	if opts.FS == nil {
		return nil, fmt.Errorf("rsrv: Options.FS is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ttl := opts.ScannerTTL
	if ttl <= 0 {
		ttl = defaultScannerTTL
	}

	s := &Server{
		opts:   opts,
		log:    log,
		tables: make(map[string]tableEntry),
		ranges: make(map[schema.QualifiedRange]*rangeEntry),
	}
	s.scanners = newScannerTable(ttl, log)

	var qc *querycache.Cache
	if opts.QueryCacheBytes > 0 {
		var err error
		qc, err = querycache.New(opts.QueryCacheBytes)
		if err != nil {
			return nil, fmt.Errorf("rsrv: query cache: %w", err)
		}
	}
	s.qcache = qc

	popts := opts.Pipeline
	popts.Catalog = s
	popts.Router = s
	if popts.Logger == nil {
		popts.Logger = log
	}
	p, err := pipeline.New(popts)
	if err != nil {
		return nil, fmt.Errorf("rsrv: pipeline: %w", err)
	}
	s.pipeline = p
	s.pipeline.Start()

	return s, nil
}

// RegisterTable makes a table's schema known to the server, so
// TableInfo (and therefore the update pipeline's qualify stage) can
// resolve it.
func (s *Server) RegisterTable(table schema.TableIdentifier, sch *schema.Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table.ID] = tableEntry{schema: sch, isMeta: table.IsSystem() || table.IsMetadata()}
}

// TableInfo implements pipeline.Catalog.
func (s *Server) TableInfo(table schema.TableIdentifier) (pipeline.TableInfo, error) {
	s.mu.RLock()
	te, ok := s.tables[table.ID]
	s.mu.RUnlock()
	if !ok {
		return pipeline.TableInfo{}, fmt.Errorf("%w: %s", pipeline.ErrUnknownTable, table.ID)
	}
	return pipeline.TableInfo{Schema: te.schema, IsMeta: te.isMeta}, nil
}

// AddRange puts rng (plus the commit log it writes through) into the
// server's working set under its current table and boundary.
func (s *Server) AddRange(table schema.TableIdentifier, rng *rrange.Range, log *commitlog.Log) {
	qr := schema.QualifiedRange{Table: table, Range: rng.Spec()}
	s.mu.Lock()
	s.ranges[qr] = &rangeEntry{rng: rng, log: log}
	s.mu.Unlock()
}

// removeRange drops the working-set entry for qr, returning it if
// present.
func (s *Server) removeRange(qr schema.QualifiedRange) *rangeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ranges[qr]
	if !ok {
		return nil
	}
	delete(s.ranges, qr)
	return e
}

// findRange locates the working-set entry covering (table, row),
// re-keying on each live range's current boundary rather than the
// original QualifiedRange so a mid-flight split's shrunk range is still
// found (spec.md §4.6 "Split" changes the range's own Spec in place).
func (s *Server) findRange(table schema.TableIdentifier, row []byte) *rangeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for qr, e := range s.ranges {
		if qr.Table.ID != table.ID {
			continue
		}
		if e.rng.Spec().Contains(row) {
			return e
		}
	}
	return nil
}

// findByBounds locates the working-set entry whose current boundary
// exactly matches spec, for operations addressed by range identity
// rather than by a row within it (load/acknowledge/relinquish/drop).
func (s *Server) findByBounds(table schema.TableIdentifier, spec schema.RangeSpec) (schema.QualifiedRange, *rangeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for qr, e := range s.ranges {
		if qr.Table.ID != table.ID {
			continue
		}
		cur := e.rng.Spec()
		if string(cur.StartRow) == string(spec.StartRow) && string(cur.EndRow) == string(spec.EndRow) {
			return qr, e, true
		}
	}
	return schema.QualifiedRange{}, nil, false
}

// RouteRange implements pipeline.Router.
func (s *Server) RouteRange(table schema.TableIdentifier, row []byte) (*pipeline.RangeTarget, error) {
	e := s.findRange(table, row)
	if e == nil {
		return nil, pipeline.ErrNoRange
	}
	if e.rng.Phantom() {
		return nil, fmt.Errorf("%w: range is phantom", pipeline.ErrNoRange)
	}
	return &pipeline.RangeTarget{Range: e.rng, CommitLog: e.log}, nil
}

// RangeCount reports how many ranges this server currently holds.
func (s *Server) RangeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ranges)
}

// MaintenanceCandidates implements scheduler.RangeLister: every held
// range, plus whether this server's aggregate in-memory footprint has
// crossed Options.MemoryPressureBytes.
func (s *Server) MaintenanceCandidates() ([]scheduler.RangeHandle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handles := make([]scheduler.RangeHandle, 0, len(s.ranges))
	var totalMem int64
	for _, e := range s.ranges {
		handles = append(handles, e.rng)
		totalMem += e.rng.BytesInMemory()
	}
	pressure := s.opts.MemoryPressureBytes > 0 && totalMem >= s.opts.MemoryPressureBytes
	return handles, pressure
}

// PurgeShadowCaches drops this server's query cache. It is the
// scheduler's node-wide PriorityPurgeMemory action (spec.md §4.14):
// the query cache holds only reconstructible copies of stored results,
// so dropping it frees memory without losing data.
func (s *Server) PurgeShadowCaches() error {
	if s.qcache != nil {
		s.qcache.Purge()
	}
	return nil
}

// Close stops accepting new updates, drains the pipeline, and closes
// every held commit log.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	logs := make([]*commitlog.Log, 0, len(s.ranges))
	for _, e := range s.ranges {
		logs = append(logs, e.log)
	}
	s.mu.Unlock()

	s.scanners.stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.pipeline.Shutdown(ctx); err != nil {
		s.log.Warn("pipeline shutdown did not drain cleanly", "error", err)
	}

	var firstErr error
	seen := make(map[*commitlog.Log]bool)
	for _, l := range logs {
		if l == nil || seen[l] {
			continue
		}
		seen[l] = true
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
