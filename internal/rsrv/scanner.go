package rsrv

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rangekit/rangekit/internal/querycache"
	"github.com/rangekit/rangekit/internal/rrange"
	"github.com/rangekit/rangekit/internal/scan"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
)

// defaultBlockBytes is the threshold fetch_scanblock chunks a result
// into (spec.md §4.10 "next threshold-sized chunk").
const defaultBlockBytes = 64 << 10

// ScanRequest is the input to CreateScanner.
type ScanRequest struct {
	Table schema.TableIdentifier
	Range schema.RangeSpec
	Spec  *scan.Spec

	// QueryKey, if non-nil, is the caller's encoded scan-spec bytes used
	// to consult and populate the query cache (spec.md §4.10
	// "If query_key present and spec is cacheable, consult query cache
	// first"). A scan is cacheable when QueryKey is set and
	// Spec.DoNotCache is false.
	QueryKey []byte
}

// scannerEntry is one live or cache-backed scan held open by id
// (spec.md §4.10 "Scanners are reference-counted by id; a TTL reaps
// abandoned scanners").
type scannerEntry struct {
	mu sync.Mutex

	rangeScanner *rrange.RangeScanner // nil once served entirely from cache
	blocks       [][]byte
	nextBlock    int

	cacheKey     querycache.Key
	cacheable    bool
	cacheEntry   *querycache.Entry
	cached       [][]byte // accumulated result, built as blocks are produced

	lastTouch atomic.Int64 // unix nanos
	closed    bool
}

func (e *scannerEntry) touch() { e.lastTouch.Store(time.Now().UnixNano()) }

// scannerTable assigns ids and TTL-reaps abandoned scanners.
type scannerTable struct {
	ttl time.Duration
	log *slog.Logger

	mu      sync.Mutex
	next    uint64
	entries map[uint64]*scannerEntry

	stopCh chan struct{}
	doneCh chan struct{}
}

func newScannerTable(ttl time.Duration, log *slog.Logger) *scannerTable {
	t := &scannerTable{
		ttl:     ttl,
		log:     log,
		entries: make(map[uint64]*scannerEntry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go t.reapLoop()
	return t
}

func (t *scannerTable) reapLoop() {
	defer close(t.doneCh)
	interval := t.ttl / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.reapExpired()
		}
	}
}

func (t *scannerTable) reapExpired() {
	cutoff := time.Now().Add(-t.ttl).UnixNano()
	var expired []uint64
	t.mu.Lock()
	for id, e := range t.entries {
		if e.lastTouch.Load() < cutoff {
			expired = append(expired, id)
		}
	}
	t.mu.Unlock()
	for _, id := range expired {
		t.log.Warn("reaping abandoned scanner", "scanner_id", id)
		t.destroy(id)
	}
}

func (t *scannerTable) stop() {
	close(t.stopCh)
	<-t.doneCh
}

func (t *scannerTable) register(e *scannerEntry) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next
	e.touch()
	t.entries[id] = e
	return id
}

func (t *scannerTable) get(id uint64) (*scannerEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e, ok
}

func (t *scannerTable) destroy(id uint64) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		if e.rangeScanner != nil {
			_ = e.rangeScanner.Close()
		}
	}
	e.mu.Unlock()
	return true
}

// CreateScanner opens a scan (spec.md §4.10 create_scanner). On a query
// cache hit it returns a scanner id backed entirely by the cached
// result; otherwise it opens a live range scan and, if the request is
// cacheable, accumulates the full result to insert into the cache once
// the scan reaches end-of-stream.
func (s *Server) CreateScanner(req ScanRequest) (scannerID uint64, block []byte, eos bool, err error) {
	qr, re, ok := s.findByBounds(req.Table, req.Range)
	if !ok {
		return 0, nil, false, wrapErr("create_scanner", KindRange, fmt.Errorf("%w: %s %s", ErrRangeNotFound, req.Table, req.Range))
	}
	_ = qr

	cacheable := s.qcache != nil && req.QueryKey != nil && !req.Spec.DoNotCache
	if cacheable {
		key := querycache.Digest(req.QueryKey)
		if result, _, _, hit := s.qcache.Lookup(key); hit {
			e := &scannerEntry{blocks: chunkBytes(result, defaultBlockBytes)}
			id := s.scanners.register(e)
			block, eos = s.nextFromEntry(e)
			if eos {
				s.scanners.destroy(id)
			}
			return id, block, eos, nil
		}
	}

	rs := re.rng.CreateScanner(req.Spec)
	e := &scannerEntry{rangeScanner: rs, cacheable: cacheable}
	if cacheable {
		row := []byte(nil)
		if len(req.Spec.RowIntervals) > 0 {
			row = req.Spec.RowIntervals[0].Start
		}
		e.cacheKey = querycache.Digest(req.QueryKey)
		e.cacheEntry = &querycache.Entry{
			TableName: req.Table.ID,
			Row:       row,
			Columns:   familyColumnNames(req.Spec.Columns),
		}
	}
	id := s.scanners.register(e)
	block, eos, err = s.advance(e, defaultBlockBytes)
	if err != nil {
		s.scanners.destroy(id)
		return 0, nil, false, wrapErr("create_scanner", KindScanner, err)
	}
	if eos {
		s.scanners.destroy(id)
	}
	return id, block, eos, nil
}

// FetchScanBlock returns the next threshold-sized chunk of a scanner's
// result, destroying the scanner once it reaches end-of-stream (spec.md
// §4.10 fetch_scanblock).
func (s *Server) FetchScanBlock(id uint64) (block []byte, eos bool, err error) {
	e, ok := s.scanners.get(id)
	if !ok {
		return nil, false, wrapErr("fetch_scanblock", KindScanner, fmt.Errorf("%w: %d", ErrScannerNotFound, id))
	}
	e.touch()

	if e.rangeScanner == nil {
		block, eos = s.nextFromEntry(e)
		if eos {
			s.scanners.destroy(id)
		}
		return block, eos, nil
	}

	block, eos, err = s.advance(e, defaultBlockBytes)
	if err != nil {
		s.scanners.destroy(id)
		return nil, false, wrapErr("fetch_scanblock", KindScanner, err)
	}
	if eos {
		s.scanners.destroy(id)
	}
	return block, eos, nil
}

// DestroyScanner releases scanner id. It is idempotent on a missing id
// (spec.md §4.10).
func (s *Server) DestroyScanner(id uint64) {
	s.scanners.destroy(id)
}

// nextFromEntry serves the next pre-chunked cached block.
func (s *Server) nextFromEntry(e *scannerEntry) (block []byte, eos bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.nextBlock >= len(e.blocks) {
		return nil, true
	}
	block = e.blocks[e.nextBlock]
	e.nextBlock++
	return block, e.nextBlock >= len(e.blocks)
}

// advance pulls cells from a live range scanner until the accumulated
// block reaches threshold bytes or the scan ends. When the request is
// cacheable, every emitted block is also appended to the entry's
// in-flight result so the complete scan can be inserted into the query
// cache at end-of-stream.
func (s *Server) advance(e *scannerEntry, threshold int) (block []byte, eos bool, err error) {
	var buf []byte
	var cellCount int
	for {
		c, ok := e.rangeScanner.Next()
		if !ok {
			break
		}
		cellCount++
		start := len(buf)
		buf = append(buf, make([]byte, cell.EncodedLen(c.Key, c.Value))...)
		cell.Encode(buf[start:], c.Key, c.Value)
		if len(buf) >= threshold {
			break
		}
	}
	atEOS := false
	if len(buf) < threshold {
		atEOS = true
	}

	if e.cacheable {
		e.cached = append(e.cached, buf)
	}
	if atEOS {
		if cerr := e.rangeScanner.Close(); cerr != nil {
			return nil, false, cerr
		}
		if e.cacheable && s.qcache != nil {
			s.finalizeCacheEntry(e)
		}
	}
	return buf, atEOS, nil
}

func (s *Server) finalizeCacheEntry(e *scannerEntry) {
	var total []byte
	for _, b := range e.cached {
		total = append(total, b...)
	}
	e.cacheEntry.ResultBytes = total
	e.cacheEntry.ResultLen = len(total)
	if err := s.qcache.Insert(e.cacheKey, e.cacheEntry); err != nil && err != querycache.ErrTooLarge {
		s.log.Warn("query cache insert failed", "error", err)
	}
}

// chunkBytes splits data into threshold-sized slices, in order.
func chunkBytes(data []byte, threshold int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var out [][]byte
	for off := 0; off < len(data); off += threshold {
		end := off + threshold
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[off:end])
	}
	return out
}

// familyColumnNames translates a scan's requested family-id set into
// the column set the query cache indexes on: one "cf:<id>" string per
// requested family id (the family's schema name is not used), which
// Invalidate compares against its own column set (spec.md §4.12
// "column_set").
func familyColumnNames(families map[uint8]bool) map[string]bool {
	if families == nil {
		return nil
	}
	out := make(map[string]bool, len(families))
	for id, want := range families {
		if want {
			out[fmt.Sprintf("cf:%d", id)] = true
		}
	}
	return out
}
