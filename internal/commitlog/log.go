package commitlog

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rangekit/rangekit/internal/codec"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/cell"
)

// Options configures a Log.
type Options struct {
	FS         storagefs.FS
	Dir        string
	RollLimit  int64 // bytes; 0 means a built-in default
	Codec      codec.Type
	ClusterID  uint64
	// RangeReferenceRequired toggles the stricter purge policy described in
	// spec.md §4.2/§9: when true, a fragment is only eligible for purge if
	// every range that ever referenced it has explicitly dropped the
	// reference. This is a per-log setting (system vs. user tables
	// typically differ) rather than a global default.
	RangeReferenceRequired bool
	// Referenced, if non-nil, reports whether fragment num still has an
	// outstanding reference (e.g. a live range whose oldest unflushed
	// revision falls within it). Nil means every closed fragment is
	// immediately eligible once its revision is below the purge cutoff.
	// It is consulted only when RangeReferenceRequired is true.
	Referenced func(num int64) bool
}

const defaultRollLimit = 256 << 20 // 256 MiB

type currentFragment struct {
	num      int64
	w        storagefs.WriteCloser
	size     int64
	revision int64
}

// Log is a chunked, rolling, compressed, crash-safe append-only commit
// log directory (spec.md §4.2).
type Log struct {
	mu sync.Mutex

	fs        storagefs.FS
	dir       string
	rollLimit int64
	codec     codec.Type
	clusterID uint64
	refReq    bool
	referenced func(int64) bool

	fragments []FragmentDescriptor // closed fragments, oldest first
	reapSet   []FragmentDescriptor // closed fragments pinned by a reference, retried each purge
	linked    map[string]struct{}  // directories already folded in via LinkLog

	current *currentFragment
	closed  bool
}

// Open opens (or creates) the commit log directory at opts.Dir, replaying
// its existing fragment list.
func Open(opts Options) (*Log, error) {
	if opts.FS == nil {
		return nil, fmt.Errorf("commitlog: Options.FS is required")
	}
	rollLimit := opts.RollLimit
	if rollLimit <= 0 {
		rollLimit = defaultRollLimit
	}
	if err := opts.FS.MkdirAll(opts.Dir); err != nil {
		return nil, fmt.Errorf("commitlog: mkdir %s: %w", opts.Dir, err)
	}
	l := &Log{
		fs:         opts.FS,
		dir:        opts.Dir,
		rollLimit:  rollLimit,
		codec:      opts.Codec,
		clusterID:  opts.ClusterID,
		refReq:     opts.RangeReferenceRequired,
		referenced: opts.Referenced,
		linked:     make(map[string]struct{}),
	}
	if err := l.replayExisting(); err != nil {
		return nil, err
	}
	if err := l.openNewFragment(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) replayExisting() error {
	names, err := l.fs.List(l.dir)
	if err != nil {
		return fmt.Errorf("commitlog: list %s: %w", l.dir, err)
	}
	for _, name := range names {
		num, err := strconv.ParseInt(strings.TrimLeft(name, "0"), 10, 64)
		if err != nil {
			if strings.TrimLeft(name, "0") == "" {
				num = 0
			} else {
				continue // not a fragment file
			}
		}
		size, err := l.fs.Size(path.Join(l.dir, name))
		if err != nil {
			return err
		}
		rev, err := l.scanFragmentRevision(path.Join(l.dir, name))
		if err != nil {
			return err
		}
		l.fragments = append(l.fragments, FragmentDescriptor{Dir: l.dir, Num: num, Size: size, Revision: rev})
	}
	sort.Slice(l.fragments, func(i, j int) bool { return l.fragments[i].Num < l.fragments[j].Num })
	return nil
}

func (l *Log) scanFragmentRevision(filePath string) (int64, error) {
	r, err := l.fs.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	size, err := r.Size()
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, nil
	}
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return 0, err
	}
	if err := decodeFragmentHeader(buf); err != nil {
		return 0, err
	}
	off := fragmentHeaderSize
	var maxRev int64
	for off < len(buf) {
		h, err := decodeBlockHeader(buf[off:])
		if err != nil {
			break // a trailing partial block is tolerated on replay
		}
		off += blockHeaderSize
		if off+int(h.CompressedLen) > len(buf) {
			break
		}
		if h.Revision > maxRev {
			maxRev = h.Revision
		}
		off += int(h.CompressedLen)
	}
	return maxRev, nil
}

func (l *Log) nextFragmentNum() int64 {
	if len(l.fragments) == 0 {
		return 0
	}
	return l.fragments[len(l.fragments)-1].Num + 1
}

func (l *Log) openNewFragment() error {
	num := l.nextFragmentNum()
	if l.current != nil {
		num = l.current.num + 1
	}
	p := path.Join(l.dir, fragmentFileName(num))
	w, err := l.fs.Create(p)
	if err != nil {
		return fmt.Errorf("commitlog: create fragment %d: %w", num, err)
	}
	header := encodeFragmentHeader()
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("commitlog: write fragment header: %w", err)
	}
	l.current = &currentFragment{num: num, w: w, size: int64(len(header))}
	return nil
}

// AppendOptions controls a single Append call.
type AppendOptions struct {
	Sync bool
}

// Append frames cells as one COMMITDATA block, compresses and checksums
// it, and appends it to the current fragment, rolling to a new fragment
// first if the roll limit has been exceeded.
func (l *Log) Append(cells []cell.Cell, opts AppendOptions) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	if len(cells) == 0 {
		return 0, nil
	}

	payload := encodeCellBatch(cells)
	revision := maxRevision(cells)

	if err := l.appendBlockLocked(false, payload, revision, opts.Sync); err != nil {
		l.closed = true
		return 0, err
	}
	return revision, nil
}

func (l *Log) appendBlockLocked(link bool, payload []byte, revision int64, sync bool) error {
	compressed, err := codec.Compress(l.codec, payload)
	if err != nil {
		return fmt.Errorf("commitlog: compress: %w", err)
	}
	header := blockHeader{
		Link:            link,
		Compression:     l.codec,
		UncompressedLen: uint32(len(payload)),
		CompressedLen:   uint32(len(compressed)),
		Revision:        revision,
		ClusterID:       l.clusterID,
		PayloadChecksum: codec.Fletcher32(compressed),
	}
	block := append(encodeBlockHeader(header), compressed...)

	if _, err := l.current.w.Write(block); err != nil {
		return fmt.Errorf("commitlog: append: %w", err)
	}
	l.current.size += int64(len(block))
	if revision > l.current.revision {
		l.current.revision = revision
	}
	if sync {
		if err := l.current.w.Sync(); err != nil {
			return fmt.Errorf("commitlog: sync: %w", err)
		}
	}
	if l.current.size >= l.rollLimit {
		if err := l.rollLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Log) rollLocked() error {
	closedNum := l.current.num
	closedSize := l.current.size
	closedRev := l.current.revision
	if err := l.current.w.Sync(); err != nil {
		return fmt.Errorf("commitlog: roll sync: %w", err)
	}
	if err := l.current.w.Close(); err != nil {
		return fmt.Errorf("commitlog: roll close: %w", err)
	}
	l.fragments = append(l.fragments, FragmentDescriptor{Dir: l.dir, Num: closedNum, Size: closedSize, Revision: closedRev})
	return l.openNewFragment()
}

// Roll forces the current fragment closed and starts a new one, even if
// it has not reached the roll limit.
func (l *Log) Roll() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.rollLocked()
}

// LinkLog writes a COMMITLINK block recording other's directory, then
// transfers other's closed fragments and its current open fragment into
// this log's queue, merged in revision order. Linking the same directory twice is a no-op
// (spec.md §8 idempotence law).
func (l *Log) LinkLog(other *Log) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if _, ok := l.linked[other.dir]; ok {
		return nil
	}

	payload := append([]byte(other.dir), 0)
	if err := l.appendBlockLocked(true, payload, l.current.revision, false); err != nil {
		l.closed = true
		return err
	}
	l.linked[other.dir] = struct{}{}

	other.mu.Lock()
	incoming := append(append([]FragmentDescriptor(nil), other.fragments...), FragmentDescriptor{
		Dir: other.dir, Num: other.current.num, Size: other.current.size, Revision: other.current.revision,
	})
	other.mu.Unlock()

	l.fragments = mergeByRevision(l.fragments, incoming)
	return nil
}

func mergeByRevision(a, b []FragmentDescriptor) []FragmentDescriptor {
	merged := append(append([]FragmentDescriptor(nil), a...), b...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Revision < merged[j].Revision })
	return merged
}

// Purge deletes every fragment whose Revision is strictly below cutoff and
// that is not held back by an outstanding reference. Fragments that are
// referenced are moved to (or kept in) a reap set and retried on the next
// call. It never deletes a fragment with Revision >= cutoff.
func (l *Log) Purge(cutoff int64) ([]FragmentDescriptor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	candidates := append(append([]FragmentDescriptor(nil), l.reapSet...), l.fragments...)
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Revision < candidates[j].Revision })

	var removed []FragmentDescriptor
	var reap []FragmentDescriptor
	var kept []FragmentDescriptor
	for _, f := range candidates {
		if f.Revision >= cutoff {
			kept = append(kept, f)
			continue
		}
		if l.eligible(f) {
			p := path.Join(f.Dir, fragmentFileName(f.Num))
			if err := l.fs.Remove(p); err != nil {
				// A failed remove (including not-found) is not reported
				// and does not end the pass: the fragment stays in the
				// reap set and is retried on the next purge.
				reap = append(reap, f)
				continue
			}
			removed = append(removed, f)
			continue
		}
		reap = append(reap, f)
	}

	l.fragments = kept
	l.reapSet = reap
	return removed, nil
}

func (l *Log) eligible(f FragmentDescriptor) bool {
	if l.referenced == nil {
		return true
	}
	if !l.refReq {
		return true
	}
	return !l.referenced(f.Num)
}

// Close flushes and closes the current fragment, marking the log CLOSED;
// every subsequent operation returns ErrClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.current == nil {
		return nil
	}
	if err := l.current.w.Sync(); err != nil {
		return err
	}
	return l.current.w.Close()
}

// Fragments returns a snapshot of the closed fragment queue, in order.
func (l *Log) Fragments() []FragmentDescriptor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FragmentDescriptor(nil), l.fragments...)
}

// CurrentSize reports the byte-exact size of the open fragment.
func (l *Log) CurrentSize() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return 0
	}
	return l.current.size
}

func maxRevision(cells []cell.Cell) int64 {
	var max int64
	for _, c := range cells {
		if c.Key.Revision > max {
			max = c.Key.Revision
		}
	}
	return max
}

func encodeCellBatch(cells []cell.Cell) []byte {
	total := 4
	for _, c := range cells {
		total += cell.EncodedLen(c.Key, c.Value)
	}
	buf := make([]byte, total)
	off := 0
	// 4-byte count prefix lets the reader pre-size its cell slice.
	buf[0] = byte(len(cells))
	buf[1] = byte(len(cells) >> 8)
	buf[2] = byte(len(cells) >> 16)
	buf[3] = byte(len(cells) >> 24)
	off += 4
	for _, c := range cells {
		off += cell.Encode(buf[off:], c.Key, c.Value)
	}
	return buf[:off]
}
