package cellstore

import (
	"fmt"
	"sort"

	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/internal/wire"
	"github.com/rangekit/rangekit/pkg/cell"
)

// trailerReadChunk is the amount read from the tail of a file to recover
// the trailer without a second round trip for the common case, standing
// in for the HT_DIRECT_IO_ALIGNMENT-aligned read spec.md §4.4 describes.
const trailerReadChunk = 4096

// Reader is an open, immutable cell store file.
type Reader struct {
	fs      storagefs.FS
	path    string
	r       storagefs.ReadCloser
	size    int64
	trailer Trailer
	index   []indexRef
	bloom   *bloomFilter
}

type indexRef struct {
	key         cell.Key
	blockOffset uint64
	blockLen    uint32
}

// Open opens path, verifying its trailer and loading its block index
// and Bloom filter into memory. On a checksum mismatch the caller should
// retry via OpenVerified, which re-reads every block eagerly (spec.md
// §4.4 "reopened with verify-checksum mode").
func Open(fs storagefs.FS, path string) (*Reader, error) {
	return open(fs, path, false)
}

// OpenVerified is Open's fallback path: it eagerly decodes every block
// once so a corrupt block is detected at open time rather than during a
// scan.
func OpenVerified(fs storagefs.FS, path string) (*Reader, error) {
	return open(fs, path, true)
}

func open(fs storagefs.FS, path string, verify bool) (*Reader, error) {
	rc, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cellstore: open %s: %w", path, err)
	}
	size, err := rc.Size()
	if err != nil {
		rc.Close()
		return nil, err
	}

	chunkLen := int64(trailerReadChunk)
	if chunkLen > size {
		chunkLen = size
	}
	tail := make([]byte, chunkLen)
	if _, err := rc.ReadAt(tail, size-chunkLen); err != nil {
		rc.Close()
		return nil, fmt.Errorf("cellstore: read trailer of %s: %w", path, err)
	}
	trailer, err := decodeTrailer(tail)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("cellstore: %s: %w", path, err)
	}

	r := &Reader{fs: fs, path: path, r: rc, size: size, trailer: trailer}
	if err := r.loadIndex(); err != nil {
		rc.Close()
		return nil, err
	}
	if trailer.BloomMode != BloomNone && trailer.FilterLength > 0 {
		bits := make([]byte, trailer.FilterLength)
		if _, err := rc.ReadAt(bits, int64(trailer.FilterOffset)); err != nil {
			rc.Close()
			return nil, fmt.Errorf("cellstore: read bloom filter of %s: %w", path, err)
		}
		r.bloom = loadBloomFilter(bits, int(trailer.BloomHashCount))
	}
	if verify {
		if err := r.verifyAllBlocks(); err != nil {
			rc.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *Reader) loadIndex() error {
	t := r.trailer
	varBlob := make([]byte, t.FixIndexOffset-t.VarIndexOffset)
	if len(varBlob) > 0 {
		if _, err := r.r.ReadAt(varBlob, int64(t.VarIndexOffset)); err != nil {
			return fmt.Errorf("cellstore: read var index: %w", err)
		}
	}
	fixLen := t.IndexEntries * fixIndexEntrySize
	fixBlob := make([]byte, fixLen)
	if len(fixBlob) > 0 {
		if _, err := r.r.ReadAt(fixBlob, int64(t.FixIndexOffset)); err != nil {
			return fmt.Errorf("cellstore: read fix index: %w", err)
		}
	}
	r.index = make([]indexRef, 0, t.IndexEntries)
	for i := uint32(0); i < t.IndexEntries; i++ {
		e := fixBlob[i*fixIndexEntrySize:]
		keyOff := wire.U32(e)
		keyLen := wire.U32(e[4:])
		blockOffset := wire.U64(e[8:])
		blockLen := wire.U32(e[16:])
		c, _, err := cell.Decode(varBlob[keyOff : keyOff+keyLen])
		if err != nil {
			return fmt.Errorf("cellstore: decode index key %d: %w", i, err)
		}
		r.index = append(r.index, indexRef{key: c.Key, blockOffset: blockOffset, blockLen: blockLen})
	}
	return nil
}

func (r *Reader) verifyAllBlocks() error {
	for _, ref := range r.index {
		if _, err := r.readBlock(ref); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) readBlock(ref indexRef) ([]cell.Cell, error) {
	buf := make([]byte, ref.blockLen)
	if _, err := r.r.ReadAt(buf, int64(ref.blockOffset)); err != nil {
		return nil, fmt.Errorf("cellstore: read block at %d: %w", ref.blockOffset, err)
	}
	payload, _, err := decodeBlock(r.trailer.Compression, buf)
	if err != nil {
		return nil, err
	}
	var cells []cell.Cell
	off := 0
	for off < len(payload) {
		c, n, err := cell.Decode(payload[off:])
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
		off += n
	}
	return cells, nil
}

// MayContain reports the Bloom filter's verdict for item, built per the
// store's configured BloomMode. A store with no filter always returns
// true (no short-circuit possible).
func (r *Reader) MayContain(item []byte) bool {
	if r.bloom == nil {
		return true
	}
	return r.bloom.MayContain(item)
}

// Trailer returns the store's decoded trailer.
func (r *Reader) Trailer() Trailer { return r.trailer }

// Path returns the filesystem path this reader was opened from.
func (r *Reader) Path() string { return r.path }

// MidpointRow returns the row of the block-index entry nearest the
// middle of the store, used as a split-row candidate (spec.md §4.5
// "split-row estimate derived from its cell-store block index
// midpoints").
func (r *Reader) MidpointRow() ([]byte, bool) {
	if len(r.index) == 0 {
		return nil, false
	}
	mid := r.index[len(r.index)/2]
	return append([]byte(nil), mid.key.Row...), true
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.r.Close() }

// Scan returns a scan.Source over cells whose row falls within
// [startRow, endRow]. It uses the block index to locate the first
// candidate block and decompresses blocks lazily as the scan advances
// (spec.md §4.4 read path).
func (r *Reader) Scan(startRow, endRow []byte) *StoreScanner {
	// first is the index of the last block whose first key's row is <
	// startRow (or 0) — the first block that can possibly hold startRow.
	first := sort.Search(len(r.index), func(i int) bool {
		return string(r.index[i].key.Row) >= string(startRow)
	})
	if first > 0 {
		first--
	}
	s := &StoreScanner{r: r, blockIdx: first, endRow: append([]byte(nil), endRow...)}
	for {
		c, ok := s.Peek()
		if !ok || string(c.Key.Row) >= string(startRow) {
			break
		}
		s.Advance()
	}
	return s
}

// StoreScanner implements scan.Source over one cell store file.
type StoreScanner struct {
	r        *Reader
	blockIdx int
	cells    []cell.Cell
	pos      int
	endRow   []byte
	done     bool
}

func (s *StoreScanner) fill() {
	for !s.done && s.pos >= len(s.cells) {
		if s.blockIdx >= len(s.r.index) {
			s.done = true
			return
		}
		cells, err := s.r.readBlock(s.r.index[s.blockIdx])
		s.blockIdx++
		if err != nil {
			s.done = true
			return
		}
		s.cells = cells
		s.pos = 0
	}
}

// Peek implements scan.Source.
func (s *StoreScanner) Peek() (cell.Cell, bool) {
	s.fill()
	if s.done || s.pos >= len(s.cells) {
		return cell.Cell{}, false
	}
	c := s.cells[s.pos]
	if len(s.endRow) > 0 && string(c.Key.Row) > string(s.endRow) {
		s.done = true
		return cell.Cell{}, false
	}
	return c, true
}

// Advance implements scan.Source.
func (s *StoreScanner) Advance() {
	if s.pos < len(s.cells) {
		s.pos++
	}
}

// Close implements scan.Source.
func (s *StoreScanner) Close() error { return nil }
