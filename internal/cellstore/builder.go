package cellstore

import (
	"fmt"
	"time"

	"github.com/rangekit/rangekit/internal/codec"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/internal/wire"
	"github.com/rangekit/rangekit/pkg/cell"
)

// defaultBlockSize is the target uncompressed size of one block before it
// is flushed, compressed, and written (spec.md §4.4 "until a block fills
// (target size)").
const defaultBlockSize = 64 << 10

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	FS              storagefs.FS
	Path            string
	BlockSize       int // 0 uses defaultBlockSize
	Codec           codec.Type
	BloomMode       BloomMode
	BloomFPRate     float64 // 0 uses 0.01
	TableID         uint32
	TableGeneration uint32
}

type indexEntry struct {
	key         cell.Key
	blockOffset uint64
	blockLen    uint32
}

// Builder accepts cells in strictly ascending key order and produces one
// cell store file: compressed blocks, a block index, an optional Bloom
// filter, and a trailer (spec.md §4.4 write path).
type Builder struct {
	opts BuilderOptions
	w    storagefs.WriteCloser

	offset uint64
	blocks []indexEntry

	blockBuf     []byte // accumulates encoded cells for the current block
	blockFirst   cell.Key
	haveFirstKey bool

	bloom     []byte // keys fed to the bloom filter, keyed by BloomMode
	totalKeys int

	totalEntries uint64
	keyBytes     uint64
	valueBytes   uint64
	tsMin, tsMax int64
	haveTS       bool
	revision     int64

	bloomAccum [][]byte
}

// NewBuilder creates the destination file at opts.Path and returns a
// Builder ready to accept cells.
func NewBuilder(opts BuilderOptions) (*Builder, error) {
	if opts.BlockSize <= 0 {
		opts.BlockSize = defaultBlockSize
	}
	if opts.BloomFPRate <= 0 {
		opts.BloomFPRate = 0.01
	}
	w, err := opts.FS.Create(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("cellstore: create %s: %w", opts.Path, err)
	}
	return &Builder{opts: opts, w: w}, nil
}

// Add appends one cell. Cells must arrive in ascending cell.Compare order;
// the builder does not re-sort.
func (b *Builder) Add(c cell.Cell) error {
	if !b.haveFirstKey {
		b.blockFirst = c.Key
		b.haveFirstKey = true
	}
	n := cell.EncodedLen(c.Key, c.Value)
	start := len(b.blockBuf)
	b.blockBuf = append(b.blockBuf, make([]byte, n)...)
	cell.Encode(b.blockBuf[start:], c.Key, c.Value)

	b.totalEntries++
	b.keyBytes += uint64(len(c.Key.Row) + len(c.Key.ColumnQualifier))
	b.valueBytes += uint64(len(c.Value))
	if !b.haveTS {
		b.tsMin, b.tsMax = c.Key.Timestamp, c.Key.Timestamp
		b.haveTS = true
	} else {
		if c.Key.Timestamp < b.tsMin {
			b.tsMin = c.Key.Timestamp
		}
		if c.Key.Timestamp > b.tsMax {
			b.tsMax = c.Key.Timestamp
		}
	}
	if c.Key.Revision > b.revision {
		b.revision = c.Key.Revision
	}
	if b.opts.BloomMode != BloomNone {
		b.bloomAccum = append(b.bloomAccum, bloomKey(b.opts.BloomMode, c.Key))
	}

	if len(b.blockBuf) >= b.opts.BlockSize {
		return b.flushBlock()
	}
	return nil
}

func bloomKey(mode BloomMode, k cell.Key) []byte {
	switch mode {
	case BloomRow:
		return append([]byte(nil), k.Row...)
	case BloomRowFamily:
		return append(append([]byte(nil), k.Row...), k.ColumnFamilyID)
	case BloomRowFamilyQualifier:
		out := append([]byte(nil), k.Row...)
		out = append(out, k.ColumnFamilyID)
		return append(out, k.ColumnQualifier...)
	default:
		return nil
	}
}

func (b *Builder) flushBlock() error {
	if len(b.blockBuf) == 0 {
		return nil
	}
	encoded, err := encodeBlock(nil, b.opts.Codec, b.blockBuf)
	if err != nil {
		return err
	}
	if _, err := b.w.Write(encoded); err != nil {
		return fmt.Errorf("cellstore: write block: %w", err)
	}
	b.blocks = append(b.blocks, indexEntry{
		key:         b.blockFirst,
		blockOffset: b.offset,
		blockLen:    uint32(len(encoded)),
	})
	b.offset += uint64(len(encoded))
	b.blockBuf = b.blockBuf[:0]
	b.haveFirstKey = false
	return nil
}

// Finalize flushes any pending block, writes the index, optional Bloom
// filter, and trailer, and closes the underlying file.
func (b *Builder) Finalize() (Trailer, error) {
	if err := b.flushBlock(); err != nil {
		return Trailer{}, err
	}

	varIndexOffset := b.offset
	var varBlob []byte
	fixEntries := make([]byte, 0, len(b.blocks)*fixIndexEntrySize)
	for _, e := range b.blocks {
		keyOff := len(varBlob)
		keyBuf := make([]byte, cell.EncodedLen(e.key, nil))
		cell.Encode(keyBuf, e.key, nil)
		varBlob = append(varBlob, keyBuf...)

		entry := make([]byte, fixIndexEntrySize)
		wire.PutU32(entry, uint32(keyOff))
		wire.PutU32(entry[4:], uint32(len(keyBuf)))
		wire.PutU64(entry[8:], e.blockOffset)
		wire.PutU32(entry[16:], e.blockLen)
		fixEntries = append(fixEntries, entry...)
	}
	if _, err := b.w.Write(varBlob); err != nil {
		return Trailer{}, fmt.Errorf("cellstore: write var index: %w", err)
	}
	b.offset += uint64(len(varBlob))

	fixIndexOffset := b.offset
	if _, err := b.w.Write(fixEntries); err != nil {
		return Trailer{}, fmt.Errorf("cellstore: write fix index: %w", err)
	}
	b.offset += uint64(len(fixEntries))

	var filterOffset uint64
	var filterLen uint64
	var hashCount uint8
	var itemsEstimate, itemsActual uint32
	if b.opts.BloomMode != BloomNone && len(b.bloomAccum) > 0 {
		filter := newBloomFilter(len(b.bloomAccum), b.opts.BloomFPRate)
		for _, k := range b.bloomAccum {
			filter.Add(k)
		}
		filterOffset = b.offset
		if _, err := b.w.Write(filter.bits); err != nil {
			return Trailer{}, fmt.Errorf("cellstore: write bloom filter: %w", err)
		}
		b.offset += uint64(len(filter.bits))
		filterLen = uint64(len(filter.bits))
		hashCount = uint8(filter.k)
		itemsEstimate = uint32(len(b.bloomAccum))
		itemsActual = uint32(len(b.bloomAccum))
	}

	ratio := float32(1)
	if b.valueBytes+b.keyBytes > 0 {
		ratio = float32(b.offset) / float32(b.keyBytes+b.valueBytes)
	}
	trailer := Trailer{
		FixIndexOffset:      fixIndexOffset,
		VarIndexOffset:      varIndexOffset,
		FilterOffset:        filterOffset,
		IndexEntries:        uint32(len(b.blocks)),
		TotalEntries:        b.totalEntries,
		FilterLength:        filterLen,
		FilterItemsEstimate: itemsEstimate,
		FilterItemsActual:   itemsActual,
		BlockSize:           uint32(b.opts.BlockSize),
		CompressionRatio:    ratio,
		KeyBytes:            b.keyBytes,
		ValueBytes:          b.valueBytes,
		Compression:         b.opts.Codec,
		BloomMode:           b.opts.BloomMode,
		BloomHashCount:      hashCount,
		CreateTime:          time.Now().UnixNano(),
		Revision:            b.revision,
		TimestampMin:        b.tsMin,
		TimestampMax:        b.tsMax,
		TableID:             b.opts.TableID,
		TableGeneration:     b.opts.TableGeneration,
		Version:             LatestTrailerVersion,
	}
	if _, err := b.w.Write(encodeTrailer(trailer)); err != nil {
		return Trailer{}, fmt.Errorf("cellstore: write trailer: %w", err)
	}
	if err := b.w.Sync(); err != nil {
		return Trailer{}, fmt.Errorf("cellstore: sync: %w", err)
	}
	if err := b.w.Close(); err != nil {
		return Trailer{}, fmt.Errorf("cellstore: close: %w", err)
	}
	return trailer, nil
}

// fixIndexEntrySize is the encoded size of one fixed-index entry:
// key offset (u32) + key length (u32) + block offset (u64) + block
// length (u32).
const fixIndexEntrySize = 4 + 4 + 8 + 4
