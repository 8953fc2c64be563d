package cellstore

import (
	"fmt"
	"math"

	"github.com/rangekit/rangekit/internal/codec"
	"github.com/rangekit/rangekit/internal/wire"
)

// LatestTrailerVersion is the newest trailer version this package both
// reads and writes.
const LatestTrailerVersion uint16 = 7

// trailerSizeV7 is the exact encoded size of a v7 trailer in bytes.
const trailerSizeV7 = 122

// ErrUnknownVersion is returned when a trailer's version tag exceeds
// LatestTrailerVersion, per spec.md §6: "a trailer with version >
// latest-supported is rejected."
var ErrUnknownVersion = fmt.Errorf("cellstore: unknown trailer version")

// ErrUnsupportedTrailerVersion is returned for a trailer version that is
// named by the specification but whose on-disk layout this package does
// not implement (spec.md's listed v0..v6).
var ErrUnsupportedTrailerVersion = fmt.Errorf("cellstore: unsupported (legacy) trailer version")

// BloomMode selects what a block's Bloom filter hashes.
type BloomMode uint8

const (
	BloomNone BloomMode = iota
	BloomRow
	BloomRowFamily
	BloomRowFamilyQualifier
)

// ParseBloomMode maps a schema-configured Bloom filter mode name to a
// BloomMode. An unrecognized or empty name yields BloomNone.
func ParseBloomMode(name string) BloomMode {
	switch name {
	case "row":
		return BloomRow
	case "row+cf":
		return BloomRowFamily
	case "row+cf+cq":
		return BloomRowFamilyQualifier
	default:
		return BloomNone
	}
}

// Trailer is the fully decoded v7 trailer (spec.md §6.2).
type Trailer struct {
	FixIndexOffset      uint64
	VarIndexOffset      uint64
	FilterOffset        uint64
	IndexEntries        uint32
	TotalEntries        uint64
	FilterLength        uint64
	FilterItemsEstimate uint32
	FilterItemsActual   uint32
	BlockSize           uint32
	CompressionRatio    float32
	KeyBytes            uint64
	ValueBytes          uint64
	Compression         codec.Type
	BloomMode           BloomMode
	BloomHashCount      uint8
	Flags               uint8
	CreateTime          int64
	Revision            int64
	TimestampMin        int64
	TimestampMax        int64
	TableID             uint32
	TableGeneration     uint32
	Version             uint16
}

func encodeTrailer(t Trailer) []byte {
	b := make([]byte, trailerSizeV7)
	off := 0
	put64 := func(v uint64) { wire.PutU64(b[off:], v); off += 8 }
	put32 := func(v uint32) { wire.PutU32(b[off:], v); off += 4 }
	put8 := func(v uint8) { b[off] = v; off++ }
	puti64 := func(v int64) { wire.PutI64(b[off:], v); off += 8 }

	put64(t.FixIndexOffset)
	put64(t.VarIndexOffset)
	put64(t.FilterOffset)
	put32(t.IndexEntries)
	put64(t.TotalEntries)
	put64(t.FilterLength)
	put32(t.FilterItemsEstimate)
	put32(t.FilterItemsActual)
	put32(t.BlockSize)
	put32(math.Float32bits(t.CompressionRatio))
	put64(t.KeyBytes)
	put64(t.ValueBytes)
	put8(uint8(t.Compression))
	put8(uint8(t.BloomMode))
	put8(t.BloomHashCount)
	put8(t.Flags)
	puti64(t.CreateTime)
	puti64(t.Revision)
	puti64(t.TimestampMin)
	puti64(t.TimestampMax)
	put32(t.TableID)
	put32(t.TableGeneration)
	wire.PutU16(b[off:], LatestTrailerVersion)
	off += 2
	return b
}

// decodeTrailer reads the version tag from the last two bytes of tail
// and dispatches to the matching decoder. tail must hold at least the
// trailer's encoded bytes, right-aligned at its end.
func decodeTrailer(tail []byte) (Trailer, error) {
	if len(tail) < 2 {
		return Trailer{}, fmt.Errorf("cellstore: %w: truncated trailer", ErrUnknownVersion)
	}
	version := wire.U16(tail[len(tail)-2:])
	switch {
	case version == 7:
		return decodeTrailerV7(tail)
	case version < 7:
		return Trailer{}, fmt.Errorf("%w: v%d", ErrUnsupportedTrailerVersion, version)
	default:
		return Trailer{}, fmt.Errorf("%w: v%d", ErrUnknownVersion, version)
	}
}

func decodeTrailerV7(tail []byte) (Trailer, error) {
	if len(tail) < trailerSizeV7 {
		return Trailer{}, fmt.Errorf("cellstore: %w: short v7 trailer", ErrUnknownVersion)
	}
	b := tail[len(tail)-trailerSizeV7:]
	off := 0
	get64 := func() uint64 { v := wire.U64(b[off:]); off += 8; return v }
	get32 := func() uint32 { v := wire.U32(b[off:]); off += 4; return v }
	get8 := func() uint8 { v := b[off]; off++; return v }
	geti64 := func() int64 { v := wire.I64(b[off:]); off += 8; return v }

	var t Trailer
	t.FixIndexOffset = get64()
	t.VarIndexOffset = get64()
	t.FilterOffset = get64()
	t.IndexEntries = get32()
	t.TotalEntries = get64()
	t.FilterLength = get64()
	t.FilterItemsEstimate = get32()
	t.FilterItemsActual = get32()
	t.BlockSize = get32()
	t.CompressionRatio = math.Float32frombits(get32())
	t.KeyBytes = get64()
	t.ValueBytes = get64()
	t.Compression = codec.Type(get8())
	t.BloomMode = BloomMode(get8())
	t.BloomHashCount = get8()
	t.Flags = get8()
	t.CreateTime = geti64()
	t.Revision = geti64()
	t.TimestampMin = geti64()
	t.TimestampMax = geti64()
	t.TableID = get32()
	t.TableGeneration = get32()
	t.Version = wire.U16(b[off:])
	return t, nil
}
