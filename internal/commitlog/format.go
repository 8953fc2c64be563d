package commitlog

import (
	"fmt"

	"github.com/rangekit/rangekit/internal/codec"
	"github.com/rangekit/rangekit/internal/wire"
)

// Magic strings for fragment and block headers (spec.md §6.1).
const (
	fragmentMagic   = "COMMITLOG"
	blockMagicData  = "COMMITDATA"
	blockMagicLink  = "COMMITLINK"
	magicSize       = 10
	fragmentVersion = 1
)

// fragmentHeaderSize is magic(10) + version(u16) + reserved(u32).
const fragmentHeaderSize = magicSize + 2 + 4

// blockHeaderSize is magic(10) + compression(1) + uncompressedLen(4) +
// compressedLen(4) + revision(8) + clusterID(8) + headerChecksum(4) +
// payloadChecksum(4).
const blockHeaderSize = magicSize + 1 + 4 + 4 + 8 + 8 + 4 + 4

// blockHeader is the on-disk framing for one commit-log block.
type blockHeader struct {
	Link            bool
	Compression     codec.Type
	UncompressedLen uint32
	CompressedLen   uint32
	Revision        int64
	ClusterID       uint64
	HeaderChecksum  uint32
	PayloadChecksum uint32
}

func writeMagic(dst []byte, s string) {
	copy(dst[:magicSize], s)
	for i := len(s); i < magicSize; i++ {
		dst[i] = 0
	}
}

func readMagic(src []byte) string {
	n := 0
	for n < magicSize && src[n] != 0 {
		n++
	}
	return string(src[:n])
}

func encodeFragmentHeader() []byte {
	b := make([]byte, fragmentHeaderSize)
	writeMagic(b, fragmentMagic)
	wire.PutU16(b[magicSize:], fragmentVersion)
	return b
}

func decodeFragmentHeader(b []byte) error {
	if len(b) < fragmentHeaderSize {
		return fmt.Errorf("commitlog: %w: short fragment header", ErrCorruptBlock)
	}
	if readMagic(b) != fragmentMagic {
		return fmt.Errorf("commitlog: %w: bad fragment magic", ErrBadMagic)
	}
	return nil
}

func encodeBlockHeader(h blockHeader) []byte {
	b := make([]byte, blockHeaderSize)
	if h.Link {
		writeMagic(b, blockMagicLink)
	} else {
		writeMagic(b, blockMagicData)
	}
	off := magicSize
	b[off] = byte(h.Compression)
	off++
	wire.PutU32(b[off:], h.UncompressedLen)
	off += 4
	wire.PutU32(b[off:], h.CompressedLen)
	off += 4
	wire.PutI64(b[off:], h.Revision)
	off += 8
	wire.PutU64(b[off:], h.ClusterID)
	off += 8
	headerChecksum := codec.Fletcher32(b[:off])
	wire.PutU32(b[off:], headerChecksum)
	off += 4
	wire.PutU32(b[off:], h.PayloadChecksum)
	return b
}

func decodeBlockHeader(b []byte) (blockHeader, error) {
	if len(b) < blockHeaderSize {
		return blockHeader{}, fmt.Errorf("commitlog: %w: short block header", ErrCorruptBlock)
	}
	magic := readMagic(b)
	var h blockHeader
	switch magic {
	case blockMagicData:
		h.Link = false
	case blockMagicLink:
		h.Link = true
	default:
		return blockHeader{}, fmt.Errorf("commitlog: %w: %q", ErrBadMagic, magic)
	}
	off := magicSize
	h.Compression = codec.Type(b[off])
	off++
	h.UncompressedLen = wire.U32(b[off:])
	off += 4
	h.CompressedLen = wire.U32(b[off:])
	off += 4
	h.Revision = wire.I64(b[off:])
	off += 8
	h.ClusterID = wire.U64(b[off:])
	off += 8
	h.HeaderChecksum = wire.U32(b[off:])
	off += 4
	h.PayloadChecksum = wire.U32(b[off:])
	if want := codec.Fletcher32(b[:off-4]); want != h.HeaderChecksum {
		return blockHeader{}, fmt.Errorf("commitlog: %w: header checksum mismatch", ErrCorruptBlock)
	}
	return h, nil
}
