package cellstore

import (
	"fmt"

	"github.com/rangekit/rangekit/internal/buf"
	"github.com/rangekit/rangekit/internal/codec"
	"github.com/rangekit/rangekit/internal/wire"
)

// blockHeaderSize is the encoded size of a block header: compressed
// length, uncompressed length, and a Fletcher-32 checksum over the
// compressed payload.
const blockHeaderSize = 4 + 4 + 4

// ErrCorruptBlock is returned when a block's payload checksum does not
// match, triggering the retry-with-verify behavior in spec.md §4.4.
var ErrCorruptBlock = fmt.Errorf("cellstore: corrupt block")

func encodeBlock(dst []byte, codecType codec.Type, uncompressed []byte) ([]byte, error) {
	compressed, err := codec.Compress(codecType, uncompressed)
	if err != nil {
		return nil, fmt.Errorf("cellstore: compress block: %w", err)
	}
	checksum := codec.Fletcher32(compressed)
	header := dst[:0]
	header = append(header, make([]byte, blockHeaderSize)...)
	wire.PutU32(header, uint32(len(compressed)))
	wire.PutU32(header[4:], uint32(len(uncompressed)))
	wire.PutU32(header[8:], checksum)
	return append(header, compressed...), nil
}

func decodeBlock(codecType codec.Type, payloadBuf []byte) (payload []byte, consumed int, err error) {
	if len(payloadBuf) < blockHeaderSize {
		return nil, 0, fmt.Errorf("cellstore: %w: truncated block header", ErrCorruptBlock)
	}
	compressedLen := wire.U32(payloadBuf)
	uncompressedLen := wire.U32(payloadBuf[4:])
	checksum := wire.U32(payloadBuf[8:])
	compressed, ok := buf.Slice(payloadBuf, blockHeaderSize, int(compressedLen))
	if !ok {
		return nil, 0, fmt.Errorf("cellstore: %w: truncated block payload", ErrCorruptBlock)
	}
	if got := codec.Fletcher32(compressed); got != checksum {
		return nil, 0, fmt.Errorf("cellstore: %w: checksum mismatch", ErrCorruptBlock)
	}
	out, err := codec.Decompress(codecType, compressed, int(uncompressedLen))
	if err != nil {
		return nil, 0, fmt.Errorf("cellstore: decompress block: %w", err)
	}
	return out, blockHeaderSize + int(compressedLen), nil
}
