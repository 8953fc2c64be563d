package commitlog

import (
	"fmt"

	"github.com/rangekit/rangekit/internal/codec"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/cell"
)

// Block is one decoded commit-log block, either a data block of cells or a
// link block naming another log directory.
type Block struct {
	Revision  int64
	ClusterID uint64
	IsLink    bool
	LinkedDir string
	Cells     []cell.Cell
}

// ReadFragment decodes every block of the fragment file at path, used by
// the recovery coordinator's replayer (spec.md §4.13) and by tests. A
// trailing partial block (the tail of a fragment open for writes when a
// server died) is silently truncated rather than treated as an error.
func ReadFragment(fs storagefs.FS, filePath string) ([]Block, error) {
	r, err := fs.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("commitlog: open %s: %w", filePath, err)
	}
	defer r.Close()
	size, err := r.Size()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	if err := decodeFragmentHeader(buf); err != nil {
		return nil, err
	}

	var blocks []Block
	off := fragmentHeaderSize
	for off < len(buf) {
		if len(buf)-off < blockHeaderSize {
			break
		}
		h, err := decodeBlockHeader(buf[off:])
		if err != nil {
			break
		}
		off += blockHeaderSize
		if off+int(h.CompressedLen) > len(buf) {
			break
		}
		payload, err := codec.Decompress(h.Compression, buf[off:off+int(h.CompressedLen)], int(h.UncompressedLen))
		if err != nil {
			return nil, fmt.Errorf("commitlog: decompress block at %s:%d: %w", filePath, off, err)
		}
		if got := codec.Fletcher32(buf[off : off+int(h.CompressedLen)]); got != h.PayloadChecksum {
			return nil, fmt.Errorf("commitlog: %w: payload checksum mismatch at %s:%d", ErrCorruptBlock, filePath, off)
		}
		off += int(h.CompressedLen)

		block := Block{Revision: h.Revision, ClusterID: h.ClusterID}
		if h.Link {
			block.IsLink = true
			block.LinkedDir = nulTerminated(payload)
		} else {
			cells, err := decodeCellBatch(payload)
			if err != nil {
				return nil, fmt.Errorf("commitlog: decode cell batch at %s:%d: %w", filePath, off, err)
			}
			block.Cells = cells
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func nulTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func decodeCellBatch(payload []byte) ([]cell.Cell, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("commitlog: %w: truncated batch count", ErrCorruptBlock)
	}
	count := int(payload[0]) | int(payload[1])<<8 | int(payload[2])<<16 | int(payload[3])<<24
	off := 4
	cells := make([]cell.Cell, 0, count)
	for i := 0; i < count; i++ {
		c, n, err := cell.Decode(payload[off:])
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
		off += n
	}
	return cells, nil
}
