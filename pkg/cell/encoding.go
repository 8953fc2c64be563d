package cell

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rangekit/rangekit/internal/wire"
)

// ErrTruncated is returned when a buffer ends before a complete cell has
// been decoded.
var ErrTruncated = errors.New("cell: truncated record")

// EncodedLen returns the number of bytes Encode will write for k/v.
func EncodedLen(k Key, value []byte) int {
	return 4 + len(k.Row) + 1 + 4 + len(k.ColumnQualifier) + 8 + 8 + 1 + 4 + len(value)
}

// Encode serializes a cell (key + value) into dst, which must be at least
// EncodedLen(k, value) bytes, and returns the number of bytes written.
//
// Layout: rowLen u32, row, cfID u8, cqLen u32, cq, ts i64, rev i64, flag u8,
// valueLen u32, value. Every field round-trips exactly, including empty
// qualifiers and empty values.
func Encode(dst []byte, k Key, value []byte) int {
	off := 0
	wire.PutU32(dst[off:], uint32(len(k.Row)))
	off += 4
	off += copy(dst[off:], k.Row)
	dst[off] = k.ColumnFamilyID
	off++
	wire.PutU32(dst[off:], uint32(len(k.ColumnQualifier)))
	off += 4
	off += copy(dst[off:], k.ColumnQualifier)
	wire.PutI64(dst[off:], k.Timestamp)
	off += 8
	wire.PutI64(dst[off:], k.Revision)
	off += 8
	dst[off] = byte(k.Flag)
	off++
	wire.PutU32(dst[off:], uint32(len(value)))
	off += 4
	off += copy(dst[off:], value)
	return off
}

// Decode parses a single cell from the front of src and returns the decoded
// cell plus the number of bytes consumed. The returned Row/ColumnQualifier/
// Value slices alias src; callers that need owned copies must dup them
// (see internal/arena).
func Decode(src []byte) (Cell, int, error) {
	off := 0
	rowLen, ok := readU32(src, &off)
	if !ok {
		return Cell{}, 0, fmt.Errorf("cell decode row length: %w", ErrTruncated)
	}
	row, ok := readN(src, &off, int(rowLen))
	if !ok {
		return Cell{}, 0, fmt.Errorf("cell decode row: %w", ErrTruncated)
	}
	cfID, ok := readByte(src, &off)
	if !ok {
		return Cell{}, 0, fmt.Errorf("cell decode cf id: %w", ErrTruncated)
	}
	cqLen, ok := readU32(src, &off)
	if !ok {
		return Cell{}, 0, fmt.Errorf("cell decode cq length: %w", ErrTruncated)
	}
	cq, ok := readN(src, &off, int(cqLen))
	if !ok {
		return Cell{}, 0, fmt.Errorf("cell decode cq: %w", ErrTruncated)
	}
	ts, ok := readI64(src, &off)
	if !ok {
		return Cell{}, 0, fmt.Errorf("cell decode timestamp: %w", ErrTruncated)
	}
	rev, ok := readI64(src, &off)
	if !ok {
		return Cell{}, 0, fmt.Errorf("cell decode revision: %w", ErrTruncated)
	}
	flag, ok := readByte(src, &off)
	if !ok {
		return Cell{}, 0, fmt.Errorf("cell decode flag: %w", ErrTruncated)
	}
	valLen, ok := readU32(src, &off)
	if !ok {
		return Cell{}, 0, fmt.Errorf("cell decode value length: %w", ErrTruncated)
	}
	val, ok := readN(src, &off, int(valLen))
	if !ok {
		return Cell{}, 0, fmt.Errorf("cell decode value: %w", ErrTruncated)
	}
	return Cell{
		Key: Key{
			Row:             row,
			ColumnFamilyID:  cfID,
			ColumnQualifier: cq,
			Timestamp:       ts,
			Revision:        rev,
			Flag:            Flag(flag),
		},
		Value: val,
	}, off, nil
}

func readU32(b []byte, off *int) (uint32, bool) {
	if len(b)-*off < 4 {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(b[*off:])
	*off += 4
	return v, true
}

func readI64(b []byte, off *int) (int64, bool) {
	if len(b)-*off < 8 {
		return 0, false
	}
	v := int64(binary.LittleEndian.Uint64(b[*off:]))
	*off += 8
	return v, true
}

func readByte(b []byte, off *int) (uint8, bool) {
	if len(b)-*off < 1 {
		return 0, false
	}
	v := b[*off]
	*off++
	return v, true
}

func readN(b []byte, off *int, n int) ([]byte, bool) {
	if n < 0 || len(b)-*off < n {
		return nil, false
	}
	v := b[*off : *off+n]
	*off += n
	return v, true
}
