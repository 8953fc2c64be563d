// Package wire contains endian-safe encode/decode helpers shared by the
// commit log and cell store binary formats.
package wire

import "encoding/binary"

// PutU16 writes a little-endian uint16 into b, which must be at least 2 bytes.
func PutU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }

// PutU32 writes a little-endian uint32 into b, which must be at least 4 bytes.
func PutU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// PutU64 writes a little-endian uint64 into b, which must be at least 8 bytes.
func PutU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// PutI64 writes a little-endian int64 into b, which must be at least 8 bytes.
func PutI64(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }

// U16 reads a little-endian uint16 from b. Returns 0 when b is too short.
func U16(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64 reads a little-endian uint64 from b. Returns 0 when b is too short.
func U64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// I64 reads a little-endian int64 from b. Returns 0 when b is too short.
func I64(b []byte) int64 {
	if len(b) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}
