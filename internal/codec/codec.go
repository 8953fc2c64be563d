// Package codec implements the block compression codecs named by spec.md
// §4.2/§6.1: NONE, ZLIB, LZO, QUICKLZ, BMZ, SNAPPY, ZSTD. Every codec
// satisfies compress(block) → decompress(…) = block for any input,
// including the empty block.
package codec

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Type identifies a block compression codec.
type Type uint8

const (
	None Type = iota
	Zlib
	LZO
	QuickLZ
	BMZ
	Snappy
	Zstd
)

// ErrUnsupportedCodec is returned for codec identifiers that are part of
// the wire format but have no implementation here (see DESIGN.md: no
// suitable pure-Go LZO/QuickLZ/BMZ implementation appears anywhere in the
// reference corpus, so these round-trip as a hard error rather than a
// fabricated codec).
var ErrUnsupportedCodec = errors.New("codec: unsupported compression type")

// ParseType maps a schema-configured compressor name to a Type. An
// unrecognized or empty name yields None.
func ParseType(name string) Type {
	switch name {
	case "zlib":
		return Zlib
	case "lzo":
		return LZO
	case "quicklz":
		return QuickLZ
	case "bmz":
		return BMZ
	case "snappy":
		return Snappy
	case "zstd":
		return Zstd
	default:
		return None
	}
}

func (t Type) String() string {
	switch t {
	case None:
		return "NONE"
	case Zlib:
		return "ZLIB"
	case LZO:
		return "LZO"
	case QuickLZ:
		return "QUICKLZ"
	case BMZ:
		return "BMZ"
	case Snappy:
		return "SNAPPY"
	case Zstd:
		return "ZSTD"
	default:
		return "UNKNOWN"
	}
}

var zstdEncoder, _ = zstd.NewWriter(nil)
var zstdDecoder, _ = zstd.NewReader(nil)

// Compress compresses src according to t.
func Compress(t Type, src []byte) ([]byte, error) {
	switch t {
	case None:
		return append([]byte(nil), src...), nil
	case Zlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(src); err != nil {
			return nil, fmt.Errorf("codec: zlib compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("codec: zlib compress: %w", err)
		}
		return buf.Bytes(), nil
	case Snappy:
		return snappy.Encode(nil, src), nil
	case Zstd:
		return zstdEncoder.EncodeAll(src, nil), nil
	case LZO, QuickLZ, BMZ:
		return nil, fmt.Errorf("codec: %s: %w", t, ErrUnsupportedCodec)
	default:
		return nil, fmt.Errorf("codec: type %d: %w", t, ErrUnsupportedCodec)
	}
}

// Decompress decompresses src according to t into a buffer of exactly
// uncompressedLen bytes.
func Decompress(t Type, src []byte, uncompressedLen int) ([]byte, error) {
	switch t {
	case None:
		out := append([]byte(nil), src...)
		if len(out) != uncompressedLen {
			return nil, fmt.Errorf("codec: none: length mismatch: got %d want %d", len(out), uncompressedLen)
		}
		return out, nil
	case Zlib:
		r, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("codec: zlib decompress: %w", err)
		}
		defer r.Close()
		out := make([]byte, uncompressedLen)
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, fmt.Errorf("codec: zlib decompress: %w", err)
		}
		return out, nil
	case Snappy:
		out, err := snappy.Decode(make([]byte, 0, uncompressedLen), src)
		if err != nil {
			return nil, fmt.Errorf("codec: snappy decompress: %w", err)
		}
		if len(out) != uncompressedLen {
			return nil, fmt.Errorf("codec: snappy: length mismatch: got %d want %d", len(out), uncompressedLen)
		}
		return out, nil
	case Zstd:
		out, err := zstdDecoder.DecodeAll(src, make([]byte, 0, uncompressedLen))
		if err != nil {
			return nil, fmt.Errorf("codec: zstd decompress: %w", err)
		}
		if len(out) != uncompressedLen {
			return nil, fmt.Errorf("codec: zstd: length mismatch: got %d want %d", len(out), uncompressedLen)
		}
		return out, nil
	case LZO, QuickLZ, BMZ:
		return nil, fmt.Errorf("codec: %s: %w", t, ErrUnsupportedCodec)
	default:
		return nil, fmt.Errorf("codec: type %d: %w", t, ErrUnsupportedCodec)
	}
}
