package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{},
		[]byte("short"),
		bytesN(10000),
	}
	for _, typ := range []Type{None, Zlib, Snappy, Zstd} {
		for _, p := range payloads {
			compressed, err := Compress(typ, p)
			require.NoError(t, err, "codec %s compress", typ)
			decompressed, err := Decompress(typ, compressed, len(p))
			require.NoError(t, err, "codec %s decompress", typ)
			require.Equal(t, p, decompressed, "codec %s round trip", typ)
		}
	}
}

func TestUnsupportedCodecs(t *testing.T) {
	for _, typ := range []Type{LZO, QuickLZ, BMZ} {
		_, err := Compress(typ, []byte("x"))
		require.ErrorIs(t, err, ErrUnsupportedCodec)
	}
}

func TestFletcher32Deterministic(t *testing.T) {
	a := Fletcher32([]byte("the quick brown fox"))
	b := Fletcher32([]byte("the quick brown fox"))
	require.Equal(t, a, b)

	c := Fletcher32([]byte("the quick brown fox."))
	require.NotEqual(t, a, c)
}

func bytesN(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
