package querycache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Key is a 128-bit digest of a scan specification's wire bytes.
type Key [16]byte

// Digest hashes spec (the encoded scan specification: table, row
// bounds, column set, predicates) into a Key. Two independent-seeded
// xxhash passes stand in for a true 128-bit hash, since xxhash/v2 only
// exposes a 64-bit sum.
func Digest(spec []byte) Key {
	d1 := xxhash.New()
	d1.Write([]byte{0x01})
	d1.Write(spec)
	d2 := xxhash.New()
	d2.Write([]byte{0x02})
	d2.Write(spec)

	var k Key
	binary.LittleEndian.PutUint64(k[:8], d1.Sum64())
	binary.LittleEndian.PutUint64(k[8:], d2.Sum64())
	return k
}
