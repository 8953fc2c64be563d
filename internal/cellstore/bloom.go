package cellstore

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// bloomFilter is a classic Kirsch-Mitzenmacher double-hashing Bloom
// filter: k probe positions are derived from one 64-bit xxhash digest
// and a second value computed from it, instead of k separate hash
// functions.
type bloomFilter struct {
	bits  []byte
	nbits uint64
	k     int
}

// newBloomFilter sizes a filter for n expected items at the given false
// positive rate, picking bit count and hash count by the standard
// formulas (m = -n*ln(p)/ln(2)^2, k = (m/n)*ln(2)).
func newBloomFilter(n int, falsePositiveRate float64) *bloomFilter {
	if n <= 0 {
		n = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	m := math.Ceil(-float64(n) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2))
	if m < 8 {
		m = 8
	}
	k := int(math.Round(m / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	// Round up to whole bytes: loadBloomFilter derives the bit count from
	// the stored byte length, so probe positions must use the same modulus.
	nbits := (uint64(m) + 7) / 8 * 8
	return &bloomFilter{bits: make([]byte, (nbits+7)/8), nbits: nbits, k: k}
}

func (f *bloomFilter) hashes(item []byte) (h1, h2 uint64) {
	h1 = xxhash.Sum64(item)
	h2 = xxhash.Sum64([]byte{byte(h1)}) ^ h1>>1
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}

// Add registers item in the filter.
func (f *bloomFilter) Add(item []byte) {
	h1, h2 := f.hashes(item)
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.nbits
		f.bits[pos/8] |= 1 << (pos % 8)
	}
}

// MayContain reports whether item could have been added. A false result
// is certain; a true result may be a false positive.
func (f *bloomFilter) MayContain(item []byte) bool {
	h1, h2 := f.hashes(item)
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.nbits
		if f.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

func loadBloomFilter(bits []byte, hashCount int) *bloomFilter {
	return &bloomFilter{bits: bits, nbits: uint64(len(bits)) * 8, k: hashCount}
}
