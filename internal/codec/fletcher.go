package codec

// Fletcher32 computes the Fletcher-32 checksum of data, as used by commit
// log block headers (spec.md §4.2/§6.1).
func Fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32
	// Fletcher-32 operates on 16-bit words; an odd trailing byte is
	// zero-padded.
	i := 0
	for i+1 < len(data) {
		word := uint32(data[i]) | uint32(data[i+1])<<8
		sum1 = (sum1 + word) % 0xFFFF
		sum2 = (sum2 + sum1) % 0xFFFF
		i += 2
	}
	if i < len(data) {
		word := uint32(data[i])
		sum1 = (sum1 + word) % 0xFFFF
		sum2 = (sum2 + sum1) % 0xFFFF
	}
	return sum2<<16 | sum1
}
