// Package checksum implements the Internet one's-complement checksum (RFC 1071).
package checksum

// Checksum returns the 16-bit one's-complement sum of b, folded with
// initial. The result is not complemented, so partial sums over adjacent
// even-length spans can be chained by passing one result as the next initial
// value. Header checksum fields store ^Checksum(...).
func Checksum(b []byte, initial uint16) uint16 {
	sum := uint32(initial)
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	return fold(sum)
}

// Combine adds two one's-complement sums.
func Combine(a, b uint16) uint16 {
	return fold(uint32(a) + uint32(b))
}

func fold(sum uint32) uint16 {
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(sum)
}
