package checksum

import "testing"

func TestChecksumRFC1071Example(t *testing.T) {
	// RFC 1071 section 3 example: 00 01 f2 03 f4 f5 f6 f7 sums to ddf2.
	data := []byte{0x00, 0x01, 0xf2, 0x03, 0xf4, 0xf5, 0xf6, 0xf7}
	if got := Checksum(data, 0); got != 0xddf2 {
		t.Errorf("Checksum = %#04x, want 0xddf2", got)
	}
}

func TestChecksumKnownIPv4Header(t *testing.T) {
	// Header from the Wikipedia IPv4 checksum example, checksum field zeroed.
	hdr := []byte{
		0x45, 0x00, 0x00, 0x73, 0x00, 0x00, 0x40, 0x00, 0x40, 0x11,
		0x00, 0x00, 0xc0, 0xa8, 0x00, 0x01, 0xc0, 0xa8, 0x00, 0xc7,
	}
	if got := ^Checksum(hdr, 0); got != 0xb861 {
		t.Errorf("header checksum = %#04x, want 0xb861", got)
	}

	hdr[10], hdr[11] = 0xb8, 0x61
	if got := Checksum(hdr, 0); got != 0xffff {
		t.Errorf("sum over header with checksum = %#04x, want 0xffff", got)
	}
}

func TestChecksumOddLength(t *testing.T) {
	if got := Checksum([]byte{0x01, 0x02, 0x03}, 0); got != 0x0402 {
		t.Errorf("Checksum = %#04x, want 0x0402", got)
	}
}

func TestChecksumChaining(t *testing.T) {
	data := []byte{0x45, 0x00, 0x12, 0x34, 0xab, 0xcd, 0xff, 0xff, 0x01, 0x10}
	whole := Checksum(data, 0)
	chained := Checksum(data[4:], Checksum(data[:4], 0))
	if whole != chained {
		t.Errorf("chained = %#04x, whole = %#04x", chained, whole)
	}
	combined := Combine(Checksum(data[:4], 0), Checksum(data[4:], 0))
	if whole != combined {
		t.Errorf("combined = %#04x, whole = %#04x", combined, whole)
	}
}
