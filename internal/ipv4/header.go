// Package ipv4 implements the IPv4 datagram engine: inbound validation and
// protocol dispatch, outbound fragmentation, and optional fragment reassembly.
package ipv4

import (
	"encoding/binary"
	"net/netip"

	"firestige.xyz/hoststack/internal/checksum"
	"firestige.xyz/hoststack/internal/core"
)

// Header layout (RFC 791):
//
//	byte 0:       version(4) + IHL(4)
//	byte 1:       type of service
//	bytes 2-3:    total length
//	bytes 4-5:    identification
//	bytes 6-7:    flags(3) + fragment offset(13)
//	byte 8:       TTL
//	byte 9:       protocol
//	bytes 10-11:  header checksum
//	bytes 12-15:  source address
//	bytes 16-19:  destination address
const (
	versIHL     = 0
	tos         = 1
	totalLen    = 2
	id          = 4
	flagsFO     = 6
	ttl         = 8
	protocol    = 9
	checksumOff = 10
	srcAddr     = 12
	dstAddr     = 16
)

const (
	// HeaderMinSize is the size of a header without options.
	HeaderMinSize = 20

	// Version is the only IP version this engine accepts.
	Version = 4

	// DefaultTTL is the TTL of every emitted datagram unless configured.
	DefaultTTL = 64

	// MinMTU is the smallest MTU every IPv4 link must support (RFC 791).
	MinMTU = 68

	// MaxTotalSize is the largest value the total-length field can carry.
	MaxTotalSize = 0xffff

	// FlagMoreFragments is the MF bit in the flags/fragment-offset word.
	FlagMoreFragments = 0x2000

	// FlagDontFragment is the DF bit in the flags/fragment-offset word.
	FlagDontFragment = 0x4000

	fragmentOffsetMask = 0x1fff
)

// Header is a view over the bytes of an IPv4 header.
type Header []byte

// Fields holds the values Encode writes into a Header.
type Fields struct {
	IHL            uint8 // header length in bytes; 0 means HeaderMinSize
	TOS            uint8
	TotalLength    uint16
	ID             uint16
	MoreFragments  bool
	FragmentOffset uint16 // in bytes; must be a multiple of 8
	TTL            uint8
	Protocol       core.ProtocolNumber
	SrcAddr        netip.Addr
	DstAddr        netip.Addr
}

// Version returns the IP version.
func (h Header) Version() uint8 {
	return h[versIHL] >> 4
}

// HeaderLength returns the header length in bytes (IHL * 4).
func (h Header) HeaderLength() int {
	return int(h[versIHL]&0x0f) * 4
}

// TOS returns the type-of-service byte.
func (h Header) TOS() uint8 {
	return h[tos]
}

// TotalLength returns the datagram length declared in the header.
func (h Header) TotalLength() uint16 {
	return binary.BigEndian.Uint16(h[totalLen:])
}

// ID returns the identification field.
func (h Header) ID() uint16 {
	return binary.BigEndian.Uint16(h[id:])
}

// Flags returns the three flag bits in their wire position.
func (h Header) Flags() uint16 {
	return binary.BigEndian.Uint16(h[flagsFO:]) &^ fragmentOffsetMask
}

// MoreFragments reports whether the MF flag is set.
func (h Header) MoreFragments() bool {
	return binary.BigEndian.Uint16(h[flagsFO:])&FlagMoreFragments != 0
}

// FragmentOffset returns the fragment offset in bytes.
func (h Header) FragmentOffset() uint16 {
	return (binary.BigEndian.Uint16(h[flagsFO:]) & fragmentOffsetMask) << 3
}

// IsFragment reports whether the datagram is one piece of a larger one.
func (h Header) IsFragment() bool {
	return h.MoreFragments() || h.FragmentOffset() != 0
}

// TTL returns the time-to-live.
func (h Header) TTL() uint8 {
	return h[ttl]
}

// Protocol returns the upper-layer protocol number.
func (h Header) Protocol() core.ProtocolNumber {
	return core.ProtocolNumber(h[protocol])
}

// Checksum returns the stored header checksum.
func (h Header) Checksum() uint16 {
	return binary.BigEndian.Uint16(h[checksumOff:])
}

// SourceAddress returns the source address.
func (h Header) SourceAddress() netip.Addr {
	return netip.AddrFrom4([4]byte(h[srcAddr : srcAddr+4]))
}

// DestinationAddress returns the destination address.
func (h Header) DestinationAddress() netip.Addr {
	return netip.AddrFrom4([4]byte(h[dstAddr : dstAddr+4]))
}

// SetTotalLength sets the total-length field.
func (h Header) SetTotalLength(n uint16) {
	binary.BigEndian.PutUint16(h[totalLen:], n)
}

// SetFragment sets the MF flag and fragment offset (in bytes). Other flag
// bits are cleared.
func (h Header) SetFragment(more bool, offset uint16) {
	v := (offset >> 3) & fragmentOffsetMask
	if more {
		v |= FlagMoreFragments
	}
	binary.BigEndian.PutUint16(h[flagsFO:], v)
}

// ClearFragment clears the MF flag and the fragment offset. DF and the
// reserved bit are kept.
func (h Header) ClearFragment() {
	binary.BigEndian.PutUint16(h[flagsFO:], h.Flags()&^FlagMoreFragments)
}

// SetChecksum stores v in the checksum field.
func (h Header) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(h[checksumOff:], v)
}

// CalculateChecksum returns the header checksum computed over HeaderLength
// bytes with the checksum field treated as zero. The header is not modified.
func (h Header) CalculateChecksum() uint16 {
	hlen := h.HeaderLength()
	sum := checksum.Checksum(h[:checksumOff], 0)
	sum = checksum.Checksum(h[checksumOff+2:hlen], sum)
	return ^sum
}

// IsChecksumValid reports whether the stored checksum matches the header.
func (h Header) IsChecksumValid() bool {
	return h.CalculateChecksum() == h.Checksum()
}

// Encode writes f into h and computes the checksum last, over the fully
// populated header. h must be at least f.IHL (or HeaderMinSize) bytes.
func (h Header) Encode(f *Fields) {
	ihl := f.IHL
	if ihl == 0 {
		ihl = HeaderMinSize
	}
	h[versIHL] = Version<<4 | (ihl/4)&0x0f
	h[tos] = f.TOS
	binary.BigEndian.PutUint16(h[totalLen:], f.TotalLength)
	binary.BigEndian.PutUint16(h[id:], f.ID)
	h.SetFragment(f.MoreFragments, f.FragmentOffset)
	h[ttl] = f.TTL
	h[protocol] = uint8(f.Protocol)
	h.SetChecksum(0)
	src := f.SrcAddr.As4()
	dst := f.DstAddr.As4()
	copy(h[srcAddr:srcAddr+4], src[:])
	copy(h[dstAddr:dstAddr+4], dst[:])
	h.SetChecksum(h.CalculateChecksum())
}
