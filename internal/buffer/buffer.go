// Package buffer implements the packet buffer passed between protocol layers.
//
// A Buffer owns a backing array with reserved headroom so that lower layers
// can prepend their headers without copying the payload. RemoveHeader and
// AddHeader move the start of the packet forward and back over the same
// backing bytes; a header removed and re-added is therefore restored intact.
package buffer

import "fmt"

// DefaultHeadroom leaves room for an Ethernet, an IPv4 and an ICMP header.
const DefaultHeadroom = 64

// Buffer is a packet under construction or being parsed.
type Buffer struct {
	buf   []byte
	start int
	end   int
}

// New allocates a zeroed buffer of size bytes with DefaultHeadroom in front.
func New(size int) *Buffer {
	return NewWithHeadroom(size, DefaultHeadroom)
}

// NewWithHeadroom allocates a zeroed buffer of size bytes with the given headroom.
func NewWithHeadroom(size, headroom int) *Buffer {
	if size < 0 || headroom < 0 {
		panic(fmt.Sprintf("buffer: negative size %d or headroom %d", size, headroom))
	}
	return &Buffer{
		buf:   make([]byte, headroom+size),
		start: headroom,
		end:   headroom + size,
	}
}

// From copies b into a new buffer with DefaultHeadroom.
func From(b []byte) *Buffer {
	p := New(len(b))
	copy(p.Bytes(), b)
	return p
}

// Wrap uses b as the buffer contents without copying. There is no headroom,
// so a later AddHeader reallocates.
func Wrap(b []byte) *Buffer {
	return &Buffer{buf: b, start: 0, end: len(b)}
}

// Bytes returns the current packet bytes. The slice aliases the buffer.
func (p *Buffer) Bytes() []byte {
	return p.buf[p.start:p.end]
}

// Len returns the current packet length.
func (p *Buffer) Len() int {
	return p.end - p.start
}

// Headroom returns the number of bytes available in front of the packet.
func (p *Buffer) Headroom() int {
	return p.start
}

// AddHeader grows the packet by n bytes at the front and returns the new
// header region. Bytes that were previously removed with RemoveHeader are
// kept as they were; freshly reserved bytes are zero.
func (p *Buffer) AddHeader(n int) []byte {
	if n < 0 {
		panic(fmt.Sprintf("buffer: negative header length %d", n))
	}
	if n > p.start {
		grow := n - p.start + DefaultHeadroom
		nb := make([]byte, len(p.buf)+grow)
		copy(nb[grow:], p.buf)
		p.buf = nb
		p.start += grow
		p.end += grow
	}
	p.start -= n
	return p.buf[p.start : p.start+n]
}

// RemoveHeader drops n bytes from the front of the packet. It panics if n
// exceeds Len.
func (p *Buffer) RemoveHeader(n int) {
	if n < 0 || n > p.Len() {
		panic(fmt.Sprintf("buffer: cannot remove %d header bytes from %d", n, p.Len()))
	}
	p.start += n
}

// RemovePadding drops n bytes from the end of the packet. It panics if n
// exceeds Len.
func (p *Buffer) RemovePadding(n int) {
	if n < 0 || n > p.Len() {
		panic(fmt.Sprintf("buffer: cannot remove %d padding bytes from %d", n, p.Len()))
	}
	p.end -= n
}

// Clone returns a deep copy of the packet with DefaultHeadroom.
func (p *Buffer) Clone() *Buffer {
	return From(p.Bytes())
}
