// Package link defines the contract between the IP stack and the link layer
// that frames and transmits its datagrams.
package link

import (
	"errors"
	"net"
	"net/netip"

	"github.com/google/gopacket"

	"firestige.xyz/hoststack/internal/buffer"
)

// ErrTimeout is returned by a FrameSource whose read timed out without a
// frame. Readers retry.
var ErrTimeout = errors.New("link: read timeout")

// Dispatcher receives network-layer packets from an Endpoint.
type Dispatcher interface {
	DeliverNetworkPacket(pkt *buffer.Buffer, src net.HardwareAddr)
}

// Endpoint transmits IPv4 datagrams and hands inbound ones to its Dispatcher.
type Endpoint interface {
	MTU() int
	// WritePacket frames pkt for the next hop of dst and transmits it.
	WritePacket(pkt *buffer.Buffer, dst netip.Addr) error
	Attach(d Dispatcher)
}

// FrameSource yields raw link frames. io.EOF ends the stream.
type FrameSource = gopacket.PacketDataSource

// FrameSink transmits raw link frames.
type FrameSink interface {
	WritePacketData(data []byte) error
}
